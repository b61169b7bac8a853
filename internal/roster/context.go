// Package roster ties the schema, codec, chain and scan layers into
// one explicit consumer surface over a single attached process.
// A Context replaces ambient global state: callers load a schema for
// a target, decode and encode fields through it, and invalidate it
// when the schema or the process moves underneath them.
package roster

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"rosterscope/internal/chain"
	"rosterscope/internal/codec"
	"rosterscope/internal/locate"
	"rosterscope/internal/procmem"
	"rosterscope/internal/schema"
)

// Kind names an editable record family.
type Kind string

const (
	Player  Kind = "player"
	Team    Kind = "team"
	Staff   Kind = "staff"
	Stadium Kind = "stadium"
)

var kindLabel = map[Kind]string{
	Player:  "Player",
	Team:    "Team",
	Staff:   "Staff",
	Stadium: "Stadium",
}

// AcceptedTargets is the fixed allow-list of executable names this
// core will load a schema for.
var AcceptedTargets = []string{"NBA2K26.exe", "NBA2K25.exe"}

var (
	ErrUnknownTarget = errors.New("roster: target executable not accepted")
	ErrNoSchema      = errors.New("roster: no schema loaded")
	ErrUnknownKind   = errors.New("roster: unknown record kind")
	ErrUnknownField  = errors.New("roster: field not in schema")
	ErrBadIndex      = errors.New("roster: record index out of range")
)

// Config carries the schema search locations.
type Config struct {
	SearchDirs []string
	Candidates []string
}

// teamScanLimit bounds the reverse name lookup walk over team
// records.
const teamScanLimit = 100

// Context is the live editing surface for one process and one loaded
// schema bundle. All mutable state sits behind one mutex; decode and
// encode paths only read it.
type Context struct {
	mem  procmem.Accessor
	repo *schema.Repository
	res  *schema.Resolver
	cdc  *codec.Codec
	log  *slog.Logger
	cfg  Config

	mu     sync.Mutex
	target string
	path   string
	bundle *schema.Bundle
	bases  map[string]uint64
}

// NewContext wires a Context over mem. A nil repository gets a fresh
// cache; a nil logger falls back to slog.Default.
func NewContext(mem procmem.Accessor, repo *schema.Repository, cfg Config, log *slog.Logger) *Context {
	if repo == nil {
		repo = schema.NewRepository(nil, log)
	}
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = []string{"offsets.json"}
	}
	c := &Context{
		mem:   mem,
		repo:  repo,
		res:   schema.NewResolver(),
		log:   log,
		cfg:   cfg,
		bases: map[string]uint64{},
	}
	c.cdc = &codec.Codec{
		TeamNameForPointer: c.teamNameForPointer,
		PointerForTeamName: c.pointerForTeamName,
	}
	return c
}

// Load fetches the schema for target unless one is already active.
func (c *Context) Load(target string) error {
	return c.RefreshSchema(target, false, "")
}

// RefreshSchema loads the bundle for target. force drops any cached
// payload first; explicitFile pins the load to one schema file
// instead of the search path.
func (c *Context) RefreshSchema(target string, force bool, explicitFile string) error {
	if !targetAccepted(target) {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !force && explicitFile == "" && c.bundle != nil && strings.EqualFold(c.target, target) {
		return nil
	}
	dirs, candidates := c.cfg.SearchDirs, c.cfg.Candidates
	if explicitFile != "" {
		dirs = []string{filepath.Dir(explicitFile)}
		candidates = []string{filepath.Base(explicitFile)}
		// a pinned load must not be answered from the target cache
		// unless that cache already holds the pinned file
		if filepath.Clean(explicitFile) != c.path {
			c.repo.Cache().InvalidateTarget(strings.ToLower(target))
		}
	}
	if force {
		c.repo.Cache().InvalidateTarget(strings.ToLower(target))
		if explicitFile != "" {
			c.repo.Cache().InvalidatePath(filepath.Clean(explicitFile))
		}
	}
	path, bundle, err := c.repo.LoadBundle(target, dirs, candidates, c.res)
	if err != nil {
		return err
	}
	c.target = target
	c.path = path
	c.bundle = bundle
	c.bases = map[string]uint64{}
	c.log.Info("schema loaded", "target", target, "path", path, "version", bundle.Version)
	return nil
}

// Invalidate drops the active bundle and every resolved base. The
// next Load re-reads from disk.
func (c *Context) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target != "" {
		c.repo.Cache().InvalidateTarget(strings.ToLower(c.target))
	}
	c.target = ""
	c.path = ""
	c.bundle = nil
	c.bases = map[string]uint64{}
}

// Bundle returns the active schema bundle, nil when none is loaded.
func (c *Context) Bundle() *schema.Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bundle
}

// SchemaPath returns the file the active bundle came from.
func (c *Context) SchemaPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

func targetAccepted(target string) bool {
	for _, t := range AcceptedTargets {
		if strings.EqualFold(t, target) {
			return true
		}
	}
	return false
}

// Field resolves a field spec by category and exact name.
func (c *Context) Field(category, name string) (*schema.FieldSpec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundle == nil {
		return nil, ErrNoSchema
	}
	spec := c.bundle.Find(category, name)
	if spec == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownField, category, name)
	}
	return spec, nil
}

// RecordAddress computes the absolute address of record index for a
// kind: resolved base plus index times stride.
func (c *Context) RecordAddress(kind Kind, index int) (uint64, error) {
	label, ok := kindLabel[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if index < 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadIndex, index)
	}
	stride, err := c.Stride(kind)
	if err != nil {
		return 0, err
	}
	base, err := c.resolveBase(label)
	if err != nil {
		return 0, err
	}
	return base + uint64(index)*uint64(stride), nil
}

// Stride returns the record size for a kind from the loaded sizes.
func (c *Context) Stride(kind Kind) (int, error) {
	label, ok := kindLabel[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundle == nil {
		return 0, ErrNoSchema
	}
	sizeKey := schema.SizeKeyFor[label]
	stride := c.bundle.Sizes[sizeKey]
	if stride <= 0 {
		return 0, fmt.Errorf("roster: size %q missing from schema", sizeKey)
	}
	return stride, nil
}

// DecodeField reads one field of one record. A nil spec is looked up
// by category and name; a zero recordPtr is computed from the kind
// and index.
func (c *Context) DecodeField(kind Kind, index int, category, name string, spec *schema.FieldSpec, recordPtr uint64) (codec.Decoded, error) {
	spec, recordPtr, err := c.fieldTarget(kind, index, category, name, spec, recordPtr)
	if err != nil {
		return codec.Unavailable, err
	}
	return c.cdc.DecodeLive(c.mem, string(kind), spec, recordPtr)
}

// EncodeField writes one field of one record. The false, nil return
// means the field was skipped and memory is unchanged; derefCache may
// be shared across fields of the same record.
func (c *Context) EncodeField(kind Kind, index int, category, name string, spec *schema.FieldSpec, recordPtr uint64, value any, derefCache map[uint64]uint64) (bool, error) {
	spec, recordPtr, err := c.fieldTarget(kind, index, category, name, spec, recordPtr)
	if err != nil {
		return false, err
	}
	return c.cdc.Encode(c.mem, string(kind), spec, recordPtr, value, derefCache)
}

func (c *Context) fieldTarget(kind Kind, index int, category, name string, spec *schema.FieldSpec, recordPtr uint64) (*schema.FieldSpec, uint64, error) {
	if spec == nil {
		found, err := c.Field(category, name)
		if err != nil {
			return nil, 0, err
		}
		spec = found
	}
	if recordPtr == 0 {
		addr, err := c.RecordAddress(kind, index)
		if err != nil {
			return nil, 0, err
		}
		recordPtr = addr
	}
	return spec, recordPtr, nil
}

// ApplyOverrides merges scan-discovered base addresses into the
// bundle as absolute direct-table chains and drops every resolved
// base so the next access re-resolves.
func (c *Context) ApplyOverrides(overrides map[string]uint64) {
	if len(overrides) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundle == nil {
		return
	}
	for label, addr := range overrides {
		if addr == 0 {
			continue
		}
		if _, known := kindLabel[Kind(strings.ToLower(label))]; !known {
			continue
		}
		c.bundle.BasePointers[label] = schema.Chain{
			Address:     addr,
			Absolute:    true,
			DirectTable: true,
		}
		c.log.Info("base pointer override", "label", label, "addr", fmt.Sprintf("0x%X", addr))
	}
	c.bases = map[string]uint64{}
}

// FindDynamicBases scans the process for the player and team tables,
// seeds the scan with the currently resolved bases as hints, and
// merges confirmed matches back into the bundle.
func (c *Context) FindDynamicBases(params locate.Params) (map[string]uint64, *locate.Report, error) {
	if params.PlayerBaseHint == 0 {
		if base, err := c.resolveBase("Player"); err == nil {
			params.PlayerBaseHint = base
		}
	}
	if params.TeamBaseHint == 0 {
		if base, err := c.resolveBase("Team"); err == nil {
			params.TeamBaseHint = base
		}
	}
	if params.PlayerStride <= 0 {
		if stride, err := c.Stride(Player); err == nil {
			params.PlayerStride = stride
		}
	}
	if params.TeamStride <= 0 {
		if stride, err := c.Stride(Team); err == nil {
			params.TeamStride = stride
		}
	}
	scanner := locate.NewScanner(c.mem, c.log)
	overrides, report, err := scanner.Scan(params)
	if err != nil {
		return nil, report, err
	}
	c.ApplyOverrides(overrides)
	return overrides, report, nil
}

// resolveBase walks the declared chain for label, validating the
// candidate with the entity's name probes. Results are cached until
// the schema or the overrides change.
func (c *Context) resolveBase(label string) (uint64, error) {
	c.mu.Lock()
	if c.bundle == nil {
		c.mu.Unlock()
		return 0, ErrNoSchema
	}
	if base, ok := c.bases[label]; ok {
		c.mu.Unlock()
		return base, nil
	}
	declared, ok := c.bundle.BasePointers[label]
	validator := c.validatorFor(label)
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("roster: base pointer %q missing from schema", label)
	}
	base, err := chain.Resolve(c.mem, declared, validator)
	if err != nil {
		return 0, fmt.Errorf("roster: resolve %s base: %w", label, err)
	}
	c.mu.Lock()
	c.bases[label] = base
	c.mu.Unlock()
	c.log.Debug("base resolved", "label", label, "addr", fmt.Sprintf("0x%X", base))
	return base, nil
}

// nameProbe is one fixed-string read used to sanity-check a resolved
// base.
type nameProbe struct {
	offset uint64
	chars  int
	enc    procmem.Encoding
	ascii  bool
}

// validatorFor builds the name-probe validator for a label. Callers
// hold c.mu. A label with no name fields in the schema validates
// unconditionally, matching the rest of the loader's lenient stance
// on optional tables.
func (c *Context) validatorFor(label string) chain.Validator {
	probes := c.probesFor(label)
	if len(probes) == 0 {
		return nil
	}
	return func(addr uint64) bool {
		for _, p := range probes {
			raw, err := procmem.ReadFixedString(c.mem, addr+p.offset, p.chars, p.enc)
			if err != nil {
				continue
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			if p.ascii && !printableASCII(raw) {
				continue
			}
			return true
		}
		return false
	}
}

func (c *Context) probesFor(label string) []nameProbe {
	type fieldRef struct {
		category string
		name     string
		ascii    bool
	}
	var refs []fieldRef
	switch label {
	case "Player":
		refs = []fieldRef{
			{category: "Vitals", name: "LASTNAME"},
			{category: "Vitals", name: "FIRSTNAME"},
		}
	case "Team":
		refs = []fieldRef{{category: "Team Vitals", name: "TEAMNAME", ascii: true}}
	case "Staff":
		refs = []fieldRef{
			{category: "Staff Vitals", name: "FIRSTNAME"},
			{category: "Staff Vitals", name: "LASTNAME"},
		}
	case "Stadium":
		refs = []fieldRef{{category: "Stadium", name: "ARENANAME"}}
	}
	var probes []nameProbe
	for _, ref := range refs {
		spec := c.bundle.FindNormalized(ref.category, ref.name)
		if spec == nil || spec.Length <= 0 {
			continue
		}
		enc := procmem.EncodingUTF16
		if spec.Type == schema.TypeString {
			enc = procmem.EncodingASCII
		}
		probes = append(probes, nameProbe{
			offset: spec.Offset,
			chars:  spec.Length,
			enc:    enc,
			ascii:  ref.ascii,
		})
	}
	return probes
}

func printableASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return false
		}
	}
	return true
}

// teamNameForPointer reads the team name straight off the record a
// team-pointer field targets.
func (c *Context) teamNameForPointer(ptr uint64) (string, bool) {
	spec := c.teamNameSpec()
	if spec == nil || ptr == 0 {
		return "", false
	}
	name, err := procmem.ReadFixedString(c.mem, ptr+spec.Offset, spec.Length, teamNameEncoding(spec))
	if err != nil {
		return "", false
	}
	name = strings.TrimSpace(name)
	return name, name != ""
}

// pointerForTeamName walks team records comparing names until it
// finds label, stopping at the first unreadable record.
func (c *Context) pointerForTeamName(label string) (uint64, bool) {
	spec := c.teamNameSpec()
	if spec == nil {
		return 0, false
	}
	stride, err := c.Stride(Team)
	if err != nil {
		return 0, false
	}
	base, err := c.resolveBase("Team")
	if err != nil {
		return 0, false
	}
	want := strings.TrimSpace(label)
	for i := 0; i < teamScanLimit; i++ {
		addr := base + uint64(i)*uint64(stride)
		name, err := procmem.ReadFixedString(c.mem, addr+spec.Offset, spec.Length, teamNameEncoding(spec))
		if err != nil {
			return 0, false
		}
		if strings.EqualFold(strings.TrimSpace(name), want) {
			return addr, true
		}
	}
	return 0, false
}

func (c *Context) teamNameSpec() *schema.FieldSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bundle == nil {
		return nil
	}
	return c.bundle.FindNormalized("Team Vitals", "TEAMNAME")
}

func teamNameEncoding(spec *schema.FieldSpec) procmem.Encoding {
	if spec.Type == schema.TypeString {
		return procmem.EncodingASCII
	}
	return procmem.EncodingUTF16
}
