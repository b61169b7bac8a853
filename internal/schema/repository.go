package schema

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Split schema file manifest: one league file carrying versions and
// base pointers, plus per-domain field files merged into one payload.
const SplitLeagueFile = "offsets_league.json"

var SplitDomainFiles = []string{
	"offsets_players.json",
	"offsets_teams.json",
	"offsets_staff.json",
	"offsets_stadiums.json",
	"offsets_history.json",
	"offsets_shoes.json",
}

const DropdownsFile = "dropdowns.json"

// Repository locates and loads schema bundles from configured search
// directories, consulting the cache before touching disk.
type Repository struct {
	cache *Cache
	log   *slog.Logger
}

func NewRepository(cache *Cache, log *slog.Logger) *Repository {
	if cache == nil {
		cache = NewCache()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Repository{cache: cache, log: log}
}

func (r *Repository) Cache() *Cache { return r.cache }

// LoadBundle returns the bundle for a target executable. The cache is
// checked first by lower-cased target key; on a miss, searchDirs ×
// candidates are walked in order and the first file the resolver
// accepts wins. Missing or unparsable files are skipped; a payload
// the resolver accepted but that fails required-key validation is
// fatal.
func (r *Repository) LoadBundle(target string, searchDirs, candidates []string, res *Resolver) (string, *Bundle, error) {
	targetKey := strings.ToLower(target)
	if targetKey != "" {
		if cached, ok := r.cache.Target(targetKey); ok {
			return cached.Path, cached.Bundle, nil
		}
	}
	for _, dir := range searchDirs {
		if path, payload, ok := r.buildSplitPayload(dir); ok {
			if b, err := r.acceptPayload(path, payload, target, targetKey, res); b != nil || err != nil {
				return path, b, err
			}
		}
		for _, name := range candidates {
			path := filepath.Join(dir, name)
			payload := r.readJSON(path)
			if payload == nil {
				continue
			}
			if b, err := r.acceptPayload(path, payload, target, targetKey, res); b != nil || err != nil {
				return path, b, err
			}
		}
	}
	return "", nil, &Error{Key: target, Msg: "no schema file accepted for"}
}

func (r *Repository) acceptPayload(path string, payload map[string]any, target, targetKey string, res *Resolver) (*Bundle, error) {
	b := res.Resolve(payload, target)
	if b == nil {
		return nil, nil
	}
	if err := b.ValidateRequired(); err != nil {
		return nil, err
	}
	if targetKey != "" {
		r.cache.SetTarget(CachedPayload{Path: path, TargetKey: targetKey, Bundle: b})
	}
	r.log.Info("schema loaded",
		"path", path,
		"target", target,
		"version", b.Version,
		"categories", len(b.Categories))
	return b, nil
}

// LoadDropdowns returns the enum label table from the first readable
// dropdowns file, or an empty table.
func (r *Repository) LoadDropdowns(searchDirs []string) DropdownTable {
	for _, dir := range searchDirs {
		path := filepath.Join(dir, DropdownsFile)
		if cached, ok := r.cache.Dropdowns(path); ok {
			return cached
		}
		raw := r.readJSON(path)
		if raw == nil {
			continue
		}
		table := parseDropdowns(raw)
		if len(table) > 0 {
			r.cache.SetDropdowns(path, table)
			return table
		}
	}
	return DropdownTable{}
}

// readJSON parses a JSON object file through the cache. Any failure
// yields nil; callers treat that as "candidate skipped".
func (r *Repository) readJSON(path string) map[string]any {
	if cached, ok := r.cache.JSON(path); ok {
		return cached
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		r.log.Warn("schema file unparsable", "path", path, "error", err)
		return nil
	}
	r.cache.SetJSON(path, doc)
	return doc
}

func parseDropdowns(raw map[string]any) DropdownTable {
	out := DropdownTable{}
	for category, v := range raw {
		inner := asMap(v)
		if inner == nil {
			continue
		}
		fields := map[string][]string{}
		for name, values := range inner {
			list := asList(values)
			if list == nil {
				continue
			}
			labels := make([]string, 0, len(list))
			for _, item := range list {
				labels = append(labels, asString(item))
			}
			fields[strings.ToLower(strings.TrimSpace(name))] = labels
		}
		if len(fields) > 0 {
			out[strings.ToLower(strings.TrimSpace(category))] = fields
		}
	}
	return out
}

// Watcher invalidates cached schema state when files change on disk.
type Watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts watching the given directories for schema file
// changes. A changed, created, or removed .json file drops every
// cache entry derived from it, so the next load re-reads disk.
func (r *Repository) Watch(dirs []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			r.log.Warn("schema watch skipped", "dir", dir, "error", err)
		}
	}
	w := &Watcher{fs: fw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Ext(ev.Name) != ".json" {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				r.log.Info("schema file changed", "path", ev.Name, "op", ev.Op.String())
				r.cache.InvalidatePath(ev.Name)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				r.log.Warn("schema watch error", "error", err)
			}
		}
	}()
	return w, nil
}

// Close stops the watcher and waits for the event loop to drain.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}
