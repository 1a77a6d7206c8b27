package mod

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Registry holds every loaded mod and the script definitions they declare.
// It is populated at startup and read-only afterwards.
type Registry struct {
	mods    map[string]*Manifest
	order   []string
	defs    map[string]*Definition
	byKind  map[string][]string
	closers []io.Closer
}

func NewRegistry() *Registry {
	return &Registry{
		mods:   make(map[string]*Manifest),
		defs:   make(map[string]*Definition),
		byKind: make(map[string][]string),
	}
}

// Add registers a manifest whose Content is already set.
func (r *Registry) Add(m *Manifest) error {
	if m.Content == nil {
		return fmt.Errorf("mod %q has no content source", m.ID)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if _, dup := r.mods[m.ID]; dup {
		return fmt.Errorf("duplicate mod id %q (%s)", m.ID, m.Content.Location())
	}
	defs, err := m.Definitions()
	if err != nil {
		return err
	}
	if dec, ok := m.Content.(interface{ setEncoding(string) error }); ok {
		if err := dec.setEncoding(m.Encoding); err != nil {
			return fmt.Errorf("mod %q: %w", m.ID, err)
		}
	}
	r.mods[m.ID] = m
	r.order = append(r.order, m.ID)
	for _, d := range defs {
		r.defs[d.ID] = d
		r.byKind[d.Kind] = append(r.byKind[d.Kind], d.ID)
	}
	return nil
}

// Discover loads every mod directly under root: directories containing a
// mod.yaml and *.zip archives. Broken mods are logged and skipped.
func Discover(root string, log *zap.Logger) (*Registry, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read mods dir %s: %w", root, err)
	}
	r := NewRegistry()
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		var (
			m    *Manifest
			lerr error
		)
		switch {
		case e.IsDir():
			m, lerr = loadDir(full)
		case strings.EqualFold(filepath.Ext(e.Name()), ".zip"):
			m, lerr = r.loadArchive(full)
		default:
			continue
		}
		if errors.Is(lerr, os.ErrNotExist) {
			log.Debug("skipping directory without manifest", zap.String("path", full))
			continue
		}
		if lerr == nil {
			lerr = r.Add(m)
		}
		if lerr != nil {
			log.Error("failed to load mod", zap.String("path", full), zap.Error(lerr))
			continue
		}
		log.Debug("mod loaded",
			zap.String("mod", m.ID),
			zap.String("version", m.Version),
			zap.Bool("packaged", m.Content.Packaged()),
			zap.Int("scripts", len(m.Scripts)),
			zap.Int("plugins", len(m.Plugins)),
		)
	}
	return r, nil
}

func loadDir(dir string) (*Manifest, error) {
	src := NewDirSource(dir)
	data, err := src.ReadBytes(ManifestFile)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.Content = src
	return m, nil
}

func (r *Registry) loadArchive(p string) (*Manifest, error) {
	src, err := OpenArchive(p)
	if err != nil {
		return nil, err
	}
	data, err := src.ReadBytes(ManifestFile)
	if err == nil {
		var m *Manifest
		if m, err = ParseManifest(data); err == nil {
			m.Content = src
			r.closers = append(r.closers, src)
			return m, nil
		}
	}
	src.Close()
	return nil, err
}

// Manifest returns the mod with the given id.
func (r *Registry) Manifest(modID string) (*Manifest, bool) {
	m, ok := r.mods[modID]
	return m, ok
}

// ModIDs returns mod ids in load order.
func (r *Registry) ModIDs() []string {
	return append([]string(nil), r.order...)
}

// Definition returns the definition with the given id.
func (r *Registry) Definition(id string) (*Definition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// IDsByKind returns the ids of every definition of kind, sorted.
func (r *Registry) IDsByKind(kind string) []string {
	ids := append([]string(nil), r.byKind[kind]...)
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered mods.
func (r *Registry) Count() int { return len(r.mods) }

// Close releases archive handles.
func (r *Registry) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}
