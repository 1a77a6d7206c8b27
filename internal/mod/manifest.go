package mod

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/l1jgo/modscript/internal/vars"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest name at the root of every mod.
const ManifestFile = "mod.yaml"

// KindScript is the definition kind for entity-attachable behavior scripts.
const KindScript = "Script"

// Manifest describes one mod as declared in its mod.yaml.
type Manifest struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Version      string        `yaml:"version"`
	Encoding     string        `yaml:"encoding"`     // text encoding of scripts, default utf-8
	Dependencies []string      `yaml:"dependencies"` // mod ids
	Libraries    []string      `yaml:"libraries"`    // Lua library files other scripts may require
	Plugins      []string      `yaml:"plugins"`      // world-global scripts, one instance each
	Scripts      []ScriptEntry `yaml:"scripts"`

	Content ContentSource `yaml:"-"`
}

// ScriptEntry declares one entity-attachable script.
type ScriptEntry struct {
	Name       string      `yaml:"name"`
	Path       string      `yaml:"path"`
	Parameters []ParamDecl `yaml:"parameters"`
}

// ParamDecl is the YAML form of a parameter declaration.
type ParamDecl struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Default any      `yaml:"default"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
}

// ParamSpec is a validated parameter declaration.
type ParamSpec struct {
	Name    string
	Type    vars.Tag
	Default any // nil when no default is declared
	Min     *float64
	Max     *float64
}

// Definition is the registered metadata of one script. Immutable once built.
type Definition struct {
	ID         string // "{modID}:{name}"
	Kind       string
	ModID      string
	Path       string
	Parameters []ParamSpec
}

// Param returns the declaration for name.
func (d *Definition) Param(name string) (ParamSpec, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// DefinitionID joins a mod id and a script name.
func DefinitionID(modID, name string) string {
	return modID + ":" + name
}

// ParseManifest decodes and validates a mod.yaml body.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks ids, paths and parameter declarations.
func (m *Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.ID) == "" {
		errs = append(errs, errors.New("mod id is empty"))
	} else if strings.ContainsAny(m.ID, ": /") {
		errs = append(errs, fmt.Errorf("mod id %q must not contain ':', '/' or spaces", m.ID))
	}
	for _, p := range append(append([]string{}, m.Libraries...), m.Plugins...) {
		if _, err := cleanPath(p); err != nil {
			errs = append(errs, err)
		}
	}
	seen := make(map[string]bool, len(m.Scripts))
	for _, s := range m.Scripts {
		if s.Name == "" {
			errs = append(errs, errors.New("script with empty name"))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate script %q", s.Name))
		}
		seen[s.Name] = true
		if _, err := cleanPath(s.Path); err != nil {
			errs = append(errs, fmt.Errorf("script %q: %w", s.Name, err))
		}
		for _, p := range s.Parameters {
			if _, err := p.spec(); err != nil {
				errs = append(errs, fmt.Errorf("script %q: %w", s.Name, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("mod %q: %w", m.ID, errors.Join(errs...))
	}
	return nil
}

func (p ParamDecl) spec() (ParamSpec, error) {
	if p.Name == "" {
		return ParamSpec{}, errors.New("parameter with empty name")
	}
	tag, err := vars.ParseTag(p.Type)
	if err != nil {
		return ParamSpec{}, fmt.Errorf("parameter %q: %w", p.Name, err)
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return ParamSpec{}, fmt.Errorf("parameter %q: min %v > max %v", p.Name, *p.Min, *p.Max)
	}
	if p.Default != nil {
		if _, err := vars.Convert(tag, p.Default); err != nil {
			return ParamSpec{}, fmt.Errorf("parameter %q default: %w", p.Name, err)
		}
	}
	return ParamSpec{Name: p.Name, Type: tag, Default: p.Default, Min: p.Min, Max: p.Max}, nil
}

// Definitions builds the script definitions this manifest declares.
func (m *Manifest) Definitions() ([]*Definition, error) {
	out := make([]*Definition, 0, len(m.Scripts))
	for _, s := range m.Scripts {
		d := &Definition{
			ID:    DefinitionID(m.ID, s.Name),
			Kind:  KindScript,
			ModID: m.ID,
			Path:  path.Clean(s.Path),
		}
		for _, p := range s.Parameters {
			spec, err := p.spec()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.ID, err)
			}
			d.Parameters = append(d.Parameters, spec)
		}
		out = append(out, d)
	}
	return out, nil
}
