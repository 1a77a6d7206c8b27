package data

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/modscript/internal/vars"
)

// SpawnEntry places one (or Count) scripted entities into the simulation.
type SpawnEntry struct {
	Label   string        `yaml:"label"`
	X       int32         `yaml:"x"`
	Y       int32         `yaml:"y"`
	Facing  string        `yaml:"facing"`
	Count   int           `yaml:"count"` // 0 or 1 = single entity; more get "-N" label suffixes
	Vars    []VarEntry    `yaml:"vars"`
	Scripts []ScriptEntry `yaml:"scripts"`
}

// VarEntry is a typed entity variable set before scripts attach, e.g. a
// "{scriptId}.{param}" parameter override.
type VarEntry struct {
	Key   string `yaml:"key"`
	Type  string `yaml:"type"`
	Value any    `yaml:"value"`
}

// ScriptEntry attaches a script definition with optional parameter overrides.
type ScriptEntry struct {
	ID     string         `yaml:"id"`
	Params map[string]any `yaml:"params"`
}

type spawnListFile struct {
	Spawns []SpawnEntry `yaml:"spawns"`
}

// SpawnList holds validated spawn entries in file order.
type SpawnList struct {
	entries []SpawnEntry
}

// LoadSpawnList loads spawn entries from a YAML file.
func LoadSpawnList(path string) (*SpawnList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn_list: %w", err)
	}
	l, err := ParseSpawnList(raw)
	if err != nil {
		return nil, fmt.Errorf("spawn_list %s: %w", path, err)
	}
	return l, nil
}

func ParseSpawnList(raw []byte) (*SpawnList, error) {
	var f spawnListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn_list: %w", err)
	}
	var errs []error
	seen := make(map[string]bool, len(f.Spawns))
	for i := range f.Spawns {
		e := &f.Spawns[i]
		if e.Label == "" {
			errs = append(errs, fmt.Errorf("spawn #%d: empty label", i+1))
			continue
		}
		if seen[e.Label] {
			errs = append(errs, fmt.Errorf("spawn %q: duplicate label", e.Label))
		}
		seen[e.Label] = true
		if e.Count < 0 {
			errs = append(errs, fmt.Errorf("spawn %q: negative count", e.Label))
		}
		if _, err := vars.ParseDirection(e.Facing); err != nil {
			errs = append(errs, fmt.Errorf("spawn %q: %w", e.Label, err))
		}
		if _, err := e.TypedVars(); err != nil {
			errs = append(errs, fmt.Errorf("spawn %q: %w", e.Label, err))
		}
		for _, s := range e.Scripts {
			if !strings.Contains(s.ID, ":") {
				errs = append(errs, fmt.Errorf("spawn %q: script id %q is not {mod}:{name}", e.Label, s.ID))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &SpawnList{entries: f.Spawns}, nil
}

// Entries returns the spawn entries in file order.
func (l *SpawnList) Entries() []SpawnEntry { return l.entries }

// Count returns the number of entities the list spawns.
func (l *SpawnList) Count() int {
	n := 0
	for _, e := range l.entries {
		n += max(e.Count, 1)
	}
	return n
}

// Labels expands Count into one label per entity.
func (e SpawnEntry) Labels() []string {
	if e.Count <= 1 {
		return []string{e.Label}
	}
	out := make([]string, e.Count)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", e.Label, i+1)
	}
	return out
}

// Direction returns the parsed facing; invalid names were rejected on load.
func (e SpawnEntry) Direction() vars.Direction {
	d, _ := vars.ParseDirection(e.Facing)
	return d
}

// TypedVars converts Vars to tagged values.
func (e SpawnEntry) TypedVars() (map[string]vars.Value, error) {
	out := make(map[string]vars.Value, len(e.Vars))
	for _, v := range e.Vars {
		if v.Key == "" {
			return nil, errors.New("variable with empty key")
		}
		tag, err := vars.ParseTag(v.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Key, err)
		}
		val, err := vars.Convert(tag, v.Value)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Key, err)
		}
		out[v.Key] = val
	}
	return out, nil
}
