package script

import (
	"fmt"
	"math"

	"github.com/l1jgo/modscript/internal/mod"
	"github.com/l1jgo/modscript/internal/vars"
)

// Params is the merged parameter set of one script instance.
type Params map[string]vars.Value

// ParamOverrideKey is the entity variable that overrides a declared parameter.
func ParamOverrideKey(defID, param string) string {
	return defID + "." + param
}

// ResolveParams merges, lowest precedence first: declared defaults, the
// overrides supplied at attach time, and per-entity stored overrides.
// entityVars may be nil.
func ResolveParams(def *mod.Definition, overrides map[string]any, entityVars *vars.Store) (Params, error) {
	out := make(Params, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Default == nil {
			continue
		}
		v, err := vars.Convert(p.Type, p.Default)
		if err != nil {
			return nil, fmt.Errorf("%s: default for %q: %w: %v", def.ID, p.Name, ErrParameterType, err)
		}
		out[p.Name] = v
	}
	for name, raw := range overrides {
		p, ok := def.Param(name)
		if !ok {
			return nil, fmt.Errorf("%s: %w %q", def.ID, ErrUnknownParameter, name)
		}
		v, err := vars.Convert(p.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: override %q: %w: %v", def.ID, name, ErrParameterType, err)
		}
		if err := checkRange(def.ID, p, v); err != nil {
			return nil, err
		}
		out[name] = v
	}
	if entityVars == nil {
		return out, nil
	}
	for _, p := range def.Parameters {
		v, ok := entityVars.Get(ParamOverrideKey(def.ID, p.Name))
		if !ok {
			continue
		}
		if v.Tag != p.Type {
			return nil, fmt.Errorf("%s: entity override %q: %w: stored %s, declared %s",
				def.ID, p.Name, ErrParameterType, v.Tag, p.Type)
		}
		if err := checkRange(def.ID, p, v); err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

func checkRange(defID string, p mod.ParamSpec, v vars.Value) error {
	n, ok := v.Number()
	if !ok {
		return nil
	}
	if (p.Min != nil && n < *p.Min) || (p.Max != nil && n > *p.Max) {
		return fmt.Errorf("%s: %w: %q = %v not in [%s, %s]",
			defID, ErrParameterRange, p.Name, n, bound(p.Min, math.Inf(-1)), bound(p.Max, math.Inf(1)))
	}
	return nil
}

func bound(b *float64, def float64) string {
	if b == nil {
		return fmt.Sprint(def)
	}
	return fmt.Sprint(*b)
}

// Int reads name as an integer. Floats are truncated. Missing or non-numeric
// parameters yield def.
func (p Params) Int(name string, def int64) int64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch x := v.V.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	}
	return def
}

func (p Params) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	if n, ok := v.Number(); ok {
		return n
	}
	return def
}

func (p Params) Bool(name string, def bool) bool {
	if v, ok := p[name]; ok {
		if b, ok := v.V.(bool); ok {
			return b
		}
	}
	return def
}

func (p Params) String(name string, def string) string {
	if v, ok := p[name]; ok {
		if s, ok := v.V.(string); ok {
			return s
		}
	}
	return def
}

// Direction accepts direction values and direction names.
func (p Params) Direction(name string, def vars.Direction) vars.Direction {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch x := v.V.(type) {
	case vars.Direction:
		return x
	case string:
		if d, err := vars.ParseDirection(x); err == nil {
			return d
		}
	}
	return def
}
