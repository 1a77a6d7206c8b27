package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/modscript/internal/mod"
	"github.com/l1jgo/modscript/internal/vars"
)

func ptr(f float64) *float64 { return &f }

func guardDefinition() *mod.Definition {
	return &mod.Definition{
		ID:    "core:guard",
		Kind:  mod.KindScript,
		ModID: "core",
		Parameters: []mod.ParamSpec{
			{Name: "speed", Type: vars.TagFloat, Default: 1.0, Min: ptr(0), Max: ptr(5)},
			{Name: "range", Type: vars.TagInt, Default: 3},
			{Name: "alert", Type: vars.TagBool},
			{Name: "facing", Type: vars.TagDirection, Default: "up"},
		},
	}
}

func TestResolveParams_Precedence(t *testing.T) {
	def := guardDefinition()
	store := vars.NewStore()
	store.Set(ParamOverrideKey(def.ID, "speed"), vars.Float(2.5))

	p, err := ResolveParams(def, map[string]any{"speed": 4.0, "range": "7"}, store)
	require.NoError(t, err)

	assert.Equal(t, 2.5, p.Float("speed", 1.0))
	assert.Equal(t, int64(7), p.Int("range", 0))
	assert.Equal(t, vars.DirectionUp, p.Direction("facing", vars.DirectionNone))
	assert.True(t, p.Bool("alert", true), "undeclared default falls back to the caller's")
	assert.Equal(t, "x", p.String("missing", "x"))
}

func TestResolveParams_Range(t *testing.T) {
	def := guardDefinition()

	_, err := ResolveParams(def, map[string]any{"speed": 9.5}, nil)
	assert.ErrorIs(t, err, ErrParameterRange)

	_, err = ResolveParams(def, map[string]any{"speed": -1}, nil)
	assert.ErrorIs(t, err, ErrParameterRange)

	p, err := ResolveParams(def, map[string]any{"speed": 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, p.Float("speed", 0))

	store := vars.NewStore()
	store.Set(ParamOverrideKey(def.ID, "speed"), vars.Float(6))
	_, err = ResolveParams(def, nil, store)
	assert.ErrorIs(t, err, ErrParameterRange)
}

func TestResolveParams_TypeErrors(t *testing.T) {
	def := guardDefinition()

	_, err := ResolveParams(def, map[string]any{"range": "far"}, nil)
	assert.ErrorIs(t, err, ErrParameterType)

	_, err = ResolveParams(def, map[string]any{"colour": "red"}, nil)
	assert.ErrorIs(t, err, ErrUnknownParameter)

	store := vars.NewStore()
	store.Set(ParamOverrideKey(def.ID, "range"), vars.String("far"))
	_, err = ResolveParams(def, nil, store)
	assert.ErrorIs(t, err, ErrParameterType)
}

func TestParams_Coercion(t *testing.T) {
	p := Params{
		"f": vars.Float(2.9),
		"i": vars.Int(4),
		"d": vars.String("west"),
		"s": vars.Bool(true),
	}
	assert.Equal(t, int64(2), p.Int("f", 0))
	assert.Equal(t, 4.0, p.Float("i", 0))
	assert.Equal(t, vars.DirectionLeft, p.Direction("d", vars.DirectionNone))
	assert.Equal(t, "dflt", p.String("s", "dflt"))
	assert.False(t, p.Bool("i", false))
}
