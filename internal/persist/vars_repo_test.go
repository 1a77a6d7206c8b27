package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l1jgo/modscript/internal/vars"
)

func TestValueCodec(t *testing.T) {
	for _, v := range []vars.Value{
		vars.Int(42),
		vars.Float(2.5),
		vars.Bool(true),
		vars.String("north gate"),
		vars.DirectionValue(vars.DirectionLeft),
	} {
		raw, err := EncodeValue(v)
		require.NoError(t, err)
		got, err := DecodeValue(v.Tag.String(), raw)
		require.NoError(t, err, string(raw))
		assert.Equal(t, v, got)
	}
}

func TestDecodeValue_TagMismatch(t *testing.T) {
	_, err := DecodeValue("int", []byte(`"abc"`))
	assert.Error(t, err)

	_, err = DecodeValue("int", []byte(`1.5`))
	assert.Error(t, err)

	_, err = DecodeValue("matrix", []byte(`1`))
	assert.Error(t, err)
}

func TestScopeNames(t *testing.T) {
	assert.Equal(t, "entity:gate-guard", EntityScope("gate-guard"))
	assert.NotEqual(t, GlobalScope, EntityScope("global"))
}
