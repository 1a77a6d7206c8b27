package script

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTypeCache_PutKeepsFirst(t *testing.T) {
	c := NewTypeCache()
	a := NativeType("a", func() Behavior { return &recorder{} })
	b := NativeType("b", func() Behavior { return &recorder{} })

	assert.Same(t, a, c.Put("core:guard", a))
	assert.Same(t, a, c.Put("core:guard", b))
	assert.Equal(t, 1, c.Count())

	got, ok := c.TryGet("core:guard")
	require.True(t, ok)
	assert.Same(t, a, got)

	c.Clear()
	assert.Equal(t, 0, c.Count())
	_, ok = c.TryGet("core:guard")
	assert.False(t, ok)
}

type countingType struct {
	calls atomic.Int32
	ctor  Constructor
}

func (c *countingType) Name() string { return "counting" }
func (c *countingType) Constructor() Constructor {
	c.calls.Add(1)
	return c.ctor
}

func TestFactoryCache_DerivesOnce(t *testing.T) {
	f := NewFactoryCache()
	typ := &countingType{ctor: func() (Behavior, error) { return &recorder{}, nil }}

	for range 5 {
		require.NotNil(t, f.GetOrCreate(typ))
	}
	assert.EqualValues(t, 1, typ.calls.Load())

	assert.Nil(t, f.GetOrCreate(NativeType("abstract", nil)))
}

func TestReferenceCache_ResolvesOncePerMod(t *testing.T) {
	c := NewReferenceCache()
	var calls atomic.Int32
	resolve := func() (ReferenceSet, error) {
		calls.Add(1)
		return ReferenceSet{{Module: "core.util"}}, nil
	}

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := c.GetOrResolve("core", resolve)
			assert.NoError(t, err)
			assert.Equal(t, []string{"core.util"}, refs.Modules())
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 1, c.Resolutions())
}

func TestReferenceCache_ErrorsAreNotCached(t *testing.T) {
	c := NewReferenceCache()
	boom := errors.New("boom")

	_, err := c.GetOrResolve("core", func() (ReferenceSet, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	refs, err := c.GetOrResolve("core", func() (ReferenceSet, error) { return ReferenceSet{}, nil })
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, 1, c.Resolutions())
}

func TestTempTracker_Cleanup(t *testing.T) {
	dir := t.TempDir()
	tr := NewTempTracker(zaptest.NewLogger(t))

	mk := func(name string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		return p
	}
	a, b, c := mk("a.lua"), mk("b.lua"), mk("c.lua")
	tr.Track("alpha", a)
	tr.Track("alpha", b)
	tr.Track("beta", c)
	tr.Track("beta", filepath.Join(dir, "never-created.lua"))

	tr.Cleanup("alpha")
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.FileExists(t, c)
	assert.Empty(t, tr.Tracked("alpha"))

	tr.CleanupAll()
	assert.NoFileExists(t, c)
	assert.Empty(t, tr.Tracked("beta"))
}
