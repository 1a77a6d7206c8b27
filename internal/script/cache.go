package script

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// TypeCache maps definition ids (and "{modID}:{path}" plugin keys) to compiled
// types. Entries are never replaced; Clear drops everything.
type TypeCache struct {
	m     sync.Map
	count atomic.Int64
}

func NewTypeCache() *TypeCache { return &TypeCache{} }

func (c *TypeCache) TryGet(id string) (CompiledType, bool) {
	v, ok := c.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(CompiledType), true
}

// Put stores t unless another caller got there first, and returns the type
// that is now canonical for id.
func (c *TypeCache) Put(id string, t CompiledType) CompiledType {
	actual, loaded := c.m.LoadOrStore(id, t)
	if !loaded {
		c.count.Add(1)
	}
	return actual.(CompiledType)
}

func (c *TypeCache) Count() int { return int(c.count.Load()) }

func (c *TypeCache) Clear() {
	c.m.Range(func(k, _ any) bool {
		if _, ok := c.m.LoadAndDelete(k); ok {
			c.count.Add(-1)
		}
		return true
	})
}

// FactoryCache maps compiled types to their construction closures.
type FactoryCache struct {
	m sync.Map // CompiledType -> Constructor
}

func NewFactoryCache() *FactoryCache { return &FactoryCache{} }

// GetOrCreate returns the cached constructor for t, deriving it on first use.
// A nil result means t cannot be built without arguments.
func (c *FactoryCache) GetOrCreate(t CompiledType) Constructor {
	if v, ok := c.m.Load(t); ok {
		return v.(Constructor)
	}
	ctor := t.Constructor()
	if ctor == nil {
		return nil
	}
	v, _ := c.m.LoadOrStore(t, ctor)
	return v.(Constructor)
}

// ReferenceCache resolves each mod's reference set exactly once, even when
// several workers ask for it concurrently.
type ReferenceCache struct {
	sets        sync.Map // modID -> ReferenceSet
	group       singleflight.Group
	resolutions atomic.Int64
}

func NewReferenceCache() *ReferenceCache { return &ReferenceCache{} }

// GetOrResolve returns the cached set for modID or runs resolve to build it.
// A failed resolution is not cached.
func (c *ReferenceCache) GetOrResolve(modID string, resolve func() (ReferenceSet, error)) (ReferenceSet, error) {
	if v, ok := c.sets.Load(modID); ok {
		return v.(ReferenceSet), nil
	}
	v, err, _ := c.group.Do(modID, func() (any, error) {
		if v, ok := c.sets.Load(modID); ok {
			return v, nil
		}
		refs, err := resolve()
		if err != nil {
			return nil, err
		}
		c.resolutions.Add(1)
		c.sets.Store(modID, refs)
		return refs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ReferenceSet), nil
}

// Forget drops the cached set for modID.
func (c *ReferenceCache) Forget(modID string) {
	c.sets.Delete(modID)
}

// Resolutions counts successful resolver runs.
func (c *ReferenceCache) Resolutions() int { return int(c.resolutions.Load()) }
