package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/modscript/internal/core/ecs"
	"github.com/l1jgo/modscript/internal/mod"
)

// ModRegistry resolves mod manifests.
type ModRegistry interface {
	Manifest(modID string) (*mod.Manifest, bool)
	ModIDs() []string
}

// DefinitionRegistry resolves script definitions.
type DefinitionRegistry interface {
	Definition(id string) (*mod.Definition, bool)
	IDsByKind(kind string) []string
}

// LoaderConfig tunes preloading.
type LoaderConfig struct {
	MaxParallelism     int    // 0 = min(NumCPU, 8)
	StrictDependencies bool   // missing dependency mods fail the mod instead of being skipped
	TempDir            string // where packaged libraries are extracted; "" = os.TempDir()
}

// PluginKey is the type cache key of a plugin script.
func PluginKey(modID, scriptPath string) string { return modID + ":" + scriptPath }

// ScriptFailure records one script that could not be loaded.
type ScriptFailure struct {
	ID    string
	ModID string
	Err   error
}

// Diagnostics returns the compiler messages when Err is a compilation error.
func (f ScriptFailure) Diagnostics() []string {
	var cerr *CompilationError
	if errors.As(f.Err, &cerr) {
		return cerr.Messages()
	}
	return nil
}

// PreloadReport summarizes one PreloadAllScripts run.
type PreloadReport struct {
	mu          sync.Mutex
	Definitions int
	CacheHits   int
	Compiled    int
	Plugins     int
	Failures    []ScriptFailure
	Elapsed     time.Duration
}

func (r *PreloadReport) hit() {
	r.mu.Lock()
	r.CacheHits++
	r.mu.Unlock()
}

func (r *PreloadReport) compiled(plugin bool) {
	r.mu.Lock()
	if plugin {
		r.Plugins++
	} else {
		r.Compiled++
	}
	r.mu.Unlock()
}

func (r *PreloadReport) fail(id, modID string, err error) {
	r.mu.Lock()
	r.Failures = append(r.Failures, ScriptFailure{ID: id, ModID: modID, Err: err})
	r.mu.Unlock()
}

// OK reports whether every script loaded.
func (r *PreloadReport) OK() bool { return len(r.Failures) == 0 }

// Loader compiles every script at startup and creates instances afterwards.
// Preloading is concurrent; everything else runs on the simulation goroutine.
type Loader struct {
	cfg       LoaderConfig
	mods      ModRegistry
	defs      DefinitionRegistry
	compiler  Compiler
	types     *TypeCache
	factories *FactoryCache
	refs      *ReferenceCache
	temps     *TempTracker
	log       *zap.Logger

	compiles atomic.Int64
	// source digest -> first key compiled from it
	digests sync.Map

	plugins map[string][]*Instance
}

func NewLoader(cfg LoaderConfig, mods ModRegistry, defs DefinitionRegistry, compiler Compiler, log *zap.Logger) *Loader {
	return &Loader{
		cfg:       cfg,
		mods:      mods,
		defs:      defs,
		compiler:  compiler,
		types:     NewTypeCache(),
		factories: NewFactoryCache(),
		refs:      NewReferenceCache(),
		temps:     NewTempTracker(log),
		log:       log,
		plugins:   make(map[string][]*Instance),
	}
}

func (l *Loader) Types() *TypeCache           { return l.types }
func (l *Loader) References() *ReferenceCache { return l.refs }
func (l *Loader) Temps() *TempTracker         { return l.temps }

// Compiles counts compiler invocations, including failed ones.
func (l *Loader) Compiles() int { return int(l.compiles.Load()) }

func (l *Loader) parallelism() int {
	n := min(runtime.NumCPU(), 8)
	if l.cfg.MaxParallelism > 0 && l.cfg.MaxParallelism < n {
		n = l.cfg.MaxParallelism
	}
	return n
}

// PreloadAllScripts compiles every script definition not yet cached, one
// worker per mod, then compiles plugin scripts. A failing script is recorded
// in the report and never stops the others. The returned error is only set
// when ctx is cancelled.
func (l *Loader) PreloadAllScripts(ctx context.Context) (*PreloadReport, error) {
	start := time.Now()
	ids := l.defs.IDsByKind(mod.KindScript)
	report := &PreloadReport{Definitions: len(ids)}

	var pending []string
	for _, id := range ids {
		if _, ok := l.types.TryGet(id); ok {
			report.CacheHits++
			continue
		}
		pending = append(pending, id)
	}

	if len(pending) == 0 {
		l.log.Debug("all scripts cached, skipping compilation", zap.Int("definitions", len(ids)))
	} else {
		groups := make(map[string][]*mod.Definition)
		for _, id := range pending {
			def, ok := l.defs.Definition(id)
			if !ok {
				l.recordFailure(report, id, "", fmt.Errorf("%w: %s", ErrDefinitionNotFound, id))
				continue
			}
			groups[def.ModID] = append(groups[def.ModID], def)
		}
		modIDs := make([]string, 0, len(groups))
		for id := range groups {
			modIDs = append(modIDs, id)
		}
		sort.Strings(modIDs)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.parallelism())
		for _, modID := range modIDs {
			defs := groups[modID]
			g.Go(func() error {
				l.preloadMod(gctx, modID, defs, report)
				return nil
			})
		}
		_ = g.Wait()
	}

	if ctx.Err() == nil {
		l.preloadPlugins(report)
	}
	report.Elapsed = time.Since(start)

	l.log.Info("scripts preloaded",
		zap.Int("definitions", report.Definitions),
		zap.Int("compiled", report.Compiled),
		zap.Int("cache_hits", report.CacheHits),
		zap.Int("plugins", report.Plugins),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, ctx.Err()
}

func (l *Loader) preloadMod(ctx context.Context, modID string, defs []*mod.Definition, report *PreloadReport) {
	m, ok := l.mods.Manifest(modID)
	if !ok {
		for _, def := range defs {
			l.recordFailure(report, def.ID, modID, fmt.Errorf("%w: %s", ErrManifestNotFound, modID))
		}
		return
	}
	refs, err := l.references(m)
	if err != nil {
		for _, def := range defs {
			l.recordFailure(report, def.ID, modID, err)
		}
		return
	}
	for _, def := range defs {
		if ctx.Err() != nil {
			return
		}
		// Another caller may have finished this one meanwhile.
		if _, ok := l.types.TryGet(def.ID); ok {
			report.hit()
			continue
		}
		if err := l.compileInto(def.ID, m, def.Path, refs); err != nil {
			l.recordFailure(report, def.ID, modID, err)
			continue
		}
		report.compiled(false)
	}
}

// preloadPlugins compiles plugin scripts straight from mod content. There are
// few of them, so this runs sequentially.
func (l *Loader) preloadPlugins(report *PreloadReport) {
	for _, modID := range l.mods.ModIDs() {
		m, ok := l.mods.Manifest(modID)
		if !ok || len(m.Plugins) == 0 {
			continue
		}
		refs, err := l.references(m)
		if err != nil {
			for _, p := range m.Plugins {
				l.recordFailure(report, PluginKey(modID, p), modID, err)
			}
			continue
		}
		for _, p := range m.Plugins {
			key := PluginKey(modID, p)
			if _, ok := l.types.TryGet(key); ok {
				report.hit()
				continue
			}
			if err := l.compileInto(key, m, p, refs); err != nil {
				l.recordFailure(report, key, modID, err)
				continue
			}
			report.compiled(true)
		}
	}
}

func (l *Loader) compileInto(key string, m *mod.Manifest, scriptPath string, refs ReferenceSet) error {
	src, err := m.Content.ReadText(scriptPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", scriptPath, err)
	}
	l.compiles.Add(1)
	t, err := l.compiler.Compile(src, m.ID+"/"+scriptPath, refs)
	if err != nil {
		return err
	}
	canonical := l.types.Put(key, t)
	digest := sourceDigest(t)
	l.log.Debug("script compiled",
		zap.String("script", key),
		zap.String("unit", canonical.Name()),
		zap.String("digest", digest),
		zap.Bool("duplicate", canonical != t),
	)
	if digest == "" {
		return nil
	}
	if first, loaded := l.digests.LoadOrStore(digest, key); loaded && first.(string) != key {
		l.log.Info("identical script source",
			zap.String("script", key),
			zap.String("same_as", first.(string)),
			zap.String("digest", digest),
		)
	}
	return nil
}

func sourceDigest(t CompiledType) string {
	if d, ok := t.(interface{ Digest() string }); ok {
		return d.Digest()
	}
	return ""
}

func (l *Loader) recordFailure(report *PreloadReport, id, modID string, err error) {
	report.fail(id, modID, err)
	fields := []zap.Field{zap.String("script", id), zap.String("mod", modID)}
	var cerr *CompilationError
	if errors.As(err, &cerr) {
		fields = append(fields, zap.Strings("diagnostics", cerr.Messages()))
		l.log.Error("script compilation failed", fields...)
		return
	}
	l.log.Error("script load failed", append(fields, zap.Error(err))...)
}

// references returns m's reference set, resolving it once per mod.
func (l *Loader) references(m *mod.Manifest) (ReferenceSet, error) {
	return l.refs.GetOrResolve(m.ID, func() (ReferenceSet, error) {
		return l.resolveReferences(m)
	})
}

// resolveReferences collects m's libraries followed by those of its
// dependencies, depth first. Cyclic dependencies are cut by the visited set.
func (l *Loader) resolveReferences(root *mod.Manifest) (ReferenceSet, error) {
	var (
		out     ReferenceSet
		visited = make(map[string]bool)
		walk    func(m *mod.Manifest) error
	)
	walk = func(m *mod.Manifest) error {
		if visited[m.ID] {
			return nil
		}
		visited[m.ID] = true
		for _, lib := range m.Libraries {
			ref, err := l.loadLibrary(m, lib)
			if err != nil {
				return err
			}
			if !out.Has(ref.Module) {
				out = append(out, ref)
			}
		}
		for _, dep := range m.Dependencies {
			dm, ok := l.mods.Manifest(dep)
			if !ok {
				if l.cfg.StrictDependencies {
					return fmt.Errorf("mod %s: %w: %s", m.ID, ErrDependencyNotFound, dep)
				}
				l.log.Warn("dependency mod not found, skipping", zap.String("mod", m.ID), zap.String("dependency", dep))
				continue
			}
			if err := walk(dm); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	l.log.Debug("references resolved", zap.String("mod", root.ID), zap.Strings("modules", out.Modules()))
	return out, nil
}

// LibraryModule is the require name of a library file.
func LibraryModule(modID, libPath string) string {
	base := path.Base(libPath)
	return modID + "." + strings.TrimSuffix(base, path.Ext(base))
}

// loadLibrary compiles one library. Packaged mods have the file extracted to
// a tracked temp file first, and the library is compiled from there.
func (l *Loader) loadLibrary(m *mod.Manifest, libPath string) (*Reference, error) {
	src, err := m.Content.ReadText(libPath)
	if err != nil {
		return nil, fmt.Errorf("mod %s: read library %s: %w", m.ID, libPath, err)
	}
	location := m.ID + "/" + libPath
	if m.Content.Packaged() {
		location, err = l.extract(m.ID, libPath, src)
		if err != nil {
			return nil, err
		}
		b, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("mod %s: read extracted %s: %w", m.ID, libPath, err)
		}
		src = string(b)
	}
	proto, err := l.compiler.CompileLibrary(src, location)
	if err != nil {
		return nil, fmt.Errorf("mod %s: library %s: %w", m.ID, libPath, err)
	}
	return &Reference{Module: LibraryModule(m.ID, libPath), ModID: m.ID, Path: location, Proto: proto}, nil
}

func (l *Loader) extract(modID, libPath, src string) (string, error) {
	f, err := os.CreateTemp(l.cfg.TempDir, "modscript-"+modID+"-*"+path.Ext(libPath))
	if err != nil {
		return "", fmt.Errorf("mod %s: extract %s: %w", modID, libPath, err)
	}
	l.temps.Track(modID, f.Name())
	_, werr := f.WriteString(src)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return "", fmt.Errorf("mod %s: extract %s: %w", modID, libPath, werr)
	}
	return f.Name(), nil
}

// CreateScriptInstance builds an unbound instance of a preloaded definition.
func (l *Loader) CreateScriptInstance(defID string) (*Instance, error) {
	t, ok := l.types.TryGet(defID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotLoaded, defID)
	}
	def, ok := l.defs.Definition(defID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, defID)
	}
	return l.instantiate(defID, def.ModID, t)
}

func (l *Loader) instantiate(id, modID string, t CompiledType) (*Instance, error) {
	ctor := l.factories.GetOrCreate(t)
	if ctor == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConstructor, id)
	}
	b, err := ctor()
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", id, err)
	}
	return newInstance(id, modID, b, l.log.With(zap.String("script", id))), nil
}

// AttachScript creates an instance of defID bound to entity, resolves its
// parameters and runs Initialize and RegisterEventHandlers. On failure
// nothing stays subscribed.
func (l *Loader) AttachScript(api API, entity ecs.EntityID, defID string, overrides map[string]any) (*Instance, error) {
	if entity.IsZero() {
		return nil, fmt.Errorf("%w: attach %s to the zero entity", ErrInvalidArgument, defID)
	}
	def, ok := l.defs.Definition(defID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, defID)
	}
	inst, err := l.CreateScriptInstance(defID)
	if err != nil {
		return nil, err
	}
	entityVars, _ := api.LookupEntityVars(entity)
	params, err := ResolveParams(def, overrides, entityVars)
	if err != nil {
		inst.Unload()
		return nil, err
	}
	ctx := &Context{
		API:      api,
		Scope:    EntityScope{ID: entity},
		ScriptID: defID,
		ModID:    def.ModID,
		Params:   params,
		Log:      l.log.With(zap.String("script", defID), zap.Uint64("entity", uint64(entity))),
	}
	if err := inst.Initialize(ctx); err != nil {
		inst.Unload()
		return nil, err
	}
	if err := inst.RegisterEventHandlers(ctx); err != nil {
		inst.Unload()
		return nil, err
	}
	return inst, nil
}

// InitializePluginScripts creates one instance per compiled plugin script of
// every mod not yet initialized. Plugins that failed to compile are skipped;
// plugins that fail to initialize are reported in the joined error.
func (l *Loader) InitializePluginScripts(api API) error {
	var errs []error
	for _, modID := range l.mods.ModIDs() {
		m, ok := l.mods.Manifest(modID)
		if !ok || len(m.Plugins) == 0 {
			continue
		}
		if _, done := l.plugins[modID]; done {
			continue
		}
		list := []*Instance{}
		for _, p := range m.Plugins {
			key := PluginKey(modID, p)
			t, ok := l.types.TryGet(key)
			if !ok {
				l.log.Warn("plugin script not loaded", zap.String("mod", modID), zap.String("script", key))
				continue
			}
			inst, err := l.startPlugin(api, modID, key, t)
			if err != nil {
				l.log.Error("plugin script failed to start", zap.String("mod", modID), zap.String("script", key), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			list = append(list, inst)
		}
		l.plugins[modID] = list
		l.log.Info("plugin scripts initialized", zap.String("mod", modID), zap.Int("count", len(list)))
	}
	return errors.Join(errs...)
}

func (l *Loader) startPlugin(api API, modID, key string, t CompiledType) (*Instance, error) {
	inst, err := l.instantiate(key, modID, t)
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		API:      api,
		Scope:    GlobalScope{},
		ScriptID: key,
		ModID:    modID,
		Params:   Params{},
		Log:      l.log.With(zap.String("script", key)),
	}
	if err := inst.Initialize(ctx); err != nil {
		inst.Unload()
		return nil, err
	}
	if err := inst.RegisterEventHandlers(ctx); err != nil {
		inst.Unload()
		return nil, err
	}
	return inst, nil
}

// PluginInstances returns the live plugin instances of modID.
func (l *Loader) PluginInstances(modID string) []*Instance {
	return append([]*Instance(nil), l.plugins[modID]...)
}

// UnloadModScripts unloads every plugin instance of modID, forgets its
// resolved references and deletes the mod's extracted temp files.
func (l *Loader) UnloadModScripts(modID string) {
	for _, inst := range l.plugins[modID] {
		if err := guard(func() error { inst.Unload(); return nil }); err != nil {
			l.log.Warn("plugin unload failed", zap.String("mod", modID), zap.String("script", inst.ID()), zap.Error(err))
		}
	}
	delete(l.plugins, modID)
	l.refs.Forget(modID)
	l.temps.Cleanup(modID)
}

// Shutdown unloads every plugin script and removes all temp files.
func (l *Loader) Shutdown() {
	modIDs := make([]string, 0, len(l.plugins))
	for id := range l.plugins {
		modIDs = append(modIDs, id)
	}
	sort.Strings(modIDs)
	for _, id := range modIDs {
		l.UnloadModScripts(id)
	}
	l.temps.CleanupAll()
}
