// Package sync implements the package synchronization engine: it computes
// which source and binary packages should be copied from a source archive
// into a dak-managed target archive, and drives their import through the
// dak facade.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/aptly-dev/aptly/deb"
	"github.com/archtower/aptsync/debext"
	"github.com/archtower/aptsync/internal/archive"
	"github.com/archtower/aptsync/internal/config"
	"github.com/archtower/aptsync/internal/dak"
)

// errNamesEmpty is returned when sync_packages is called with no names; the
// spec treats this as a precondition violation, not a skip.
var errNamesEmpty = errors.New("sync: names must not be empty")

// engineState names the linear per-batch state machine. It is logged at
// slog.Debug on each transition for operator visibility; it drives no
// branching of its own.
type engineState int

const (
	stateIdle engineState = iota
	stateIndexingSources
	stateIndexingBinaries
	stateImporting
	stateDone
	stateFailed
)

func (s engineState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateIndexingSources:
		return "indexing_sources"
	case stateIndexingBinaries:
		return "indexing_binaries"
	case stateImporting:
		return "importing"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func transition(state *engineState, next engineState, fields ...any) {
	*state = next
	slog.Debug("sync engine state", append([]any{"state", next.String()}, fields...)...)
}

// binaryExpectation is a source package's declared expectation that a named
// binary package exists at a particular version (normally the source's own
// version, unless the binary index shows a binNMU-bumped build).
type binaryExpectation struct {
	name    string
	version string
}

// Engine orchestrates the selection -> fetch -> import pipeline described
// by its configuration. It is constructed fresh for a run and holds no
// mutable state beyond the immutable configuration it was built with.
type Engine struct {
	cfg    *config.SyncConfig
	source archive.Facade
	target archive.Facade
	dak    dak.Facade
	pool   pond.Pool
}

// New creates a sync Engine for one run, reading from source and comparing
// against target, importing via the dak facade.
func New(cfg *config.SyncConfig, source, target archive.Facade, dakFacade dak.Facade, pool pond.Pool) *Engine {
	return &Engine{cfg: cfg, source: source, target: target, dak: dakFacade, pool: pool}
}

// SyncPackages imports the named packages of component from the source
// archive into the target archive. force bypasses the "target already at
// or ahead of source" version check, but never the autosync fork-preservation
// check, which targeted sync does not apply at all.
func (e *Engine) SyncPackages(ctx context.Context, component string, names []string, force bool) (bool, error) {
	if !e.cfg.Enabled {
		return false, &SyncDisabledError{}
	}
	if len(names) == 0 {
		return false, errNamesEmpty
	}

	state := stateIdle
	transition(&state, stateIndexingSources, "component", component)

	sourceIdx, err := e.sourceIndex(ctx, e.source, e.cfg.Source.SuiteName, component)
	if err != nil {
		transition(&state, stateFailed, "component", component, "error", err)
		return false, nil
	}
	targetIdx, err := e.sourceIndex(ctx, e.target, e.cfg.TargetSuite.Name, component)
	if err != nil {
		transition(&state, stateFailed, "component", component, "error", err)
		return false, nil
	}

	var synced []*deb.Package

	transition(&state, stateImporting, "component", component)
	for _, name := range names {
		spkg, ok := sourceIdx[name]
		if !ok {
			slog.Info("package not found in source, skipping", "name", name, "component", component)
			continue
		}

		if tpkg, ok := targetIdx[name]; ok && !force && debext.CompareVersions(tpkg.Version, spkg.Version) >= 0 {
			slog.Info("target already up to date, skipping", "name", name, "target_version", tpkg.Version, "source_version", spkg.Version)
			continue
		}

		if !e.importSourcePackage(ctx, spkg, component) {
			transition(&state, stateFailed, "component", component, "package", name)
			return false, nil
		}
		synced = append(synced, spkg)
	}

	transition(&state, stateIndexingBinaries, "component", component)
	ok := e.importBinariesForSources(ctx, component, synced)
	if !ok {
		transition(&state, stateFailed, "component", component)
		return false, nil
	}

	transition(&state, stateDone, "component", component)
	return true, nil
}

// Autosync walks every component of the target suite, importing every
// source package that is newer upstream and not a locally modified fork,
// along with its binaries.
func (e *Engine) Autosync(ctx context.Context) (bool, error) {
	if !e.cfg.Enabled {
		return false, &SyncDisabledError{}
	}

	for _, component := range e.cfg.TargetSuite.Components {
		state := stateIdle
		transition(&state, stateIndexingSources, "component", component)

		sourceIdx, err := e.sourceIndex(ctx, e.source, e.cfg.Source.SuiteName, component)
		if err != nil {
			transition(&state, stateFailed, "component", component, "error", err)
			return false, nil
		}
		targetIdx, err := e.sourceIndex(ctx, e.target, e.cfg.TargetSuite.Name, component)
		if err != nil {
			transition(&state, stateFailed, "component", component, "error", err)
			return false, nil
		}

		var synced []*deb.Package

		transition(&state, stateImporting, "component", component)
		for name, spkg := range sourceIdx {
			if tpkg, ok := targetIdx[name]; ok {
				if debext.CompareVersions(tpkg.Version, spkg.Version) >= 0 {
					slog.Debug("target at or ahead of source, skipping", "name", name, "target_version", tpkg.Version, "source_version", spkg.Version)
					continue
				}
				if e.cfg.DistroTag != "" && strings.Contains(debext.DebianRevision(tpkg.Version), e.cfg.DistroTag) {
					slog.Info("target has modifications, skipping", "name", name, "target_version", tpkg.Version, "distro_tag", e.cfg.DistroTag)
					continue
				}
			}

			if !e.importSourcePackage(ctx, spkg, component) {
				transition(&state, stateFailed, "component", component, "package", name)
				return false, nil
			}
			synced = append(synced, spkg)
		}

		transition(&state, stateIndexingBinaries, "component", component)
		if !e.importBinariesForSources(ctx, component, synced) {
			transition(&state, stateFailed, "component", component)
			return false, nil
		}

		transition(&state, stateDone, "component", component)
	}

	return true, nil
}

// sourceIndex builds a name -> newest source package map for one (facade,
// suite, component).
func (e *Engine) sourceIndex(ctx context.Context, facade archive.Facade, suite, component string) (map[string]*deb.Package, error) {
	pkgs, err := facade.SourcePackages(ctx, suite, component)
	if err != nil {
		slog.Error("failed to index source packages", "location", facade.BaseLocation(), "component", component, "error", err)
		return nil, &archive.RepositoryError{Location: facade.BaseLocation(), Op: "index source packages", Err: err}
	}
	return newestByName(pkgs), nil
}

// importSourcePackage materializes every file of spkg from the source
// archive, then hands the .dsc off to dak. Returns false (logged) on any
// consistency or import failure.
func (e *Engine) importSourcePackage(ctx context.Context, spkg *deb.Package, component string) bool {
	var dscPath string

	for _, file := range spkg.Files() {
		path, err := e.source.Materialize(ctx, spkg, file)
		if err != nil {
			slog.Error("failed to materialize source file", "package", spkg.Name, "file", file.Filename, "error", err)
			return false
		}
		if strings.HasSuffix(file.Filename, ".dsc") {
			dscPath = path
		}
	}

	if dscPath == "" {
		err := &ConsistencyError{Package: spkg.Name, Location: e.source.BaseLocation(), Reason: "no .dsc file found among source files"}
		slog.Error("consistency error", "error", err)
		return false
	}

	ok, err := e.dak.ImportFiles(ctx, e.cfg.TargetSuite.Name, component, []string{dscPath}, e.cfg.ImportsTrusted, true)
	if err != nil {
		slog.Error("dak import failed", "package", spkg.Name, "error", err)
		return false
	}
	if !ok {
		slog.Error("import rejected", "error", &ImportRejectedError{Suite: e.cfg.TargetSuite.Name, Component: component, Paths: []string{dscPath}})
		return false
	}

	return true
}

// importBinariesForSources imports, per architecture, the binaries that
// belong to each already-imported source package in synced.
func (e *Engine) importBinariesForSources(ctx context.Context, component string, synced []*deb.Package) bool {
	if !e.cfg.GetSyncBinaries() {
		slog.Debug("binary sync disabled, skipping", "component", component)
		return true
	}
	if len(synced) == 0 {
		return true
	}

	archs := targetArchitectures(e.cfg.TargetSuite.Architectures)

	sourceByArch := make(map[string]map[string]*deb.Package, len(archs))
	targetByArch := make(map[string]map[string]*deb.Package, len(archs))

	for _, arch := range archs {
		srcIdx, ok := e.binaryIndex(ctx, e.source, e.cfg.Source.SuiteName, component, arch)
		if !ok {
			return false
		}
		sourceByArch[arch] = srcIdx

		tgtIdx, ok := e.binaryIndex(ctx, e.target, e.cfg.TargetSuite.Name, component, arch)
		if !ok {
			return false
		}
		targetByArch[arch] = tgtIdx
	}

	for _, spkg := range synced {
		expectations := sourceBinaryExpectations(spkg)

		for _, arch := range archs {
			binFiles, existingFound := e.scanArchBinaries(ctx, spkg, arch, expectations, sourceByArch[arch], targetByArch[arch])

			if len(binFiles) == 0 {
				if !existingFound {
					slog.Warn("unable to sync any binary", "source", spkg.Name, "arch", arch)
				}
				continue
			}

			ok, err := e.dak.ImportFiles(ctx, e.cfg.TargetSuite.Name, component, binFiles, e.cfg.ImportsTrusted, true)
			if err != nil {
				slog.Error("dak import failed", "source", spkg.Name, "arch", arch, "error", err)
				return false
			}
			if !ok {
				slog.Error("import rejected", "error", &ImportRejectedError{Suite: e.cfg.TargetSuite.Name, Component: component, Paths: binFiles})
				return false
			}
		}
	}

	return true
}

// binaryIndex builds one arch's merged regular+installer binary index for
// facade, logging and reporting failure through the bool return so callers
// can fold it directly into their own bool contract.
func (e *Engine) binaryIndex(ctx context.Context, facade archive.Facade, suite, component, arch string) (map[string]*deb.Package, bool) {
	bins, err := facade.BinaryPackages(ctx, suite, component, arch)
	if err != nil {
		slog.Error("failed to index binary packages", "location", facade.BaseLocation(), "component", component, "arch", arch, "error", err)
		return nil, false
	}
	installers, err := facade.InstallerPackages(ctx, suite, component, arch)
	if err != nil {
		slog.Error("failed to index installer packages", "location", facade.BaseLocation(), "component", component, "arch", arch, "error", err)
		return nil, false
	}

	idx := newestByName(bins)
	mergeInstaller(idx, installers)
	return idx, true
}

// scanArchBinaries concurrently scans spkg's declared binaries against one
// architecture's source and target indices, materializing whichever ones
// need importing. existingFound reports whether any expected binary was
// already present and up to date in the target, distinguishing "nothing to
// do" from "nothing could be found".
func (e *Engine) scanArchBinaries(ctx context.Context, spkg *deb.Package, arch string, expectations []binaryExpectation, sourceIdx, targetIdx map[string]*deb.Package) ([]string, bool) {
	var mu sync.Mutex
	var binFiles []string
	existingFound := false

	subpool := e.pool.NewSubpool(10)
	defer subpool.StopAndWait()

	group := subpool.NewGroup()

	for _, exp := range expectations {
		group.SubmitErr(func() error {
			binPkg, ok := sourceIdx[exp.name]
			if !ok {
				return nil
			}

			if debext.GetSourceNameFromPackage(binPkg) != spkg.Name {
				slog.Warn("binary disowns source package", "binary", binPkg.Name, "source", spkg.Name, "arch", arch)
				return nil
			}

			actualVersion := debext.GetSourceVersionFromPackage(binPkg)
			if actualVersion != exp.version {
				slog.Info("binary version mismatch with source manifest", "binary", binPkg.Name, "expected", exp.version, "actual", actualVersion, "arch", arch)
				return nil
			}

			if tpkg, ok := targetIdx[exp.name]; ok && debext.CompareVersions(tpkg.Version, binPkg.Version) >= 0 {
				slog.Info("target binary already up to date, skipping", "binary", binPkg.Name, "arch", arch, "target_version", tpkg.Version, "source_version", binPkg.Version)
				mu.Lock()
				existingFound = true
				mu.Unlock()
				return nil
			}

			files := binPkg.Files()
			if len(files) == 0 {
				slog.Warn("binary has no files", "binary", binPkg.Name, "arch", arch)
				return nil
			}

			path, err := e.source.Materialize(ctx, binPkg, files[0])
			if err != nil {
				slog.Error("failed to materialize binary", "binary", binPkg.Name, "arch", arch, "error", err)
				return nil
			}

			mu.Lock()
			binFiles = append(binFiles, path)
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait()

	return binFiles, existingFound
}

// sourceBinaryExpectations derives a source package's (name, expected
// version) pairs from its control file's Binary field; a binary is
// expected at the source's own version unless the binary index shows
// otherwise (a binNMU), which importBinariesForSources treats as a
// mismatch to skip, not an error.
func sourceBinaryExpectations(spkg *deb.Package) []binaryExpectation {
	names := debext.GetBinaryNames(spkg)
	expectations := make([]binaryExpectation, 0, len(names))
	for _, name := range names {
		expectations = append(expectations, binaryExpectation{name: name, version: spkg.Version})
	}
	return expectations
}

// targetArchitectures returns archs with the pseudo-architecture "source"
// removed, preserving input order.
func targetArchitectures(archs []string) []string {
	return slices.DeleteFunc(slices.Clone(archs), func(a string) bool { return a == debext.SourceArchitecture })
}
