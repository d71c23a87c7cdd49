package archive

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aptly-dev/aptly/deb"
	"github.com/archtower/aptsync/debext"
)

// LocalFacade reads source, binary and installer packages directly off a
// dak-managed archive tree on local disk. Materialize is a no-op: every
// file a LocalFacade hands out is already local.
type LocalFacade struct {
	archiveRoot string
	suiteName   string
}

// NewLocalFacade creates a Facade backed by the dak archive rooted at
// archiveRoot, reading the given target suite.
func NewLocalFacade(archiveRoot, suiteName string) *LocalFacade {
	return &LocalFacade{archiveRoot: archiveRoot, suiteName: suiteName}
}

// BaseLocation implements Facade.
func (l *LocalFacade) BaseLocation() string {
	return filepath.Join(l.archiveRoot, "dists", l.suiteName)
}

// SourcePackages implements Facade.
func (l *LocalFacade) SourcePackages(ctx context.Context, suite, component string) ([]*deb.Package, error) {
	return l.readIndex(filepath.Join(component, "source", "Sources"), true)
}

// BinaryPackages implements Facade.
func (l *LocalFacade) BinaryPackages(ctx context.Context, suite, component, arch string) ([]*deb.Package, error) {
	return l.readIndex(filepath.Join(component, "binary-"+arch, "Packages"), false)
}

// InstallerPackages implements Facade.
func (l *LocalFacade) InstallerPackages(ctx context.Context, suite, component, arch string) ([]*deb.Package, error) {
	relPath := filepath.Join(component, "debian-installer", "binary-"+arch, "Packages")
	if !l.indexExists(relPath) {
		// No d-i component published for this (component, arch).
		return nil, nil
	}
	return l.readIndex(relPath, false)
}

// Materialize implements Facade. The target archive's files are already on
// local disk under its pool; this simply resolves the path.
func (l *LocalFacade) Materialize(ctx context.Context, pkg *deb.Package, file deb.PackageFile) (string, error) {
	return filepath.Join(l.archiveRoot, file.DownloadURL()), nil
}

func (l *LocalFacade) indexPath(relPath string) string {
	return filepath.Join(l.archiveRoot, "dists", l.suiteName, relPath)
}

func (l *LocalFacade) indexExists(relPath string) bool {
	if _, err := os.Stat(l.indexPath(relPath)); err == nil {
		return true
	}
	if _, err := os.Stat(l.indexPath(relPath) + ".gz"); err == nil {
		return true
	}
	return false
}

// readIndex reads a locally published index file, transparently unpacking
// a gzip-compressed variant when the plain file is absent (dak always keeps
// at least a .gz copy of each index next to the uncompressed one).
func (l *LocalFacade) readIndex(relPath string, isSource bool) ([]*deb.Package, error) {
	plainPath := l.indexPath(relPath)

	if _, err := os.Stat(plainPath); err == nil {
		packages, err := debext.ParsePackageIndex(plainPath, isSource)
		if err != nil {
			return nil, &RepositoryError{Location: l.BaseLocation(), Op: "parse " + relPath, Err: err}
		}
		return packages, nil
	}

	gzPath := plainPath + ".gz"
	uncompressed, err := decompressGzipToTemp(gzPath)
	if err != nil {
		return nil, &RepositoryError{Location: l.BaseLocation(), Op: "read " + relPath, Err: err}
	}
	defer func() { _ = os.Remove(uncompressed) }()

	packages, err := debext.ParsePackageIndex(uncompressed, isSource)
	if err != nil {
		return nil, &RepositoryError{Location: l.BaseLocation(), Op: "parse " + relPath, Err: err}
	}
	return packages, nil
}

// decompressGzipToTemp decompresses a local .gz index into a temp file and
// returns its path. Unlike the shared DeCompressor, this is a synchronous,
// single-file, local-disk-only operation with no network or pooled
// concurrency involved, so it is not worth routing through a worker pool.
func decompressGzipToTemp(gzPath string) (string, error) {
	src, err := os.Open(gzPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", gzPath, err)
	}
	defer func() { _ = src.Close() }()

	reader, err := gzip.NewReader(src)
	if err != nil {
		return "", fmt.Errorf("%s: %w", gzPath, err)
	}
	defer func() { _ = reader.Close() }()

	dst, err := os.CreateTemp("", "aptsync-index-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = dst.Close() }()

	if _, err := dst.ReadFrom(reader); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}

	return dst.Name(), nil
}
