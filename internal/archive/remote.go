package archive

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aptly-dev/aptly/deb"
	"github.com/archtower/aptsync/debext"
	"github.com/archtower/aptsync/internal/common"
)

// RemoteFacade reads source, binary and installer packages from a remote
// APT repository over HTTP(S), one index at a time, on demand. Unlike the
// fetch feeds (internal/feed), which eagerly mirror an entire suite to
// local disk in one pass, a sync only needs the specific (component[,
// arch]) indices the engine actually asks for, so this fetches and parses
// them individually, scoped under its own storage subtree. It shares
// Release/index parsing (debext.ParseRelease, debext.ParsePackageIndex,
// debext.SelectSmallestVariant) and the download/trust primitives
// (internal/common.Storage/Downloader) with the fetch feeds, rather than
// their top-level orchestration.
type RemoteFacade struct {
	storage  *common.Storage
	verifier *debext.Verifier
	repoRoot *url.URL // repository root, for pool file locations
	suiteURL *url.URL // repoRoot/dists/<suite>, for Release and indices

	releaseOnce sync.Once
	release     *debext.Release
	releaseErr  error
}

// NewRemoteFacade creates a Facade backed by a remote APT repository rooted
// at repoURL, reading the named suite's InRelease on first use.
func NewRemoteFacade(storage *common.Storage, verifier *debext.Verifier, repoURL, suiteName string) (*RemoteFacade, error) {
	root, err := url.Parse(repoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source repo_url %q: %w", repoURL, err)
	}

	return &RemoteFacade{
		storage:  storage.Scope(suiteName),
		verifier: verifier,
		repoRoot: root,
		suiteURL: root.JoinPath("dists", suiteName),
	}, nil
}

// BaseLocation implements Facade.
func (r *RemoteFacade) BaseLocation() string {
	return r.suiteURL.String()
}

func (r *RemoteFacade) loadRelease(ctx context.Context) (*debext.Release, error) {
	r.releaseOnce.Do(func() {
		releaseURL := r.suiteURL.JoinPath("InRelease").String()
		req := &common.DownloadRequest{URL: releaseURL, Destination: "InRelease"}

		group := r.storage.Download(ctx, req)
		if _, err := group.Wait(); err != nil {
			r.releaseErr = &RepositoryError{Location: r.BaseLocation(), Op: "download InRelease", Err: err}
			return
		}

		release, err := debext.ParseRelease(r.storage.GetDownloadPath("InRelease"), r.verifier)
		if err != nil {
			r.releaseErr = &RepositoryError{Location: r.BaseLocation(), Op: "parse InRelease", Err: err}
			return
		}
		r.release = release
	})

	return r.release, r.releaseErr
}

// SourcePackages implements Facade.
func (r *RemoteFacade) SourcePackages(ctx context.Context, suite, component string) ([]*deb.Package, error) {
	return r.fetchIndex(ctx, filepath.Join(component, "source", "Sources"), true)
}

// BinaryPackages implements Facade.
func (r *RemoteFacade) BinaryPackages(ctx context.Context, suite, component, arch string) ([]*deb.Package, error) {
	return r.fetchIndex(ctx, filepath.Join(component, "binary-"+arch, "Packages"), false)
}

// InstallerPackages implements Facade.
func (r *RemoteFacade) InstallerPackages(ctx context.Context, suite, component, arch string) ([]*deb.Package, error) {
	basePath := filepath.Join(component, "debian-installer", "binary-"+arch, "Packages")

	release, err := r.loadRelease(ctx)
	if err != nil {
		return nil, err
	}
	if !hasIndex(release, basePath) {
		// No d-i component for this (component, arch); not an error.
		return nil, nil
	}

	return r.fetchIndex(ctx, basePath, false)
}

// fetchIndex downloads the smallest variant of the index at basePath
// (relative to the suite root) listed in Release, decompresses it when that
// variant is compressed, verifies it against the uncompressed checksum, and
// parses it. The uncompressed entry must be listed in Release.
func (r *RemoteFacade) fetchIndex(ctx context.Context, basePath string, isSource bool) ([]*deb.Package, error) {
	release, err := r.loadRelease(ctx)
	if err != nil {
		return nil, err
	}

	uncompressedInfo, ok := release.Files[basePath]
	if !ok {
		return nil, &RepositoryError{Location: r.BaseLocation(), Op: "locate " + basePath, Err: fmt.Errorf("index not listed in Release")}
	}

	compressedPath, compressedInfo, err := debext.SelectSmallestVariant(basePath, release.Files)
	if err != nil {
		return nil, &RepositoryError{Location: r.BaseLocation(), Op: "select variant of " + basePath, Err: err}
	}

	downloadURL := r.suiteURL.JoinPath(compressedPath).String()

	var localPath string
	if compressedPath == basePath {
		localPath, err = r.storage.FileExistsOrDownload(ctx, "sha256", uncompressedInfo.SHA256, downloadURL, basePath)
	} else {
		format := common.DetectCompressionFormat(compressedPath)
		localPath, err = r.storage.UncompressedFileExistsOrDownloadAndDecompress(
			ctx, "sha256", uncompressedInfo.SHA256, compressedInfo.SHA256, downloadURL, format, basePath,
		)
	}
	if err != nil {
		return nil, &RepositoryError{Location: r.BaseLocation(), Op: "fetch " + basePath, Err: err}
	}

	packages, err := debext.ParsePackageIndex(localPath, isSource)
	if err != nil {
		return nil, &RepositoryError{Location: r.BaseLocation(), Op: "parse " + basePath, Err: err}
	}

	return packages, nil
}

// Materialize implements Facade. The download destination is the package
// file's own pool-relative path, so repeated materializations of the same
// file (across components or concurrent goroutines) land on the same,
// dedup-tracked destination.
func (r *RemoteFacade) Materialize(ctx context.Context, pkg *deb.Package, file deb.PackageFile) (string, error) {
	relPath := file.DownloadURL()
	downloadURL := r.repoRoot.JoinPath(relPath).String()

	path, err := r.storage.FileExistsOrDownload(ctx, "sha256", file.Checksums.SHA256, downloadURL, relPath)
	if err != nil {
		return "", &RepositoryError{Location: r.BaseLocation(), Op: "materialize " + relPath, Err: err}
	}

	return path, nil
}

func hasIndex(release *debext.Release, basePath string) bool {
	if _, ok := release.Files[basePath]; ok {
		return true
	}
	for path := range release.Files {
		if strings.TrimSuffix(path, filepath.Ext(path)) == basePath {
			return true
		}
	}
	return false
}
