package sync

import (
	"log/slog"

	"github.com/aptly-dev/aptly/deb"
	"github.com/archtower/aptsync/debext"
)

// newestByName builds a name -> package map keeping, for each name, the
// package with the greatest version under Debian ordering. Ties are
// resolved in favor of the first-encountered package (stable).
func newestByName(pkgs []*deb.Package) map[string]*deb.Package {
	index := make(map[string]*deb.Package, len(pkgs))
	for _, pkg := range pkgs {
		mergeNewest(index, pkg)
	}
	return index
}

// mergeInstaller folds installer ("d-i") packages into an existing binary
// index, replacing a regular package of the same name only when the
// installer package's version is strictly greater.
func mergeInstaller(index map[string]*deb.Package, installers []*deb.Package) {
	for _, pkg := range installers {
		mergeNewest(index, pkg)
	}
}

// mergeNewest folds pkg into index, keeping the greater version under
// existing. A package whose version fails ValidateVersion is excluded from
// the index entirely rather than risking an unordered comparison against it.
func mergeNewest(index map[string]*deb.Package, pkg *deb.Package) {
	if err := debext.ValidateVersion(pkg.Version); err != nil {
		slog.Warn("excluding package with malformed version from index",
			"package", pkg.Name, "error", &VersionParseError{Version: pkg.Version, Err: err})
		return
	}

	existing, ok := index[pkg.Name]
	if !ok || debext.CompareVersions(pkg.Version, existing.Version) > 0 {
		index[pkg.Name] = pkg
	}
}
