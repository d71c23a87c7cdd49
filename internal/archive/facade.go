// Package archive provides read/fetch access to a Debian-derivative archive
// (either a remote upstream repository or a local dak-managed tree) in the
// shape the sync engine needs: enumerate source, binary, and installer
// packages for a (suite, component[, arch]) and materialize a referenced
// file to local disk.
package archive

import (
	"context"
	"fmt"

	"github.com/aptly-dev/aptly/deb"
)

// Facade is the repository-access capability the sync engine consumes. It
// never mutates the archive it reads from; Materialize is the only method
// with a side effect (placing a file on local disk), and that side effect
// must be idempotent and safe to call concurrently for distinct files.
type Facade interface {
	// SourcePackages returns every source package stanza found in the given
	// suite and component.
	SourcePackages(ctx context.Context, suite, component string) ([]*deb.Package, error)

	// BinaryPackages returns every regular binary package stanza found in
	// the given suite, component and architecture.
	BinaryPackages(ctx context.Context, suite, component, arch string) ([]*deb.Package, error)

	// InstallerPackages returns the debian-installer ("d-i") binary package
	// stanzas for the given suite, component and architecture. A missing
	// installer component is not an error; it yields an empty slice.
	InstallerPackages(ctx context.Context, suite, component, arch string) ([]*deb.Package, error)

	// Materialize ensures file is present on local disk, fetching it over
	// the network if necessary, and returns its local path.
	Materialize(ctx context.Context, pkg *deb.Package, file deb.PackageFile) (string, error)

	// BaseLocation is a human-readable identifier for diagnostics, e.g. a
	// repository URL or an on-disk archive root.
	BaseLocation() string
}

// RepositoryError wraps a failure reading or fetching from an archive,
// naming the facade's base location for diagnostics.
type RepositoryError struct {
	Location string
	Op       string
	Err      error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("archive %s: %s: %v", e.Location, e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}
