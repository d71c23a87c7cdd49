// Package dak drives the archive-management tool ("dak") that owns a
// dak-managed target archive's on-disk state, accepting the import of newly
// materialized package files.
package dak

import "context"

// Facade is the archive-import capability the sync engine consumes.
type Facade interface {
	// ImportFiles imports the already-materialized files at localPaths into
	// (suite, component). Returns false if dak rejects the import (e.g. a
	// policy check fails); a non-nil error indicates the tool itself could
	// not be invoked. Idempotence is not assumed: callers must not submit
	// the same package twice within a run.
	ImportFiles(ctx context.Context, suite, component string, localPaths []string, trusted, allowNew bool) (bool, error)
}
