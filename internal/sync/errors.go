package sync

import "fmt"

// SyncDisabledError is returned when an entry point is invoked while
// sync.enabled is false; it is the one precondition violation the engine
// surfaces to its caller as a Go error rather than a logged skip.
type SyncDisabledError struct{}

func (e *SyncDisabledError) Error() string {
	return "sync is disabled in configuration"
}

// VersionParseError wraps a version string the comparator could not make
// sense of. The affected package is skipped with a warning; it is never
// fatal for the batch.
type VersionParseError struct {
	Version string
	Err     error
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("malformed version %q: %v", e.Version, e.Err)
}

func (e *VersionParseError) Unwrap() error {
	return e.Err
}

// ConsistencyError marks a structural inconsistency in archive data that
// makes the current package impossible to import, e.g. a source package
// control file with no matching .dsc file.
type ConsistencyError struct {
	Package  string
	Location string
	Reason   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s (archive %s)", e.Package, e.Reason, e.Location)
}

// ImportRejectedError marks a dak import call that completed but reported
// rejection (import_files returned false).
type ImportRejectedError struct {
	Suite     string
	Component string
	Paths     []string
}

func (e *ImportRejectedError) Error() string {
	return fmt.Sprintf("dak rejected import of %v into %s/%s", e.Paths, e.Suite, e.Component)
}
