package debext

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aptly-dev/aptly/deb"
	"github.com/aptly-dev/aptly/utils"
)

const (
	DebugPackageSuffix  = "-dbgsym"
	DebugPackageSection = "debug"

	SourceArchitecture = "source"
)

// ParseRelease parses an InRelease file and extracts index metadata
func ParseRelease(inReleaseFile string, verifier *Verifier) (*Release, error) {
	file, err := os.Open(inReleaseFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inReleaseFile, err)
	}
	defer func() { _ = file.Close() }()

	// Verify GPG signature
	reader, keys, err := verifier.VerifyAndClear(file)
	if err != nil {
		return nil, fmt.Errorf("%s: signature verification failed: %w", inReleaseFile, err)
	}
	defer func() { _ = reader.Close() }()
	if len(keys) > 0 {
		slog.Debug("Signature verified", "file", filepath.Base(inReleaseFile), "with", keys)
	}

	// Read all content for parsing
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read: %w", inReleaseFile, err)
	}

	// Parse as stanza
	stanzaReader := deb.NewControlFileReader(strings.NewReader(string(content)), false, false)
	stanza, err := stanzaReader.ReadStanza()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse stanza: %w", inReleaseFile, err)
	}

	config := &Release{
		Origin:        stanza["Origin"],
		Label:         stanza["Label"],
		Suite:         stanza["Suite"],
		Codename:      stanza["Codename"],
		Architectures: strings.Fields(stanza["Architectures"]),
		Components:    strings.Fields(stanza["Components"]),
		Description:   stanza["Description"],
		Files:         make(map[string]utils.ChecksumInfo),
	}

	// Parse Date - try multiple formats for compatibility
	// RFC 2822/1123 is the spec, but some repositories use other formats
	dateFormats := []string{
		"Mon, 2 Jan 2006 15:04:05 MST",     // RFC 1123 with timezone (spec)
		"Mon, 2 Jan 2006 15:04:05 -0700",   // RFC 1123 with numeric timezone
		"Mon Jan _2 15:04:05 2006",         // Unix date format (no timezone)
		"Mon Jan _2 15:04:05 2006 MST",     // Unix date format with timezone
		time.RFC1123Z,                      // Go stdlib RFC1123 with numeric zone
		time.RFC1123,                       // Go stdlib RFC1123
	}
	
	var parseErr error
	for _, format := range dateFormats {
		config.Date, parseErr = time.Parse(format, stanza["Date"])
		if parseErr == nil {
			// If parsed date has no timezone info, assume UTC
			if config.Date.Location() == time.UTC || config.Date.Location().String() == "UTC" {
				config.Date = config.Date.UTC()
			}
			break
		}
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%s: invalid Date format: %w (tried RFC1123, Unix date formats)", inReleaseFile, parseErr)
	}

	// Parse SHA256 section for index files
	sha256Section := stanza["SHA256"]
	if sha256Section == "" {
		return nil, fmt.Errorf("%s: missing SHA256 section", inReleaseFile)
	}

	// The control file reader concatenates continuation lines with spaces
	// We need to split by space and process groups of 3 fields (hash size filename)
	parts := strings.Fields(sha256Section)
	if len(parts)%3 != 0 {
		return nil, fmt.Errorf("%s: invalid SHA256 section: expected multiple of 3 fields, got %d fields\nSHA256 section: %q",
			inReleaseFile, len(parts), sha256Section)
	}

	for i := 0; i < len(parts); i += 3 {
		hash := parts[i]
		var size int64
		if _, err := fmt.Sscanf(parts[i+1], "%d", &size); err != nil {
			return nil, fmt.Errorf("%s: invalid size in SHA256 entry %d: %w", inReleaseFile, i/3+1, err)
		}
		filename := parts[i+2]

		config.Files[filename] = utils.ChecksumInfo{
			Size:   size,
			SHA256: hash,
		}
	}

	return config, nil
}

// SelectSmallestVariant picks the smallest file listed in a Release's Files
// map whose name, after stripping any compression extension, equals
// basePath — preferring the most-compressed form published to minimize
// transfer size. Used by every Release.Files consumer that must choose
// between an uncompressed index and its .gz/.xz/.bz2 variants.
func SelectSmallestVariant(basePath string, files map[string]utils.ChecksumInfo) (string, utils.ChecksumInfo, error) {
	var bestPath string
	var bestInfo utils.ChecksumInfo
	found := false

	for path, info := range files {
		if strings.TrimSuffix(path, filepath.Ext(path)) != basePath {
			continue
		}
		if !found || info.Size < bestInfo.Size {
			bestPath, bestInfo, found = path, info, true
		}
	}

	if !found {
		return "", utils.ChecksumInfo{}, fmt.Errorf("no variant found for %s", basePath)
	}

	return bestPath, bestInfo, nil
}

// ParsePackageIndex parses a Packages or Sources index file and returns packages
func ParsePackageIndex(path string, isSource bool) ([]*deb.Package, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var packages []*deb.Package
	controlReader := deb.NewControlFileReader(file, false, false)

	for {
		stanza, err := controlReader.ReadStanza()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read stanza: %w", path, err)
		}
		if stanza == nil {
			// EOF reached (ReadStanza returns nil stanza, nil error at EOF)
			break
		}

		var pkg *deb.Package
		if isSource {
			pkg, err = deb.NewSourcePackageFromControlFile(stanza)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to parse source package: %w", path, err)
			}
		} else {
			pkg = deb.NewPackageFromControlFile(stanza)
		}

		packages = append(packages, pkg)
	}

	return packages, nil
}

// ParseSource creates a *deb.Package from a .dsc file with proper directory path and checksums.
// It verifies the signature, parses the control file, and processes all referenced source files.
func ParseSource(dscFile string, verifier *Verifier, poolPath string) (*deb.Package, error) {
	// Parse and verify the .dsc file
	file, err := os.Open(dscFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dscFile, err)
	}
	defer func() { _ = file.Close() }()

	text, keys, err := verifier.VerifyAndClear(file)
	if err != nil {
		return nil, fmt.Errorf("%s: signature verification failed: %w", dscFile, err)
	}
	defer func() { _ = text.Close() }()
	if len(keys) > 0 {
		slog.Debug("Signature verified", "file", filepath.Base(dscFile), "with", keys)
	}

	reader := deb.NewControlFileReader(text, false, false)
	stanza, err := reader.ReadStanza()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse stanza: %w", dscFile, err)
	}
	// Rename Source to Package (source packages use Source, but Sources file uses Package)
	if sourceName, ok := stanza["Source"]; ok {
		stanza["Package"] = sourceName
		delete(stanza, "Source")
	}

	// Set Directory field to the pool path
	stanza["Directory"] = poolPath

	// Create source package from the .dsc control file
	src, err := deb.NewSourcePackageFromControlFile(stanza)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create source package: %w", dscFile, err)
	}

	// Get the files that were parsed from the .dsc
	files := src.Files()

	// Calculate checksums for the .dsc file itself
	dscChecksums, err := utils.ChecksumsForFile(dscFile)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to calculate checksums: %w", dscFile, err)
	}

	// Add the .dsc file to the files list
	dscPackageFile := deb.PackageFile{
		Filename:  filepath.Base(dscFile),
		Checksums: dscChecksums,
	}

	// Update package with all files including the .dsc
	src.UpdateFiles(append(files, dscPackageFile))

	return src, nil
}

// ParseChanges parses a .changes file
func ParseChanges(changesFile string, verifier *Verifier) (*deb.Changes, error) {
	// Create Changes struct directly without temp directory/copying
	// TempDir is set to the actual directory where the file is located
	changes := &deb.Changes{
		BasePath:    filepath.Dir(changesFile),
		ChangesName: filepath.Base(changesFile),
		TempDir:     filepath.Dir(changesFile),
	}

	// Verify and parse the changes file using aptly's VerifyAndParse with our options
	err := changes.VerifyAndParse(verifier.AcceptUnsigned, verifier.IgnoreSignatures, verifier.Verifier)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to verify and parse: %w", changesFile, err)
	}

	if len(changes.SignatureKeys) > 0 {
		slog.Debug("Signature verified", "file", filepath.Base(changesFile), "with", changes.SignatureKeys)
	}

	return changes, nil
}

// Release holds the fields of a parsed Release file
type Release struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Date          time.Time
	Architectures []string
	Components    []string
	Description   string
	// Files maps relative paths to their checksums (following aptly's indexFiles.generatedFiles pattern)
	Files map[string]utils.ChecksumInfo
}

// GetSourceNameFromPackage returns the source package name for a given package.
// If a binary package has the same name as the source, it won't have the source field set.
func GetSourceNameFromPackage(pkg *deb.Package) string {
	// Source packages: use Name
	if pkg.IsSource {
		return pkg.Name
	}

	// Binary packages: use Source if set, otherwise Name. Source may carry
	// the source version in parens ("foo (1.2-1)"); only the name is wanted.
	if pkg.Source != "" {
		if idx := strings.IndexByte(pkg.Source, '('); idx != -1 {
			return strings.TrimSpace(pkg.Source[:idx])
		}
		return pkg.Source
	}

	return pkg.Name
}

// GetSourceVersionFromPackage returns the version of the source package that
// produced a binary package. The control file's "Source" field carries the
// source version in parens only when it differs from the binary's own
// version (e.g. "foo (1.2-1)"); otherwise the binary's version applies.
func GetSourceVersionFromPackage(pkg *deb.Package) string {
	if pkg.IsSource {
		return pkg.Version
	}

	if idx := strings.IndexByte(pkg.Source, '('); idx != -1 {
		version := strings.TrimSuffix(strings.TrimSpace(pkg.Source[idx+1:]), ")")
		if version != "" {
			return version
		}
	}

	return pkg.Version
}

// GetBinaryNames returns the binary package names a source package's control
// file declares it builds (the "Binary" field), trimmed and deduplicated in
// declaration order. Returns nil for a binary package or one with no field.
func GetBinaryNames(pkg *deb.Package) []string {
	if !pkg.IsSource {
		return nil
	}

	raw, ok := pkg.Extra()["Binary"]
	if !ok || raw == "" {
		return nil
	}

	var names []string
	seen := make(map[string]struct{})
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '\n' || r == ' ' || r == '\t' }) {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}

// IsDebugByName determines if a package a debug package by its name.
// Try to use IsDebugPackage instead where possible.
func IsDebugByName(input string) bool {
	return strings.HasSuffix(input, DebugPackageSuffix)
}

// IsDebugPackage determines if a package is a debug package.
func IsDebugPackage(pkg *deb.Package) bool {
	if pkg.IsSource {
		return false
	}
	if section, ok := pkg.Extra()["Section"]; ok && section == DebugPackageSection {
		return true
	}

	return IsDebugByName(pkg.Name)
}

