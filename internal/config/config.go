package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/archtower/aptsync/internal/common"
	"github.com/archtower/aptsync/internal/feed"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Directories  DirectoriesConfig   `yaml:"directories"`
	HTTP         HTTPConfig          `yaml:"http,omitempty"`
	Signing      SigningConfig       `yaml:"signing"`
	GitHub       GitHubConfig        `yaml:"github,omitempty"`
	URL          string              `yaml:"url"`
	Sync         SyncConfig          `yaml:"sync,omitempty"`
	Workers      WorkersConfig       `yaml:"workers"`
	Repositories []*RepositoryConfig `yaml:"repositories"` // Loaded from Directories.Repositories/*.yaml
	ConfigDir    string              `yaml:"-"`            // Directory containing config.yaml (set during Load)
}

// DirectoriesConfig defines directory paths
type DirectoriesConfig struct {
	Root         string `yaml:"root"`
	Repositories string `yaml:"repositories"` // Relative to config dir if not absolute
	Downloads    string `yaml:"downloads"`    // Relative to Root if not absolute
	Trusted      string `yaml:"trusted"`      // Relative to Root if not absolute
	Staging      string `yaml:"staging"`      // Relative to Root if not absolute, contains timestamped build directories
	Public       string `yaml:"public"`       // Relative to Root if not absolute
}

// GetDownloadsPath returns the absolute path to the downloads directory
func (d *DirectoriesConfig) GetDownloadsPath() string {
	if filepath.IsAbs(d.Downloads) {
		return d.Downloads
	}
	return filepath.Join(d.Root, d.Downloads)
}

// GetTrustedPath returns the absolute path to the trusted directory
func (d *DirectoriesConfig) GetTrustedPath() string {
	if filepath.IsAbs(d.Trusted) {
		return d.Trusted
	}
	return filepath.Join(d.Root, d.Trusted)
}

// GetStagingPath returns the absolute path to the staging directory
func (d *DirectoriesConfig) GetStagingPath() string {
	if filepath.IsAbs(d.Staging) {
		return d.Staging
	}
	return filepath.Join(d.Root, d.Staging)
}

// GetPublicPath returns the absolute path to the public directory
func (d *DirectoriesConfig) GetPublicPath() string {
	if filepath.IsAbs(d.Public) {
		return d.Public
	}
	return filepath.Join(d.Root, d.Public)
}

// SigningConfig contains GPG signing configuration
type SigningConfig struct {
	PrivateKey string `yaml:"private_key"`
	PublicKey  string `yaml:"public_key"`
	Passphrase string `yaml:"passphrase,omitempty"` // Optional passphrase for the private key
}

// GetPrivateKeyPath returns the absolute path to the private key
func (s *SigningConfig) GetPrivateKeyPath(configDir string) string {
	if s.PrivateKey == "" || filepath.IsAbs(s.PrivateKey) {
		return s.PrivateKey
	}
	return filepath.Join(configDir, s.PrivateKey)
}

// GetPublicKeyPath returns the absolute path to the public key
func (s *SigningConfig) GetPublicKeyPath(configDir string) string {
	if s.PublicKey == "" || filepath.IsAbs(s.PublicKey) {
		return s.PublicKey
	}
	return filepath.Join(configDir, s.PublicKey)
}

// HTTPConfig contains HTTP client configuration
type HTTPConfig struct {
	UserAgent       string `yaml:"user_agent,omitempty"`         // Custom User-Agent header
	Timeout         int    `yaml:"timeout"`                      // Request timeout in seconds
	MaxIdleConns    int    `yaml:"max_idle_conns,omitempty"`     // Maximum idle connections
	MaxConnsPerHost int    `yaml:"max_conns_per_host,omitempty"` // Maximum connections per host
}

// GitHubConfig contains GitHub API configuration
type GitHubConfig struct {
	Token string `yaml:"token,omitempty"` // GitHub personal access token
}

// SyncConfig controls the package synchronization engine: pulling newer
// package versions from a source suite into a locally dak-managed target
// suite.
type SyncConfig struct {
	Enabled        bool              `yaml:"enabled"`
	SyncBinaries   *bool             `yaml:"sync_binaries,omitempty"`
	ImportsTrusted bool              `yaml:"imports_trusted"`
	DistroTag      string            `yaml:"distro_tag,omitempty"`
	TargetSuite    TargetSuiteConfig `yaml:"target_suite"`
	Source         SourceConfig      `yaml:"source"`
	Dak            DakConfig         `yaml:"dak"`
}

// GetSyncBinaries reports whether binary packages should be synced alongside
// sources, defaulting to true when unset.
func (s *SyncConfig) GetSyncBinaries() bool {
	return s.SyncBinaries == nil || *s.SyncBinaries
}

// TargetSuiteConfig identifies the dak-managed suite that packages are
// synced into.
type TargetSuiteConfig struct {
	Name          string   `yaml:"name"`
	Components    []string `yaml:"components"`
	Architectures []string `yaml:"architectures"`
}

// SourceConfig identifies the upstream archive that packages are synced from.
type SourceConfig struct {
	SuiteName string   `yaml:"suite_name"`
	RepoURL   string   `yaml:"repo_url"`
	Keyrings  []string `yaml:"keyrings,omitempty"`
}

// GetKeyringPaths returns absolute paths for all source keyrings
func (s *SourceConfig) GetKeyringPaths(configDir string) []string {
	paths := make([]string, len(s.Keyrings))
	for i, k := range s.Keyrings {
		if filepath.IsAbs(k) {
			paths[i] = k
		} else {
			paths[i] = filepath.Join(configDir, k)
		}
	}
	return paths
}

// DakConfig describes how to invoke the dak archive management tool that
// owns the target suite.
type DakConfig struct {
	Binary      string `yaml:"binary"`
	ArchiveRoot string `yaml:"archive_root"`
	ProjectName string `yaml:"project_name"`
}

// WorkersConfig defines worker pool sizes
type WorkersConfig struct {
	Main        uint `yaml:"main"`
	Download    uint `yaml:"download"`
	Compression uint `yaml:"compression"`
}

// RepositoryConfig represents a single repository configuration
type RepositoryConfig struct {
	Name          string                   `yaml:"-"` // Derived from filename
	Packages      common.PackageOptions    `yaml:"packages"`
	Distributions []string                 `yaml:"distributions,omitempty"`
	Architectures []string                 `yaml:"architectures,omitempty"`
	Retention     []common.RetentionPolicy `yaml:"retention,omitempty"`
	Verification  VerificationConfig       `yaml:"verification,omitempty"`
	Feeds         []*feed.FeedOptions      `yaml:"feeds"`
}

// VerificationConfig contains package verification settings
type VerificationConfig struct {
	Keyring string   `yaml:"keyring,omitempty"`
	Keys    []string `yaml:"keys,omitempty"`
}

// GetKeyringPath returns the absolute path to the keyring
func (v *VerificationConfig) GetKeyringPath(configDir string) string {
	if v.Keyring == "" || filepath.IsAbs(v.Keyring) {
		return v.Keyring
	}
	return filepath.Join(configDir, v.Keyring)
}

// GetKeyPaths returns absolute paths for all keys
func (v *VerificationConfig) GetKeyPaths(configDir string) []string {
	paths := make([]string, len(v.Keys))
	for i, key := range v.Keys {
		if filepath.IsAbs(key) {
			paths[i] = key
		} else {
			paths[i] = filepath.Join(configDir, key)
		}
	}
	return paths
}

// defaults applies default values to the configuration
func (c *Config) defaults() {
	// Load environment variables
	if c.GitHub.Token == "" {
		if token := os.Getenv("GITHUB_TOKEN"); token != "" {
			c.GitHub.Token = token
		}
	}

	// Directories defaults
	if c.Directories.Root == "" {
		c.Directories.Root = "/var/lib/aptsync"
	}
	if c.Directories.Repositories == "" {
		c.Directories.Repositories = "repos.d"
	}
	if c.Directories.Downloads == "" {
		c.Directories.Downloads = "downloads"
	}
	if c.Directories.Trusted == "" {
		c.Directories.Trusted = "trusted"
	}
	if c.Directories.Staging == "" {
		c.Directories.Staging = "staging"
	}
	if c.Directories.Public == "" {
		c.Directories.Public = "public"
	}

	// Worker pool defaults
	if c.Workers.Main == 0 {
		c.Workers.Main = uint(runtime.NumCPU() * 10)
	}
	// Enforce minimum of 80 workers to avoid deadlock with subpool nesting
	if c.Workers.Main < 80 {
		c.Workers.Main = 80
	}
	if c.Workers.Download == 0 {
		c.Workers.Download = 20
	}
	if c.Workers.Compression == 0 {
		c.Workers.Compression = uint(runtime.NumCPU())
	}

	// Sync defaults: disabled unless explicitly opted into, binaries follow
	// sources unless disabled, trusted imports (skipping dak's own signature
	// checks) stay off unless requested.
	if c.Sync.Dak.Binary == "" {
		c.Sync.Dak.Binary = "dak"
	}
}

// loadRepositories loads all repository configurations from the repositories directory
func (c *Config) loadRepositories() error {
	// Resolve repositories directory path (relative to config dir)
	reposDir := c.Directories.Repositories
	if !filepath.IsAbs(reposDir) {
		reposDir = filepath.Join(c.ConfigDir, reposDir)
	}

	// Check if repos directory exists
	info, err := os.Stat(reposDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrNotExist
	}

	// Read all .yaml files
	entries, err := os.ReadDir(reposDir)
	if err != nil {
		return err
	}

	repos := make([]*RepositoryConfig, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		// Repository name is the filename without extension
		repoName := strings.TrimSuffix(entry.Name(), ".yaml")
		repoPath := filepath.Join(reposDir, entry.Name())

		// Load repository config
		data, err := os.ReadFile(repoPath)
		if err != nil {
			return err
		}

		var repo RepositoryConfig
		if err := yaml.Unmarshal(data, &repo); err != nil {
			return err
		}
		repo.Name = repoName
		repo.defaults()

		repos = append(repos, &repo)
	}

	if len(repos) == 0 {
		return os.ErrNotExist
	}

	c.Repositories = repos
	return nil
}

// defaults applies default values to a repository configuration
func (r *RepositoryConfig) defaults() {
	for _, feedOpts := range r.Feeds {
		// Architectures, RetentionPolicies, and Packages are always inherited from repository
		feedOpts.Architectures = r.Architectures
		feedOpts.RetentionPolicies = r.Retention
		feedOpts.Packages = r.Packages

		if feedOpts.Type == feed.FeedTypeGitHub {
			if len(feedOpts.Releases) == 0 {
				feedOpts.Releases = []feed.ReleaseType{feed.ReleaseTypeRelease}
			}
		}
	}
}
