// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gdrive2preservica. Values resolve
// through four layers: defaults -> config file -> environment -> CLI flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Transfer    TransferConfig    `toml:"transfer"`
	Logging     LoggingConfig     `toml:"logging"`
	State       StateConfig       `toml:"state"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// SourceConfig locates the Drive OAuth client and controls listing.
type SourceConfig struct {
	ClientSecrets string `toml:"client_secrets"`
	PageSize      int    `toml:"page_size"`
	APIURL        string `toml:"api_url"`
}

// DestinationConfig identifies the Preservica server and the folder that
// receives every ingested asset.
type DestinationConfig struct {
	Server            string       `toml:"server"`
	Folder            string       `toml:"folder"`
	IdentifierType    string       `toml:"identifier_type"`
	CredentialsFile   string       `toml:"credentials_file"`
	MetadataNamespace string       `toml:"metadata_namespace"`
	SecurityTag       string       `toml:"security_tag"`
	Upload            UploadConfig `toml:"upload"`
}

// UploadConfig is the S3-compatible bucket the ingest workflow watches.
type UploadConfig struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// TransferConfig controls where exports and metadata documents are staged.
type TransferConfig struct {
	TempDir     string `toml:"temp_dir"`
	MetadataDir string `toml:"metadata_dir"`
	ChunkSize   string `toml:"chunk_size"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// StateConfig locates the token cache, run ledger and run lock.
type StateConfig struct {
	DataDir   string `toml:"data_dir"`
	TokenFile string `toml:"token_file"`
	Ledger    bool   `toml:"ledger"`
}

// MetricsConfig enables the node-exporter textfile. Empty disables it.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
}

// DataDir returns the state directory, defaulting to the platform data dir.
func (c *Config) DataDir() string {
	if c.State.DataDir != "" {
		return expandTilde(c.State.DataDir)
	}

	return DefaultDataDir()
}

// TokenPath returns the OAuth token cache path.
func (c *Config) TokenPath() string {
	if c.State.TokenFile != "" {
		return expandTilde(c.State.TokenFile)
	}

	return filepath.Join(c.DataDir(), tokenFileName)
}

// LedgerPath returns the run ledger database path.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.DataDir(), ledgerFileName)
}

// LockPath returns the run lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir(), lockFileName)
}

// TempDir returns the export staging directory.
func (c *Config) TempDir() string {
	if c.Transfer.TempDir != "" {
		return expandTilde(c.Transfer.TempDir)
	}

	return filepath.Join(os.TempDir(), appName)
}

// ChunkSizeBytes returns the parsed download chunk size. Validate has
// already rejected malformed values.
func (c *Config) ChunkSizeBytes() int64 {
	n, err := ParseSize(c.Transfer.ChunkSize)
	if err != nil {
		return 0
	}

	return n
}

// expandTilde replaces a leading "~/" with the user's home directory.
// If os.UserHomeDir() fails, the path is returned unexpanded.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
