package config

import "path/filepath"

// Default values for configuration options. These are "layer 0" of the
// override chain; a run with only a destination folder and credentials
// works without touching anything else.
const (
	defaultPageSize          = 25
	defaultAPIURL            = "https://www.googleapis.com/drive/v3"
	defaultIdentifierType    = "google-drive-id"
	defaultCredentialsFile   = "credential.properties"
	defaultMetadataNamespace = "https://www.googleapis.com/drive/v3/files"
	defaultSecurityTag       = "open"
	defaultChunkSize         = "100MiB"
	defaultMetadataDir       = "."
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	clientSecretsFileName    = "client_secrets.json"
	tokenFileName            = "token.json"
	ledgerFileName           = "ledger.db"
	lockFileName             = appName + ".lock"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields keep
// their defaults.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			ClientSecrets: filepath.Join(DefaultConfigDir(), clientSecretsFileName),
			PageSize:      defaultPageSize,
			APIURL:        defaultAPIURL,
		},
		Destination: DestinationConfig{
			IdentifierType:    defaultIdentifierType,
			CredentialsFile:   defaultCredentialsFile,
			MetadataNamespace: defaultMetadataNamespace,
			SecurityTag:       defaultSecurityTag,
			Upload:            UploadConfig{UseSSL: true},
		},
		Transfer: TransferConfig{
			MetadataDir: defaultMetadataDir,
			ChunkSize:   defaultChunkSize,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		State: StateConfig{
			Ledger: true,
		},
	}
}
