package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig          = "GDRIVE2PRESERVICA_CONFIG"
	EnvFolder          = "GDRIVE2PRESERVICA_FOLDER"
	EnvServer          = "PRESERVICA_SERVER"
	EnvUsername        = "PRESERVICA_USERNAME"
	EnvPassword        = "PRESERVICA_PASSWORD" //nolint:gosec // G101: variable name, not a credential
	EnvTenant          = "PRESERVICA_TENANT"
	EnvUploadAccessKey = "AWS_ACCESS_KEY_ID"
	EnvUploadSecretKey = "AWS_SECRET_ACCESS_KEY" //nolint:gosec // G101: variable name, not a credential
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath      string
	Folder          string
	Server          string
	Username        string
	Password        string
	Tenant          string
	UploadAccessKey string
	UploadSecretKey string
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:      os.Getenv(EnvConfig),
		Folder:          os.Getenv(EnvFolder),
		Server:          os.Getenv(EnvServer),
		Username:        os.Getenv(EnvUsername),
		Password:        os.Getenv(EnvPassword),
		Tenant:          os.Getenv(EnvTenant),
		UploadAccessKey: os.Getenv(EnvUploadAccessKey),
		UploadSecretKey: os.Getenv(EnvUploadSecretKey),
	}
}
