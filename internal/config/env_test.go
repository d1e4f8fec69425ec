package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadEnvOverrides_AllSet(t *testing.T) {
	t.Setenv(EnvConfig, "/custom/config.toml")
	t.Setenv(EnvFolder, "so-123")
	t.Setenv(EnvServer, "eu.preservica.com")
	t.Setenv(EnvUsername, "archivist")
	t.Setenv(EnvPassword, "secret")
	t.Setenv(EnvTenant, "ACME")

	overrides := ReadEnvOverrides()
	assert.Equal(t, "/custom/config.toml", overrides.ConfigPath)
	assert.Equal(t, "so-123", overrides.Folder)
	assert.Equal(t, "eu.preservica.com", overrides.Server)
	assert.Equal(t, "archivist", overrides.Username)
	assert.Equal(t, "secret", overrides.Password)
	assert.Equal(t, "ACME", overrides.Tenant)
}

func TestReadEnvOverrides_NoneSet(t *testing.T) {
	for _, name := range []string{EnvConfig, EnvFolder, EnvServer, EnvUsername, EnvPassword, EnvTenant} {
		t.Setenv(name, "")
	}

	overrides := ReadEnvOverrides()
	assert.Empty(t, overrides.ConfigPath)
	assert.Empty(t, overrides.Folder)
	assert.Empty(t, overrides.Username)
	assert.Empty(t, overrides.Password)
}

func TestEnvVarConstants(t *testing.T) {
	assert.Equal(t, "GDRIVE2PRESERVICA_CONFIG", EnvConfig)
	assert.Equal(t, "GDRIVE2PRESERVICA_FOLDER", EnvFolder)
	assert.Equal(t, "PRESERVICA_USERNAME", EnvUsername)
}
