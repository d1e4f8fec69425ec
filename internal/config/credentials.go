package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Keys recognized in the credentials properties file.
const (
	credKeyUsername = "username"
	credKeyPassword = "password"
	credKeyTenant   = "tenant"
	credKeyServer   = "server"
)

// PreservicaCredentials are the account details for the repository API.
type PreservicaCredentials struct {
	Username string
	Password string
	Tenant   string
	Server   string
}

// LoadCredentials reads a "key=value" credentials file, then lets the
// environment override individual entries. A missing file is fine as long
// as the environment supplies username and password. The server falls back
// to [destination].server.
func LoadCredentials(path string, env EnvOverrides, cfg *Config) (PreservicaCredentials, error) {
	var creds PreservicaCredentials

	if path != "" {
		values, err := godotenv.Read(expandTilde(path))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return creds, fmt.Errorf("reading credentials file %s: %w", path, err)
		}

		creds = PreservicaCredentials{
			Username: values[credKeyUsername],
			Password: values[credKeyPassword],
			Tenant:   values[credKeyTenant],
			Server:   values[credKeyServer],
		}
	}

	overrideIfSet(&creds.Username, env.Username)
	overrideIfSet(&creds.Password, env.Password)
	overrideIfSet(&creds.Tenant, env.Tenant)
	overrideIfSet(&creds.Server, env.Server)

	if creds.Server == "" && cfg != nil {
		creds.Server = cfg.Destination.Server
	}

	var errs []error

	if creds.Username == "" {
		errs = append(errs, fmt.Errorf("preservica username: set %q in %s or %s", credKeyUsername, path, EnvUsername))
	}

	if creds.Password == "" {
		errs = append(errs, fmt.Errorf("preservica password: set %q in %s or %s", credKeyPassword, path, EnvPassword))
	}

	if creds.Server == "" {
		errs = append(errs, fmt.Errorf("preservica server: set [destination] server, %q in %s, or %s",
			credKeyServer, path, EnvServer))
	}

	return creds, errors.Join(errs...)
}

func overrideIfSet(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// BaseURL returns the server as a URL. Bare host names get https.
func (c PreservicaCredentials) BaseURL() string {
	if strings.Contains(c.Server, "://") {
		return c.Server
	}

	return "https://" + c.Server
}
