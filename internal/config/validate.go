package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validation range constants.
const (
	minPageSize  = 1
	maxPageSize  = 1000
	minChunkSize = 256 * kibibyte
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every issue in one pass. Requirements that only apply
// to a migration run (folder, upload bucket) are checked by ValidateRun.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validateDestination(&cfg.Destination)...)
	errs = append(errs, validateTransfer(&cfg.Transfer)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateRun checks the settings a migration run needs beyond Validate.
func ValidateRun(cfg *Config) error {
	var errs []error

	if cfg.Destination.Folder == "" {
		errs = append(errs, fmt.Errorf("destination.folder: required (or set %s)", EnvFolder))
	}

	if cfg.Destination.Upload.Endpoint == "" {
		errs = append(errs, errors.New("destination.upload.endpoint: required"))
	}

	if cfg.Destination.Upload.Bucket == "" {
		errs = append(errs, errors.New("destination.upload.bucket: required"))
	}

	if cfg.Source.ClientSecrets == "" {
		errs = append(errs, errors.New("source.client_secrets: required"))
	}

	return errors.Join(errs...)
}

func validateSource(s *SourceConfig) []error {
	var errs []error

	if s.PageSize < minPageSize || s.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("source.page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, s.PageSize))
	}

	if err := validateURL("source.api_url", s.APIURL); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateDestination(d *DestinationConfig) []error {
	var errs []error

	if d.IdentifierType == "" {
		errs = append(errs, errors.New("destination.identifier_type: must not be empty"))
	}

	if d.SecurityTag == "" {
		errs = append(errs, errors.New("destination.security_tag: must not be empty"))
	}

	if strings.Contains(d.Upload.Endpoint, "://") {
		errs = append(errs, fmt.Errorf("destination.upload.endpoint: must be host[:port] without a scheme, got %q",
			d.Upload.Endpoint))
	}

	return errs
}

func validateTransfer(t *TransferConfig) []error {
	n, err := ParseSize(t.ChunkSize)
	if err != nil {
		return []error{fmt.Errorf("transfer.chunk_size: %w", err)}
	}

	if n < minChunkSize {
		return []error{fmt.Errorf("transfer.chunk_size: must be at least 256KiB, got %q", t.ChunkSize)}
	}

	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute URL, got %q", field, raw)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}
