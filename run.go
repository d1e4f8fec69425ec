package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive2preservica/internal/config"
	"github.com/tonimelisma/gdrive2preservica/internal/gdrive"
	"github.com/tonimelisma/gdrive2preservica/internal/ledger"
	"github.com/tonimelisma/gdrive2preservica/internal/migrate"
	"github.com/tonimelisma/gdrive2preservica/internal/preservica"
	"github.com/tonimelisma/gdrive2preservica/internal/sip"
)

// runOutput is the JSON schema for a migration run with --json.
type runOutput struct {
	RunID            string `json:"run_id,omitempty"`
	Folder           string `json:"folder"`
	Pages            int    `json:"pages"`
	Seen             int    `json:"seen"`
	Ingested         int    `json:"ingested"`
	SkippedExisting  int    `json:"skipped_existing"`
	SkippedContainer int    `json:"skipped_container"`
	Bytes            int64  `json:"bytes"`
	Duration         string `json:"duration"`
	Error            string `json:"error,omitempty"`
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	if err := config.ValidateRun(cfg); err != nil {
		return err
	}

	release, err := acquireRunLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := interruptContext(cmd.Context(), logger)
	defer stop()

	driver, finish, err := buildDriver(ctx, cfg, cc.Env, logger)
	if err != nil {
		return err
	}

	started := time.Now()
	summary, runErr := driver.Run(ctx)
	finished := time.Now()
	runErr = interruptedRunError(ctx, runErr)

	runID := finish(ctx, summary, started, finished, runErr)

	out := runOutput{
		RunID:            runID,
		Folder:           cfg.Destination.Folder,
		Pages:            summary.Pages,
		Seen:             summary.Seen,
		Ingested:         summary.Ingested,
		SkippedExisting:  summary.SkippedExisting,
		SkippedContainer: summary.SkippedContainer,
		Bytes:            summary.Bytes,
		Duration:         finished.Sub(started).Round(time.Millisecond).String(),
	}

	if runErr != nil {
		out.Error = runErr.Error()
	}

	if cc.Flags.JSON {
		if err := writeJSON(os.Stdout, out); err != nil {
			return err
		}
	} else {
		printRunText(cc, out)
	}

	return runErr
}

// finishFunc records the end of a run and returns the ledger run ID, if any.
type finishFunc func(ctx context.Context, s *migrate.Summary, started, finished time.Time, runErr error) string

// buildDriver wires the Drive client, the Preservica client, the package
// builder and the optional ledger and metrics into a Driver.
func buildDriver(
	ctx context.Context, cfg *config.Config, env config.EnvOverrides, logger *slog.Logger,
) (*migrate.Driver, finishFunc, error) {
	creds, err := config.LoadCredentials(cfg.Destination.CredentialsFile, env, cfg)
	if err != nil {
		return nil, nil, err
	}

	uploader, err := preservica.NewUploader(preservica.UploadConfig{
		Endpoint:  cfg.Destination.Upload.Endpoint,
		Bucket:    cfg.Destination.Upload.Bucket,
		AccessKey: cfg.Destination.Upload.AccessKey,
		SecretKey: cfg.Destination.Upload.SecretKey,
		Region:    cfg.Destination.Upload.Region,
		UseSSL:    cfg.Destination.Upload.UseSSL,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	// Authentication failures end the run before anything is listed.
	ts, err := driveTokenSource(ctx, cfg, browserLogin, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("authenticating with Google Drive: %w", err)
	}

	httpClient := newHTTPClient()
	drive := gdrive.NewClient(cfg.Source.APIURL, httpClient, ts, logger)

	repo := preservica.NewClient(creds.BaseURL(), httpClient, preservica.Credentials{
		Username: creds.Username,
		Password: creds.Password,
		Tenant:   creds.Tenant,
	}, logger)

	exporter := migrate.NewExporter(drive, cfg.TempDir(), cfg.ChunkSizeBytes(), logger)
	builder := sip.NewBuilder(filepath.Join(cfg.TempDir(), ".packages"), logger)

	ingester := migrate.NewIngester(repo, uploader, builder, migrate.IngestOptions{
		IdentifierType:    cfg.Destination.IdentifierType,
		MetadataDir:       cfg.Transfer.MetadataDir,
		MetadataNamespace: cfg.Destination.MetadataNamespace,
		SecurityTag:       cfg.Destination.SecurityTag,
	}, logger)

	var metrics *migrate.Metrics

	if cfg.Metrics.Textfile != "" {
		metrics, err = migrate.NewMetrics()
		if err != nil {
			return nil, nil, err
		}
	}

	driverCfg := migrate.DriverConfig{
		Lister:    drive,
		Folders:   repo,
		Exporter:  exporter,
		Ingester:  ingester,
		Metrics:   metrics,
		FolderRef: cfg.Destination.Folder,
		PageSize:  cfg.Source.PageSize,
		Logger:    logger,
	}

	var (
		led   *ledger.Ledger
		runID string
	)

	if cfg.State.Ledger {
		led, err = ledger.Open(ctx, cfg.LedgerPath(), logger)
		if err != nil {
			return nil, nil, err
		}

		runID, err = led.StartRun(ctx)
		if err != nil {
			led.Close()
			return nil, nil, err
		}

		driverCfg.Journal = led.Journal(runID)
	}

	finish := func(ctx context.Context, s *migrate.Summary, started, finished time.Time, runErr error) string {
		if led != nil {
			// The run context may already be cancelled; the final row must
			// still be written.
			if err := led.FinishRun(context.WithoutCancel(ctx), runID, s.Totals(), runErr); err != nil {
				logger.Warn("recording run result", slog.String("error", err.Error()))
			}

			if err := led.Close(); err != nil {
				logger.Warn("closing ledger", slog.String("error", err.Error()))
			}
		}

		if metrics != nil {
			metrics.Finish(started, finished, runErr)

			if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warn("writing metrics textfile",
					slog.String("path", cfg.Metrics.Textfile),
					slog.String("error", err.Error()),
				)
			}
		}

		return runID
	}

	return migrate.NewDriver(driverCfg), finish, nil
}

func printRunText(cc *CLIContext, out runOutput) {
	verb := "Migration complete"
	if out.Error != "" {
		verb = "Migration aborted"
	}

	cc.Statusf("%s in %s: %d files seen on %d pages\n", verb, out.Duration, out.Seen, out.Pages)
	cc.Statusf("  ingested:          %d\n", out.Ingested)
	cc.Statusf("  already present:   %d\n", out.SkippedExisting)
	cc.Statusf("  folders skipped:   %d\n", out.SkippedContainer)
	cc.Statusf("  exported:          %s\n", formatSize(out.Bytes))

	if out.RunID != "" {
		cc.Statusf("  run:               %s\n", out.RunID)
	}
}
