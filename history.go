package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdrive2preservica/internal/ledger"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded migration runs",
		Long: `Without arguments, list recent runs newest first. With a run ID, list
what happened to every file in that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, args, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "maximum number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, args []string, limit int) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	dbPath := cc.Cfg.LedgerPath()

	// Opening would create an empty database; report "nothing yet" instead.
	if _, err := os.Stat(dbPath); errors.Is(err, fs.ErrNotExist) {
		cc.Statusf("No runs recorded yet (%s does not exist).\n", dbPath)
		return nil
	}

	led, err := ledger.Open(ctx, dbPath, cc.Logger)
	if err != nil {
		return err
	}
	defer led.Close()

	if len(args) == 1 {
		outcomes, err := led.Outcomes(ctx, args[0])
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return writeJSON(os.Stdout, toOutcomeJSON(outcomes))
		}

		printOutcomesTable(os.Stdout, outcomes)

		return nil
	}

	runs, err := led.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return writeJSON(os.Stdout, toRunJSON(runs))
	}

	if len(runs) == 0 {
		cc.Statusf("No runs recorded yet.\n")
		return nil
	}

	printRunsTable(os.Stdout, runs, time.Now())

	return nil
}

// historyRun is the JSON schema for one run in `history --json`.
type historyRun struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
	Status           string     `json:"status"`
	Pages            int        `json:"pages"`
	Seen             int        `json:"seen"`
	Ingested         int        `json:"ingested"`
	SkippedExisting  int        `json:"skipped_existing"`
	SkippedContainer int        `json:"skipped_container"`
	Bytes            int64      `json:"bytes"`
	Error            string     `json:"error,omitempty"`
}

// historyOutcome is the JSON schema for one file in `history <run-id> --json`.
type historyOutcome struct {
	FileID     string    `json:"file_id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Result     string    `json:"result"`
	PackageKey string    `json:"package_key,omitempty"`
	Bytes      int64     `json:"bytes"`
	RecordedAt time.Time `json:"recorded_at"`
}

func toRunJSON(runs []ledger.Run) []historyRun {
	out := make([]historyRun, 0, len(runs))

	for i := range runs {
		r := &runs[i]
		h := historyRun{
			ID:               r.ID,
			StartedAt:        r.StartedAt,
			Status:           r.Status,
			Pages:            r.Totals.Pages,
			Seen:             r.Totals.Seen,
			Ingested:         r.Totals.Ingested,
			SkippedExisting:  r.Totals.SkippedExisting,
			SkippedContainer: r.Totals.SkippedContainer,
			Bytes:            r.Totals.Bytes,
			Error:            r.Error,
		}

		if !r.FinishedAt.IsZero() {
			finished := r.FinishedAt
			h.FinishedAt = &finished
		}

		out = append(out, h)
	}

	return out
}

func toOutcomeJSON(outcomes []ledger.Outcome) []historyOutcome {
	out := make([]historyOutcome, 0, len(outcomes))

	for i := range outcomes {
		o := &outcomes[i]
		out = append(out, historyOutcome{
			FileID:     o.FileID,
			Name:       o.Name,
			MimeType:   o.MimeType,
			Result:     string(o.Result),
			PackageKey: o.PackageKey,
			Bytes:      o.Bytes,
			RecordedAt: o.RecordedAt,
		})
	}

	return out
}

func printRunsTable(w io.Writer, runs []ledger.Run, now time.Time) {
	headers := []string{"RUN", "STARTED", "STATUS", "SEEN", "INGESTED", "PRESENT", "FOLDERS", "EXPORTED"}
	rows := make([][]string, 0, len(runs))

	for i := range runs {
		r := &runs[i]
		rows = append(rows, []string{
			r.ID,
			formatTime(r.StartedAt, now),
			r.Status,
			strconv.Itoa(r.Totals.Seen),
			strconv.Itoa(r.Totals.Ingested),
			strconv.Itoa(r.Totals.SkippedExisting),
			strconv.Itoa(r.Totals.SkippedContainer),
			formatSize(r.Totals.Bytes),
		})
	}

	printTable(w, headers, rows)
}

func printOutcomesTable(w io.Writer, outcomes []ledger.Outcome) {
	headers := []string{"FILE ID", "NAME", "RESULT", "SIZE", "PACKAGE"}
	rows := make([][]string, 0, len(outcomes))

	for i := range outcomes {
		o := &outcomes[i]

		size := ""
		if o.Bytes > 0 {
			size = formatSize(o.Bytes)
		}

		rows = append(rows, []string{o.FileID, o.Name, string(o.Result), size, o.PackageKey})
	}

	printTable(w, headers, rows)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
