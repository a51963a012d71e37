// Command consistency-check compares the locally persisted attendance
// records against the remote tree and reports every divergent key. It is
// the operator-facing form of the in-app consistency page.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"flockcore/internal/consistency"
	"flockcore/internal/infra/localstore"
	"flockcore/internal/infra/remotestore"
	"flockcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("consistency-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dbPath    string
		remoteURL string
		token     string
		timeout   time.Duration
		asJSON    bool
	)
	fs.StringVar(&dbPath, "db", "flockcore.db", "path to the local sqlite store")
	fs.StringVar(&remoteURL, "remote", "", "base URL of the remote tree (required)")
	fs.StringVar(&token, "token", "", "bearer token for the remote tree")
	fs.DurationVar(&timeout, "timeout", 10*time.Second, "per-call remote timeout")
	fs.BoolVar(&asJSON, "json", false, "emit the full report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if remoteURL == "" {
		fmt.Fprintln(stderr, "consistency-check: -remote is required")
		fs.Usage()
		return 2
	}

	report, err := buildReport(context.Background(), dbPath, remoteURL, token, timeout)
	if err != nil {
		fmt.Fprintf(stderr, "consistency-check: %v\n", err)
		return 2
	}

	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "consistency-check: encode report: %v\n", err)
			return 2
		}
	} else {
		renderReport(stdout, report)
	}

	if report.Counts.Inconsistent > 0 || report.Counts.LocalOnly > 0 || report.Counts.RemoteOnly > 0 {
		return 1
	}
	return 0
}

func buildReport(ctx context.Context, dbPath, remoteURL, token string, timeout time.Duration) (consistency.Report, error) {
	local, err := localstore.NewSQLite(dbPath)
	if err != nil {
		return consistency.Report{}, fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	var localRecords []domain.AttendanceRecord
	if raw, ok := local.Load(localstore.KeyRecords); ok {
		if err := json.Unmarshal(raw, &localRecords); err != nil {
			return consistency.Report{}, fmt.Errorf("decode local records: %w", err)
		}
	}

	remote, err := remotestore.NewHTTP(remotestore.Config{BaseURL: remoteURL, Token: token, Timeout: timeout})
	if err != nil {
		return consistency.Report{}, err
	}
	remoteRecords, err := remote.ReadRecordsSince(ctx, time.Time{})
	if err != nil {
		return consistency.Report{}, fmt.Errorf("read remote records: %w", err)
	}

	return consistency.Compare(localRecords, remoteRecords), nil
}

func renderReport(w io.Writer, report consistency.Report) {
	c := report.Counts
	fmt.Fprintf(w, "checked %d record key(s): %d consistent, %d inconsistent, %d local-only, %d remote-only\n",
		c.Total(), c.Consistent, c.Inconsistent, c.LocalOnly, c.RemoteOnly)

	for _, cmp := range report.Comparisons {
		switch cmp.Classification {
		case consistency.Consistent:
			continue
		case consistency.Inconsistent:
			fmt.Fprintf(w, "  %s  inconsistent\n", cmp.Key)
			for _, d := range cmp.Diffs {
				fmt.Fprintf(w, "      %-28s local=%q remote=%q\n", d.Field, d.Local, d.Remote)
			}
		case consistency.LocalOnly:
			fmt.Fprintf(w, "  %s  local only\n", cmp.Key)
		case consistency.RemoteOnly:
			fmt.Fprintf(w, "  %s  remote only\n", cmp.Key)
		}
	}
	for _, dup := range report.Duplicates {
		fmt.Fprintf(w, "  %s  duplicated %d times on %s side\n", dup.Key, dup.Count, dup.Side)
	}
}
