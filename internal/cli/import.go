package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/kbops-go/internal/kb"
	"github.com/raphaelgruber/kbops-go/internal/kbimport"
	"github.com/raphaelgruber/kbops-go/internal/notify"
)

var (
	importTargetKB string
	importCommit   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import documents into a knowledge base",
	Long: `Start an asynchronous import job on the server and follow it until it
is ready for review.

Examples:
  kbops import file ./handbook.pdf --kb kb-support
  kbops import csv ./faq.csv --kb kb-support --commit
  kbops import url https://example.com/docs --kb kb-support`,
}

var importFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Import a document file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := fileSource(args[0], false)
		if err != nil {
			return err
		}
		return runImport(cmd.Context(), source)
	},
}

var importCSVCmd = &cobra.Command{
	Use:   "csv <path>",
	Short: "Import a CSV of knowledge entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := fileSource(args[0], true)
		if err != nil {
			return err
		}
		return runImport(cmd.Context(), source)
	},
}

var importURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Import a page fetched server-side",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), kb.URLSource{URL: args[0]})
	},
}

func init() {
	importCmd.PersistentFlags().StringVar(&importTargetKB, "kb", "", "target knowledge base id")
	importCmd.PersistentFlags().BoolVar(&importCommit, "commit", false, "commit automatically once processing completes")
	importCmd.AddCommand(importFileCmd)
	importCmd.AddCommand(importCSVCmd)
	importCmd.AddCommand(importURLCmd)
	rootCmd.AddCommand(importCmd)
}

// fileSource stats path and builds the matching source descriptor.
func fileSource(path string, csv bool) (kb.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	name := filepath.Base(path)
	if csv {
		return kb.CSVSource{Name: name, Size: info.Size()}, nil
	}
	return kb.FileSource{Name: name, Size: info.Size()}, nil
}

// runImport drives the full workflow: select source, start, follow the job
// until terminal, optionally commit.
func runImport(ctx context.Context, source kb.Source) error {
	updates := make(chan kbimport.Snapshot, 1)
	orch := kbimport.NewOrchestrator(jobClient,
		kbimport.WithPollPolicy(pollPolicy()),
		kbimport.WithNotifier(notify.NewLog(slog.Default())),
		kbimport.WithOnChange(func(s kbimport.Snapshot) { publish(updates, s) }),
	)
	defer orch.Close()

	if err := orch.SelectSource(source, importTargetKB); err != nil {
		return err
	}

	jobID, err := orch.Start(ctx)
	if err != nil {
		return fmt.Errorf("start import: %w", err)
	}
	fmt.Printf("Import job %s started\n", jobID)

	var (
		final    kbimport.Snapshot
		detached bool
	)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		final, detached, err = runImportProgress(orch.Snapshot(), updates)
		if err != nil {
			return err
		}
	} else {
		final = followPlain(updates)
	}

	if detached {
		// Job keeps running server-side; the view and its poll loop are done.
		return nil
	}

	switch final.State {
	case kbimport.StateCompleted:
		if importCommit {
			if err := orch.Commit(ctx); err != nil {
				return fmt.Errorf("commit import: %w", err)
			}
			fmt.Println("Import committed")
			return nil
		}
		fmt.Printf("Processing complete. Review with 'kbops jobs %s', then 'kbops jobs commit %s'\n", jobID, jobID)
		return nil
	case kbimport.StateCommitted:
		fmt.Println("Import committed")
		return nil
	case kbimport.StateCanceled:
		fmt.Println("Import canceled")
		return nil
	case kbimport.StateFailed:
		if final.Err != nil {
			return final.Err
		}
		return fmt.Errorf("import failed: %s", final.Job.ErrorMessage)
	}
	return nil
}

// followPlain prints one line per state change until the workflow leaves
// the polling stage. Used when stdout is not a terminal.
func followPlain(updates <-chan kbimport.Snapshot) kbimport.Snapshot {
	var lastLine string
	for {
		snap := <-updates
		line := fmt.Sprintf("status=%s progress=%d%%", snap.Job.Status, snap.Job.ProgressPct)
		if line != lastLine {
			fmt.Println(line)
			lastLine = line
		}
		switch snap.State {
		case kbimport.StateStarted, kbimport.StatePolling:
			continue
		}
		return snap
	}
}

// publish delivers the latest snapshot, displacing an unread older one so
// the sender never blocks on a slow or gone consumer.
func publish(ch chan kbimport.Snapshot, s kbimport.Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
