package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saltastro/goastrosalt/internal/logging"
	"github.com/saltastro/goastrosalt/submission"
)

var progressFollow bool

var progressCmd = &cobra.Command{
	Use:   "progress <identifier>",
	Short: "Show the progress of a submission",
	Long: `Show the current status and progress log of a submission. You must
have initiated the submission to track it.

With --follow the command streams progress updates until the submission
finishes, exiting non-zero if it fails.

Examples:
  salt progress abcd
  salt progress abcd --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runProgress,
}

func init() {
	progressCmd.Flags().BoolVarP(&progressFollow, "follow", "f", false, "Stream progress updates")
	rootCmd.AddCommand(progressCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	sub := submission.NewSubmission(session, args[0],
		submission.WithPollInterval(cfg.PollInterval),
		submission.WithMaxRetries(cfg.MaxRetries),
	)

	if progressFollow {
		return followSubmission(cmd, sub)
	}

	ctx := cmd.Context()
	status, err := sub.Status(ctx)
	if err != nil {
		return err
	}
	log, err := sub.Log(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s\n", status)
	for _, entry := range log {
		printLogEntry(entry)
	}
	return reportOutcome(cmd, sub)
}

// followSubmission streams progress updates for the submission, printing
// each log entry, until the submission finishes or the user interrupts.
func followSubmission(cmd *cobra.Command, sub *submission.Submission) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates, errs := sub.Stream(ctx)
	for update := range updates {
		for _, entry := range update.Entries {
			printLogEntry(entry)
		}
	}
	if err := <-errs; err != nil {
		logging.Error("progress stream failed", "submission", sub.Identifier(), "error", err)
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return reportOutcome(cmd, sub)
}

// reportOutcome prints the final result for a finished submission, or
// nothing if it is still in progress. A failed submission yields an error so
// the command exits non-zero.
func reportOutcome(cmd *cobra.Command, sub *submission.Submission) error {
	ctx := cmd.Context()
	status, err := sub.Status(ctx)
	if err != nil {
		return err
	}

	switch status {
	case submission.StatusSuccessful:
		code, err := sub.ProposalCode(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Submission successful: %s\n", code)
		return nil
	case submission.StatusFailed:
		message, err := sub.ErrorMessage(ctx)
		if err != nil {
			return err
		}
		if message == "" {
			return fmt.Errorf("submission failed")
		}
		return fmt.Errorf("submission failed: %s", message)
	default:
		return nil
	}
}

func printLogEntry(entry submission.LogEntry) {
	fmt.Printf("%s  %-7s  %s\n", entry.LoggedAt.Format("2006-01-02 15:04:05"), entry.MessageType, entry.Message)
}
