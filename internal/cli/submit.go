package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltastro/goastrosalt/submission"
)

var (
	submitProposalCode string
	submitFollow       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a proposal or block archive",
	Long: `Submit a proposal or block zip file to the SALT API.

The archive must contain exactly one of Proposal.xml, Blocks.xml or
Block.xml. For a resubmission or a block submission pass the proposal code
with --proposal-code.

With --follow the command streams the submission progress and exits non-zero
if the submission fails.

Examples:
  salt submit proposal.zip
  salt submit proposal.zip --proposal-code 2024-2-SCI-042 --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitProposalCode, "proposal-code", "", "Proposal code for resubmissions and block submissions")
	submitCmd.Flags().BoolVarP(&submitFollow, "follow", "f", false, "Stream the submission progress")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	sub, err := submission.Submit(cmd.Context(), session, args[0], submitProposalCode)
	if err != nil {
		return err
	}
	fmt.Printf("Submission accepted: %s\n", sub.Identifier())

	if !submitFollow {
		return nil
	}
	return followSubmission(cmd, sub)
}
