package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltastro/goastrosalt/proposal"
)

var downloadOut string

var downloadCmd = &cobra.Command{
	Use:   "download <proposal-code>",
	Short: "Download a proposal zip file",
	Long: `Download the zip file of a proposal. The proposal code in the
contained Proposal.xml is updated to the real code, as the stored file may
still carry a placeholder code.

Example:
  salt download 2024-2-SCI-042 -o proposal.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "Output file (defaults to <proposal-code>.zip)")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	proposalCode := args[0]
	out := downloadOut
	if out == "" {
		out = proposalCode + ".zip"
	}

	if err := proposal.DownloadZipFile(cmd.Context(), session, proposalCode, out); err != nil {
		return err
	}
	fmt.Printf("Downloaded %s to %s.\n", proposalCode, out)
	return nil
}
