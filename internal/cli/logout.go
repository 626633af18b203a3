package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saltastro/goastrosalt/internal/auth"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out from the SALT API server",
	Long: `Remove the stored access token, so further commands run
unauthenticated. Logging out while not logged in is not an error.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := auth.NewStore().DeleteToken(); err != nil {
		return fmt.Errorf("failed to remove the access token: %w", err)
	}
	fmt.Println("Logged out.")
	return nil
}
