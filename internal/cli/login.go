package cli

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/saltastro/goastrosalt/internal/auth"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the SALT API server",
	Long: `Log in to the SALT API server with your SALT account.

The password is read from the terminal (or from stdin when it is not a
terminal). On success the access token is stored in the OS keyring and is
used by all further commands until you log out.

Example:
  salt login --username jdoe`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "SALT account username")
	loginCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	session, err := newSession(cfg)
	if err != nil {
		return err
	}
	if err := session.Login(cmd.Context(), loginUsername, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := auth.NewStore().SetToken(session.AccessToken()); err != nil {
		return fmt.Errorf("failed to store the access token: %w", err)
	}

	fmt.Printf("Logged in as %s.\n", loginUsername)
	return nil
}

// readPassword prompts for a password without echoing it. When stdin is not
// a terminal the password is read as a single line instead, so the command
// stays scriptable.
func readPassword() (string, error) {
	fd := int(syscall.Stdin)
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(password), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
