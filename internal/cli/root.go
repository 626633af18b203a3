// Package cli implements the salt command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	salt "github.com/saltastro/goastrosalt"
	"github.com/saltastro/goastrosalt/internal/auth"
	"github.com/saltastro/goastrosalt/internal/config"
	"github.com/saltastro/goastrosalt/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	baseURLFlag string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "salt",
	Short: "Submit and track SALT proposals",
	Long: `salt submits proposal and block archives to the SALT API, tracks
their server-side processing and downloads proposal archives.

Log in once with "salt login"; the access token is kept in the OS keyring.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			logging.SetLevel(logging.LevelDebug)
		}
	},
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("salt version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "API base URL (overrides the config file)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig returns the CLI configuration with the --base-url flag applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newSession builds an API session from the configuration and any stored
// access token.
func newSession(cfg *config.Config) (*salt.Session, error) {
	var opts []salt.SessionOption
	token, err := auth.NewStore().Token()
	if err == nil && token != "" {
		opts = append(opts, salt.WithAccessToken(token))
	}

	session, err := salt.NewSession(cfg.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return session, nil
}
