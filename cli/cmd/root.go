// Package cmd provides the Cobra commands for the studiokit CLI.
package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/supabase/supabase-sub056/cli/client"
	"github.com/supabase/supabase-sub056/cli/output"
	"github.com/supabase/supabase-sub056/cli/util"
)

// requestTimeout bounds every call to a studiokit server
const requestTimeout = 30 * time.Second

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool
	serverURL string

	// Shared across commands
	formatter *output.Formatter
)

// errNoServer is returned by commands that need a server when none is configured
var errNoServer = errors.New("no server configured (use --server or STUDIOKIT_SERVER)")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "studiokit",
	Short: "studiokit CLI - filter trees, SQL identifiers and log sanitizing",
	Long: `studiokit works with the building blocks of a database table editor.

Features:
  - Filters: Validate, normalize and serialize AND/OR filter trees
  - SQL: Extract identifiers and check which ones need double quotes
  - Sanitize: Redact secrets from JSON arrays before they are logged
  - Tables: Inspect the schema cache of a studiokit server

Most commands run locally. Commands that read table metadata need a
server, given with --server or STUDIOKIT_SERVER.

Get started:
  studiokit sql identifiers "SELECT id FROM users"
  studiokit --help`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupFormatter,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"studiokit server URL (e.g. http://localhost:8080)")

	// Bind environment variables
	viper.SetEnvPrefix("STUDIOKIT")
	_ = viper.BindEnv("server") // STUDIOKIT_SERVER
	_ = viper.BindEnv("debug")  // STUDIOKIT_DEBUG

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(sanitizeCmd)
	rootCmd.AddCommand(tablesCmd)
}

func initConfig() {
	viper.AutomaticEnv()
}

// setupFormatter builds the shared formatter around the command's writers
func setupFormatter(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()
	return nil
}

// resolveServer returns the --server flag, falling back to STUDIOKIT_SERVER
func resolveServer() string {
	if serverURL != "" {
		return serverURL
	}
	return viper.GetString("server")
}

// newClient creates an API client for commands that talk to a server
func newClient(cmd *cobra.Command) (*client.Client, error) {
	server := resolveServer()
	if server == "" {
		return nil, errNoServer
	}
	return client.NewClient(server,
		client.WithDebug(debug || viper.GetBool("debug"), cmd.ErrOrStderr()),
		client.WithTimeout(requestTimeout),
	), nil
}

// readInput reads a command's document from its argument, --file or stdin.
// An interactive terminal on stdin counts as no input.
func readInput(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	in := cmd.InOrStdin()
	interactive := in == os.Stdin && util.IsInteractive()
	return util.ReadInput(arg, file, in, interactive)
}
