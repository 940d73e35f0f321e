package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"farmfield/internal/auth"
	"farmfield/internal/config"
	"farmfield/internal/selection"
	"farmfield/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution, including a Ready selection.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates credentials or a fresh authorization are needed.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the provider rejected the client or token.
	ExitCodeAuthFailed = 3
	// ExitCodeCancelled indicates the user backed out of a field selection.
	ExitCodeCancelled = 4
	// ExitCodeAborted indicates a live field selection could not complete.
	ExitCodeAborted = 5
)

// AbortedError wraps the failure that ended a live selection session.
type AbortedError struct {
	Err error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("field selection aborted: %v", e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}

// options carries the persistent flags and the collaborators commands
// build from them. Tests replace the collaborators.
type options struct {
	configDir string
	tokenDir  string
	logLevel  string
	logFormat string
	quiet     bool

	// newPrompter builds the console prompter for `fields select`.
	newPrompter func(cmd *cobra.Command) (selection.Prompter, error)

	// authorizer overrides the browser based loopback authorizer.
	authorizer auth.Authorizer
}

// rootCmd represents the base command for the farmfield application.
var rootCmd = newRootCmd(&options{})

func newRootCmd(opts *options) *cobra.Command {
	if opts.newPrompter == nil {
		opts.newPrompter = newConsolePrompter
	}

	cmd := &cobra.Command{
		Use:   "farmfield",
		Short: "Acquire and project farm field boundaries",
		Long: `farmfield authenticates against the field provider, lists the fields
of an organization (or the built-in samples) and projects a chosen field
boundary into the planar metres used by the simulation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogging(opts, cmd.ErrOrStderr())
		},
	}
	cmd.SetVersionTemplate(`{{printf "farmfield version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "", "Configuration directory (default ~/.config/farmfield)")
	cmd.PersistentFlags().StringVar(&opts.tokenDir, "token-dir", "", "Token cache directory (overrides token_dir and "+config.EnvTokenDir+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", string(logging.FormatText), "Log format (text, json)")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress progress output")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAuthCmd(opts))
	cmd.AddCommand(newFieldsCmd(opts))
	return cmd
}

func initLogging(opts *options, out io.Writer) error {
	level, err := logging.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	format := logging.Format(opts.logFormat)
	if format != logging.FormatText && format != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q (expected %q or %q)", opts.logFormat, logging.FormatText, logging.FormatJSON)
	}
	logging.Init(level, format, out)
	return nil
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic exit code.
// An interrupt cancels the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
		os.Exit(getExitCode(err))
	}
}

func reportError(w io.Writer, err error) {
	if errors.Is(err, selection.ErrCancelled) {
		fmt.Fprintln(w, "Field selection cancelled.")
		return
	}
	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		fmt.Fprintln(w, "Error: "+cfgErr.DetailedError())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if errors.Is(err, selection.ErrCancelled) || errors.Is(err, context.Canceled) {
		return ExitCodeCancelled
	}

	var aborted *AbortedError
	if errors.As(err, &aborted) {
		return ExitCodeAborted
	}

	if errors.Is(err, auth.ErrReauthorizationRequired) {
		return ExitCodeAuthRequired
	}

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeAuthRequired
	}

	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}
