package cli

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/me/balsamic/internal/config"
	"github.com/me/balsamic/internal/logging"
	"github.com/me/balsamic/pkg/model"
	"github.com/spf13/cobra"
)

// Version is the BALSAMIC release this binary configures workflows for.
const Version = "13.0.0"

var (
	flagSettings  string
	flagLogLevel  string
	flagLogFormat string

	logger   *slog.Logger
	settings config.Settings
)

// NewRootCmd creates the root cobra command for the balsamic CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "balsamic",
		Short:   "BALSAMIC: Bioinformatic Analysis pipeLine for SomAtic MutatIons in Cancer",
		Long:    "balsamic configures cancer variant-calling cases, dispatches the workflow engine and validates QC metrics.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(flagSettings)
			if err != nil {
				return err
			}
			if flagLogLevel != "" {
				s.LogLevel = flagLogLevel
			}
			if flagLogFormat != "" {
				s.LogFormat = flagLogFormat
			}
			settings = s
			logger = logging.NewLogger(logging.ParseLevel(s.LogLevel), s.LogFormat)
			logger.Debug("settings loaded", "path", flagSettings)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return model.NewUsageError("%s", err.Error())
	})

	root.PersistentFlags().StringVar(&flagSettings, "settings", config.DefaultPath(), "Settings file (or "+config.EnvSettings+" env)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error, critical)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (text, json)")

	root.AddCommand(
		newConfigCmd(),
		newRunCmd(),
		newReportCmd(),
		newQCCmd(),
	)

	return root
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create a case or PON configuration document",
	}
	cmd.AddCommand(newConfigCaseCmd(), newConfigPONCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workflow of a configured case",
	}
	cmd.AddCommand(newRunAnalysisCmd())
	return cmd
}

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report on the outputs of a case",
	}
	cmd.AddCommand(newReportStatusCmd())
	return cmd
}

func newQCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qc",
		Short: "Extract and validate QC metrics",
	}
	cmd.AddCommand(newQCValidateCmd())
	return cmd
}

// usageEnum checks a flag value against its allowed set.
func usageEnum[T ~string](flag string, v T, allowed []T) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return model.NewUsageError("invalid value %q for %s (allowed: %s)", v, flag, strings.Join(names, ", "))
}
