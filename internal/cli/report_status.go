package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/balsamic/internal/analysis"
	"github.com/me/balsamic/internal/execution"
	"github.com/me/balsamic/internal/status"
	"github.com/me/balsamic/internal/workflow"
	"github.com/me/balsamic/pkg/model"
	"github.com/spf13/cobra"
)

func newReportStatusCmd() *cobra.Command {
	var (
		sampleConfig    string
		summaryFile     string
		snakeFile       string
		showOnlyMissing bool
		printFiles      bool
		history         bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report the output files of a case and its run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sampleConfig == "" {
				return model.NewUsageError("--sample-config is required")
			}
			configPath, err := filepath.Abs(sampleConfig)
			if err != nil {
				return fmt.Errorf("resolve sample config: %w", err)
			}
			doc, err := analysis.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if history {
				if err := printHistory(cmd.Context(), out, doc.Analysis.CaseID); err != nil {
					return err
				}
			}

			if !status.Finished(doc.Analysis.Result) {
				logger.Warn("analysis_finish file is missing, analysis might be incomplete or running",
					"case", doc.Analysis.CaseID)
			}

			var summary io.Reader
			if summaryFile != "" {
				data, err := os.ReadFile(summaryFile)
				if errors.Is(err, fs.ErrNotExist) {
					return model.NewResourceNotFoundError("summary file", summaryFile)
				}
				if err != nil {
					return fmt.Errorf("read summary file: %w", err)
				}
				summary = bytes.NewReader(data)
			} else {
				if snakeFile == "" {
					snakeFile = workflow.Snakefile(settings.Workflow.Dir, doc.Analysis.AnalysisType,
						doc.Analysis.AnalysisWorkflow, settings.Reference.GenomeVersion)
				}
				text, err := engineSummary(cmd.Context(), doc, snakeFile, configPath)
				if err != nil {
					return err
				}
				summary = strings.NewReader(text)
			}

			files, err := status.ParseSummary(summary)
			if err != nil {
				return err
			}
			status.Print(out, status.Tally(files), status.PrintOptions{
				PrintFiles:      printFiles,
				ShowOnlyMissing: showOnlyMissing,
				Color:           out == os.Stdout && status.ColorEnabled(os.Stdout),
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&sampleConfig, "sample-config", "s", "", "Case configuration document (required)")
	cmd.Flags().StringVar(&summaryFile, "summary-file", "", "Read an engine --summary TSV instead of running the engine")
	cmd.Flags().StringVarP(&snakeFile, "snake-file", "S", "", "Workflow file overriding the selected one")
	cmd.Flags().BoolVarP(&showOnlyMissing, "show-only-missing", "m", false, "Only show missing files")
	cmd.Flags().BoolVarP(&printFiles, "print-files", "p", false, "Print the list of files, otherwise only the final tally")
	cmd.Flags().BoolVar(&history, "history", true, "Print the run history of the case")

	return cmd
}

// engineSummary asks the engine for the summary TSV of the case outputs.
func engineSummary(ctx context.Context, doc *model.ConfigDocument, snakefile, configPath string) (string, error) {
	exe := settings.Workflow.Snakemake
	if exe == "" {
		exe = "snakemake"
	}
	engine := execution.NewEngine(execution.Config{Logger: logger})
	result, err := engine.Dispatch(ctx, execution.Invocation{
		Command: []string{exe,
			"--snakefile", snakefile,
			"--configfiles", configPath,
			"--directory", filepath.Join(doc.Analysis.AnalysisDir, doc.Analysis.CaseID, RunDirName),
			"--summary", "--dryrun", "--quiet",
		},
		WorkDir: doc.Analysis.Result,
	})
	if err != nil {
		return "", fmt.Errorf("engine summary: %w", err)
	}
	return result.Stdout, nil
}

func printHistory(ctx context.Context, w io.Writer, caseID string) error {
	ledger, err := openLedger(ctx)
	if err != nil {
		return err
	}
	defer ledger.Close()

	runs, err := ledger.ListRunsByCase(ctx, caseID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s.\n\n", caseID)
		return nil
	}

	fmt.Fprintf(w, "%-36s  %-10s  %-8s  %-7s  %-4s  %s\n", "RUN", "STATE", "MODE", "DRY-RUN", "EXIT", "CREATED")
	fmt.Fprintf(w, "%-36s  %-10s  %-8s  %-7s  %-4s  %s\n", "---", "-----", "----", "-------", "----", "-------")
	for _, r := range runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprint(*r.ExitCode)
		}
		fmt.Fprintf(w, "%-36s  %-10s  %-8s  %-7t  %-4s  %s\n",
			r.ID, r.State, r.RunMode, r.DryRun, exit, r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
	return nil
}
