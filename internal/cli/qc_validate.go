package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/me/balsamic/internal/analysis"
	"github.com/me/balsamic/internal/qc"
	"github.com/me/balsamic/pkg/model"
	"github.com/spf13/cobra"
)

func newQCValidateCmd() *cobra.Command {
	var (
		sampleConfig     string
		requestedMetrics string
		output           string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Extract the QC metrics of a case and validate them against their conditions",
		Long: `Collects the requested metrics from the QC outputs under the case result
directory, writes the metrics deliverables document and fails when any metric
violates its condition.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sampleConfig == "" {
				return model.NewUsageError("--sample-config is required")
			}
			if requestedMetrics == "" {
				requestedMetrics = settings.QC.RequestedMetrics
			}
			if requestedMetrics == "" {
				return model.NewUsageError("--requested-metrics is required when settings do not name one")
			}

			configPath, err := filepath.Abs(sampleConfig)
			if err != nil {
				return fmt.Errorf("resolve sample config: %w", err)
			}
			doc, err := analysis.Load(configPath)
			if err != nil {
				return err
			}
			log := logger.With("component", "qc", "case", doc.Analysis.CaseID)

			spec, err := qc.LoadRequested(requestedMetrics)
			if err != nil {
				return err
			}
			var panel string
			if doc.Panel != nil {
				panel = qc.PanelScope(doc.Panel.CaptureKit)
			}
			requested, err := qc.RequestedFor(spec, doc.Analysis.SequencingType, panel)
			if err != nil {
				return err
			}
			log.Debug("requested metrics", "count", len(requested), "panel", panel)

			metrics, err := qc.Extract(doc.Analysis.Result, requested, qc.DefaultSources(), log)
			if err != nil {
				return err
			}
			if output == "" {
				output = qc.DeliverablesPath(doc.Analysis.Result, doc.Analysis.CaseID)
			}
			if err := qc.WriteDocument(metrics, output); err != nil {
				return err
			}
			log.Info("qc metrics written", "path", output, "samples", len(metrics.Metrics))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(qc.GetJSON(metrics)); err != nil {
				return fmt.Errorf("encode qc metrics: %w", err)
			}

			if err := qc.Validate(metrics); err != nil {
				log.Error("qc validation failed", "error", err)
				return err
			}
			log.Info("qc validation passed")
			return nil
		},
	}

	cmd.Flags().StringVarP(&sampleConfig, "sample-config", "s", "", "Case configuration document (required)")
	cmd.Flags().StringVar(&requestedMetrics, "requested-metrics", "", "Requested metrics file, YAML or JSON (default from settings)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Metrics document path (default <result>/qc/<case>_metrics_deliverables.json)")

	return cmd
}
