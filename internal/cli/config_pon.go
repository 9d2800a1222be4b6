package cli

import (
	"fmt"

	"github.com/me/balsamic/internal/analysis"
	"github.com/me/balsamic/internal/reference"
	"github.com/me/balsamic/internal/samples"
	"github.com/me/balsamic/internal/workflow"
	"github.com/me/balsamic/pkg/model"
	"github.com/spf13/cobra"
)

func newConfigPONCmd() *cobra.Command {
	var (
		common         commonConfigFlags
		ponWorkflow    string
		ponVersion     string
		genomeInterval string
	)

	cmd := &cobra.Command{
		Use:   "pon",
		Short: "Create the configuration document of a panel of normals build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.check(); err != nil {
				return err
			}
			if err := usageEnum("--pon-workflow", model.PONWorkflow(ponWorkflow), model.PONWorkflows); err != nil {
				return err
			}

			in := analysis.Inputs{
				CaseID:         common.caseID,
				AnalysisDir:    common.analysisDir,
				PanelBED:       common.panelBED,
				PON:            true,
				PONWorkflow:    model.PONWorkflow(ponWorkflow),
				PONVersion:     ponVersion,
				GenomeInterval: genomeInterval,
				QualityTrim:    common.qualityTrim,
				AdapterTrim:    common.adapterTrim,
				UMI:            common.umi,
				UMITrimLength:  common.umiTrimLength,
			}
			if err := analysis.CheckUsage(in); err != nil {
				return err
			}

			var o reference.Overrides
			if in.PONWorkflow.IsGENS() {
				o.GenomeInterval = genomeInterval
			}
			res, err := resolveResources(&common, o)
			if err != nil {
				return err
			}
			res.apply(&in)

			in.Samples, err = samples.ResolvePON(common.fastqPath)
			if err != nil {
				return err
			}

			doc, err := analysis.Build(in)
			if err != nil {
				return err
			}
			path := analysis.ConfigPath(doc.Analysis.AnalysisDir, doc.Analysis.CaseID, true)
			if err := persist(doc, path, common.fastqPath); err != nil {
				return err
			}

			dot, err := workflow.WriteDAG(doc)
			if err != nil {
				return err
			}
			logger.Info("workflow graph written", "case", doc.Analysis.CaseID, "path", dot)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	common.register(cmd)
	cmd.Flags().StringVar(&ponWorkflow, "pon-workflow", string(model.PONWorkflowCNVkit), "PON builder: CNVkit, GENS_male or GENS_female")
	cmd.Flags().StringVar(&ponVersion, "version", "v1", "Version of the PON file to create")
	cmd.Flags().StringVar(&genomeInterval, "genome-interval", "", "Genome interval list (required for GENS)")

	return cmd
}
