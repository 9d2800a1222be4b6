package cli

import (
	"fmt"
	"path/filepath"

	"github.com/me/balsamic/internal/analysis"
	"github.com/me/balsamic/internal/reference"
	"github.com/me/balsamic/internal/samples"
	"github.com/me/balsamic/internal/toolversion"
	"github.com/me/balsamic/internal/workflow"
	"github.com/me/balsamic/pkg/model"
	"github.com/spf13/cobra"
)

// commonConfigFlags are shared by config case and config pon.
type commonConfigFlags struct {
	caseID        string
	analysisDir   string
	fastqPath     string
	panelBED      string
	genomeVersion string
	cacheDir      string
	cacheVersion  string

	qualityTrim   bool
	adapterTrim   bool
	umi           bool
	umiTrimLength int

	skipReferenceCheck bool
}

func (f *commonConfigFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.caseID, "case-id", "", "Case identifier (required)")
	cmd.Flags().StringVar(&f.analysisDir, "analysis-dir", "", "Root analysis directory (required)")
	cmd.Flags().StringVar(&f.fastqPath, "fastq-path", "", "Directory holding the case FASTQ files (required)")
	cmd.Flags().StringVar(&f.panelBED, "panel-bed", "", "Capture kit BED file of a targeted analysis")
	cmd.Flags().StringVarP(&f.genomeVersion, "genome-version", "g", "", "Reference genome build: hg19, hg38 or canfam3 (default from settings)")
	cmd.Flags().StringVar(&f.cacheDir, "balsamic-cache", "", "Reference cache root (default from settings)")
	cmd.Flags().StringVar(&f.cacheVersion, "cache-version", "", "Reference cache version (default from settings)")
	cmd.Flags().BoolVar(&f.qualityTrim, "quality-trim", true, "Trim low quality reads")
	cmd.Flags().BoolVar(&f.adapterTrim, "adapter-trim", true, "Trim adapters from reads")
	cmd.Flags().BoolVar(&f.umi, "umi", true, "Trim UMIs from reads (targeted analyses only)")
	cmd.Flags().IntVar(&f.umiTrimLength, "umi-trim-length", 5, "Length of the UMI to trim")
	cmd.Flags().BoolVar(&f.skipReferenceCheck, "skip-reference-check", false, "Do not check that reference files exist")
}

func (f *commonConfigFlags) check() error {
	if f.fastqPath == "" {
		return model.NewUsageError("--fastq-path is required")
	}
	if f.genomeVersion == "" {
		f.genomeVersion = string(settings.Reference.GenomeVersion)
	}
	if f.cacheDir == "" {
		f.cacheDir = settings.Reference.CacheDir
	}
	if f.cacheVersion == "" {
		f.cacheVersion = settings.Reference.CacheVersion
	}
	return usageEnum("--genome-version", model.GenomeVersion(f.genomeVersion), model.GenomeVersions)
}

// resources are the cache-derived parts of a configuration document.
type resources struct {
	reference    model.ReferenceManifest
	tools        toolversion.Registry
	toolVersions model.BioinfoToolVersions
	image        string
	fastqDir     string
}

// resolveResources loads the reference manifest and tool versions. Nothing is
// written to disk.
func resolveResources(f *commonConfigFlags, o reference.Overrides) (*resources, error) {
	log := logger.With("component", "config", "case", f.caseID)
	genome := model.GenomeVersion(f.genomeVersion)

	manifest, err := reference.Resolve(f.cacheDir, f.cacheVersion, genome)
	if err != nil {
		return nil, err
	}
	manifest, err = reference.Apply(manifest, o)
	if err != nil {
		return nil, err
	}
	if f.skipReferenceCheck {
		log.Warn("skipping reference file check")
	} else if err := reference.Verify(manifest); err != nil {
		return nil, err
	}
	log.Info("reference resolved", "cache", reference.Dir(f.cacheDir, f.cacheVersion, genome), "roles", len(manifest))

	registry := toolversion.DefaultRegistry()
	versions, err := toolversion.Resolve(registry, settings.Workflow.EnvDir)
	if err != nil {
		return nil, err
	}

	analysisDir, err := filepath.Abs(f.analysisDir)
	if err != nil {
		return nil, fmt.Errorf("resolve analysis dir: %w", err)
	}
	return &resources{
		reference:    manifest,
		tools:        registry,
		toolVersions: versions,
		image:        filepath.Join(f.cacheDir, f.cacheVersion, "containers"),
		fastqDir:     samples.CaseFastqDir(analysisDir, f.caseID),
	}, nil
}

func (r *resources) apply(in *analysis.Inputs) {
	in.FastqPath = r.fastqDir
	in.Reference = r.reference
	in.BioinfoTools = map[string]string(r.tools)
	in.ToolVersions = r.toolVersions
	in.SingularityImage = r.image
	in.BalsamicVersion = Version
}

// persist links the case FASTQs from fastqSrc, writes the document and
// creates its analysis directories.
func persist(doc *model.ConfigDocument, path, fastqSrc string) error {
	log := logger.With("component", "samples", "case", doc.Analysis.CaseID)
	if err := samples.LinkFastqs(fastqSrc, doc.Analysis.FastqPath, log); err != nil {
		return err
	}
	if err := analysis.Write(doc, path); err != nil {
		return err
	}
	if err := analysis.CreateDirectories(doc); err != nil {
		return err
	}
	logger.Info("config file saved", "case", doc.Analysis.CaseID, "path", path)
	return nil
}

func newConfigCaseCmd() *cobra.Command {
	var (
		common             commonConfigFlags
		gender             string
		ponCNN             string
		backgroundVariants string
		tumorName          string
		normalName         string
		analysisWorkflow   string
		overrides          reference.Overrides
	)

	cmd := &cobra.Command{
		Use:   "case",
		Short: "Create the configuration document of a tumor-only or tumor/normal case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := common.check(); err != nil {
				return err
			}
			if tumorName == "" {
				return model.NewUsageError("--tumor-sample-name is required")
			}
			if err := usageEnum("--gender", model.Gender(gender), model.Genders); err != nil {
				return err
			}
			if err := usageEnum("--analysis-workflow", model.AnalysisWorkflow(analysisWorkflow), model.AnalysisWorkflows); err != nil {
				return err
			}

			in := analysis.Inputs{
				CaseID:             common.caseID,
				AnalysisDir:        common.analysisDir,
				Gender:             model.Gender(gender),
				AnalysisWorkflow:   model.AnalysisWorkflow(analysisWorkflow),
				PanelBED:           common.panelBED,
				PONCNN:             ponCNN,
				BackgroundVariants: backgroundVariants,
				NormalSampleName:   normalName,
				QualityTrim:        common.qualityTrim,
				AdapterTrim:        common.adapterTrim,
				UMI:                common.umi,
				UMITrimLength:      common.umiTrimLength,
			}
			if err := analysis.CheckUsage(in); err != nil {
				return err
			}

			res, err := resolveResources(&common, overrides)
			if err != nil {
				return err
			}
			res.apply(&in)

			in.Samples, err = samples.Resolve(common.fastqPath, tumorName, normalName)
			if err != nil {
				return err
			}

			doc, err := analysis.Build(in)
			if err != nil {
				return err
			}
			path := analysis.ConfigPath(doc.Analysis.AnalysisDir, doc.Analysis.CaseID, false)
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
	cmd.Flags().StringVar(&gender, "gender", string(model.GenderFemale), "Case gender: female or male")
	cmd.Flags().StringVar(&ponCNN, "pon-cnn", "", "Panel of normals reference (.cnn) for CNVkit")
	cmd.Flags().StringVar(&backgroundVariants, "background-variants", "", "VCF of background variants")
	cmd.Flags().StringVarP(&tumorName, "tumor-sample-name", "t", "", "Tumor sample name (required)")
	cmd.Flags().StringVarP(&normalName, "normal-sample-name", "n", "", "Normal sample name")
	cmd.Flags().StringVarP(&analysisWorkflow, "analysis-workflow", "w", string(model.WorkflowBalsamic), "Workflow variant: balsamic, balsamic-umi or balsamic-qc")

	cmd.Flags().StringVar(&overrides.CADDAnnotations, "cadd-annotations", "", "CADD annotations directory")
	cmd.Flags().StringVar(&overrides.ClinicalSNVObservations, "clinical-snv-observations", "", "VCF of clinical SNV observations")
	cmd.Flags().StringVar(&overrides.ClinicalSVObservations, "clinical-sv-observations", "", "VCF of clinical SV observations")
	cmd.Flags().StringVar(&overrides.CancerGermlineSNV, "cancer-germline-snv-observations", "", "VCF of cancer germline SNV observations")
	cmd.Flags().StringVar(&overrides.CancerSomaticSNV, "cancer-somatic-snv-observations", "", "VCF of cancer somatic SNV observations")
	cmd.Flags().StringVar(&overrides.CancerSomaticSV, "cancer-somatic-sv-observations", "", "VCF of cancer somatic SV observations")
	cmd.Flags().StringVar(&overrides.SwegenSNV, "swegen-snv", "", "VCF of SweGen SNV frequencies")
	cmd.Flags().StringVar(&overrides.SwegenSV, "swegen-sv", "", "VCF of SweGen SV frequencies")

	return cmd
}
