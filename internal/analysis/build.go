// Package analysis builds, persists and loads case configuration documents.
package analysis

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/me/balsamic/internal/validate"
	"github.com/me/balsamic/pkg/model"
)

// Directory names under analysis_dir/case_id.
const (
	ResultDirName    = "analysis"
	LogDirName       = "logs"
	ScriptDirName    = "scripts"
	BenchmarkDirName = "benchmarks"
)

// Inputs are the raw values a case document is derived from. Samples,
// Reference and ToolVersions come from the resolvers.
type Inputs struct {
	CaseID           string
	AnalysisDir      string
	FastqPath        string
	Gender           model.Gender
	AnalysisWorkflow model.AnalysisWorkflow
	PanelBED         string
	PONCNN           string
	// BackgroundVariants is an optional VCF of known background variants.
	BackgroundVariants string
	NormalSampleName   string

	// PON builds only.
	PON            bool
	PONWorkflow    model.PONWorkflow
	PONVersion     string
	GenomeInterval string

	QualityTrim   bool
	AdapterTrim   bool
	UMI           bool
	UMITrimLength int

	Samples          map[string]model.Sample
	Reference        model.ReferenceManifest
	BioinfoTools     map[string]string
	ToolVersions     model.BioinfoToolVersions
	SingularityImage string
	BalsamicVersion  string

	Now func() time.Time
}

// CheckUsage rejects argument combinations that cannot produce a document.
// It touches nothing on disk so it can run before any side effect.
func CheckUsage(in Inputs) error {
	if in.CaseID == "" {
		return model.NewUsageError("--case-id is required")
	}
	if in.AnalysisDir == "" {
		return model.NewUsageError("--analysis-dir is required")
	}
	if in.PON {
		if in.PONWorkflow.IsGENS() && in.GenomeInterval == "" {
			return model.NewUsageError("--genome-interval is required for GENS PON creation")
		}
		if in.PONWorkflow == model.PONWorkflowCNVkit && in.PanelBED == "" {
			return model.NewUsageError("--panel-bed is required for CNVkit PON creation")
		}
		return nil
	}
	if in.AnalysisWorkflow == model.WorkflowBalsamicUMI && in.PanelBED == "" {
		return model.NewUsageError("the %s workflow requires --panel-bed", model.WorkflowBalsamicUMI)
	}
	if in.PONCNN != "" && in.PanelBED == "" {
		return model.NewUsageError("--pon-cnn requires --panel-bed")
	}
	return nil
}

// Build derives and validates the configuration document of a case.
func Build(in Inputs) (*model.ConfigDocument, error) {
	if err := CheckUsage(in); err != nil {
		return nil, err
	}

	analysisDir, err := filepath.Abs(in.AnalysisDir)
	if err != nil {
		return nil, fmt.Errorf("resolve analysis dir: %w", err)
	}
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}

	a := model.AnalysisConfig{
		CaseID:             in.CaseID,
		Gender:             in.Gender,
		AnalysisDir:        analysisDir,
		FastqPath:          in.FastqPath,
		BalsamicVersion:    in.BalsamicVersion,
		ConfigCreationDate: model.FormatCreationDate(now()),
		AnalysisType:       deriveAnalysisType(in),
		SequencingType:     deriveSequencingType(in.PanelBED),
		AnalysisWorkflow:   in.AnalysisWorkflow,
	}
	if in.PON {
		a.PONWorkflow = in.PONWorkflow
		a.PONVersion = in.PONVersion
		if a.AnalysisWorkflow == "" {
			a.AnalysisWorkflow = model.WorkflowBalsamic
		}
	}
	setDerivedPaths(&a)

	qc := model.DefaultQCConfig()
	qc.QualityTrim = in.QualityTrim
	qc.AdapterTrim = in.AdapterTrim
	qc.UMITrim = in.UMI && in.PanelBED != ""
	if in.UMITrimLength > 0 {
		qc.UMITrimLength = in.UMITrimLength
	}

	doc := &model.ConfigDocument{
		QC:                  qc,
		Analysis:            a,
		Reference:           in.Reference,
		Samples:             in.Samples,
		BioinfoTools:        in.BioinfoTools,
		BioinfoToolsVersion: in.ToolVersions,
		Singularity:         model.Singularity{Image: in.SingularityImage},
		BackgroundVariants:  in.BackgroundVariants,
	}
	if !in.PON {
		doc.VCF = DefaultVCF()
	}

	if in.PanelBED != "" {
		panel, err := loadPanel(in.PanelBED, in.PONCNN, !in.PON)
		if err != nil {
			return nil, err
		}
		doc.Panel = panel
	}

	if err := validate.Document(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func deriveAnalysisType(in Inputs) model.AnalysisType {
	switch {
	case in.PON:
		return model.AnalysisTypePON
	case in.NormalSampleName != "":
		return model.AnalysisTypePaired
	}
	return model.AnalysisTypeSingle
}

func deriveSequencingType(panelBED string) model.SequencingType {
	if panelBED != "" {
		return model.SequencingTypeTargeted
	}
	return model.SequencingTypeWGS
}

// setDerivedPaths fills the per-case directories and the DAG path.
func setDerivedPaths(a *model.AnalysisConfig) {
	caseDir := filepath.Join(a.AnalysisDir, a.CaseID)
	a.Result = filepath.Join(caseDir, ResultDirName)
	a.Log = filepath.Join(caseDir, LogDirName)
	a.Script = filepath.Join(caseDir, ScriptDirName)
	a.Benchmark = filepath.Join(caseDir, BenchmarkDirName)
	a.Dag = filepath.Join(caseDir, fmt.Sprintf("%s_BALSAMIC_%s_graph.pdf", a.CaseID, a.BalsamicVersion))
}
