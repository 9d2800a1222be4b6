package model

import (
	"sort"
	"time"
)

// Sample is one FASTQ read-pair prefix of a case.
type Sample struct {
	FilePrefix     string     `json:"file_prefix"`
	Type           SampleType `json:"type,omitempty"`
	SampleName     string     `json:"sample_name"`
	ReadpairSuffix []string   `json:"readpair_suffix"`
}

// DefaultReadpairSuffix is the read-pair suffix pair of every sample.
func DefaultReadpairSuffix() []string {
	return []string{"1", "2"}
}

// ReferenceManifest maps reference roles to absolute paths.
type ReferenceManifest map[string]string

// Roles returns the manifest roles in sorted order.
func (m ReferenceManifest) Roles() []string {
	roles := make([]string, 0, len(m))
	for r := range m {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// BioinfoToolVersions maps a tool name to its sorted, de-duplicated versions.
type BioinfoToolVersions map[string][]string

// QCConfig holds read pre-processing parameters.
type QCConfig struct {
	PicardRmdup   bool `json:"picard_rmdup"`
	QualityTrim   bool `json:"quality_trim"`
	AdapterTrim   bool `json:"adapter_trim"`
	UMITrim       bool `json:"umi_trim"`
	UMITrimLength int  `json:"umi_trim_length"`
	MinSeqLength  int  `json:"min_seq_length"`
	NBaseLimit    int  `json:"n_base_limit"`
}

// DefaultQCConfig returns the pre-processing defaults.
func DefaultQCConfig() QCConfig {
	return QCConfig{
		QualityTrim:   true,
		AdapterTrim:   true,
		UMITrim:       true,
		UMITrimLength: 5,
		MinSeqLength:  25,
		NBaseLimit:    50,
	}
}

// AnalysisConfig describes one case analysis and its derived directories.
type AnalysisConfig struct {
	CaseID             string           `json:"case_id"`
	Gender             Gender           `json:"gender,omitempty"`
	AnalysisDir        string           `json:"analysis_dir"`
	FastqPath          string           `json:"fastq_path"`
	Script             string           `json:"script"`
	Log                string           `json:"log"`
	Result             string           `json:"result"`
	Benchmark          string           `json:"benchmark"`
	Dag                string           `json:"dag"`
	BalsamicVersion    string           `json:"BALSAMIC_version"`
	ConfigCreationDate string           `json:"config_creation_date"`
	AnalysisType       AnalysisType     `json:"analysis_type"`
	SequencingType     SequencingType   `json:"sequencing_type"`
	AnalysisWorkflow   AnalysisWorkflow `json:"analysis_workflow"`
	PONWorkflow        PONWorkflow      `json:"pon_workflow,omitempty"`
	PONVersion         string           `json:"pon_version,omitempty"`
}

// PanelConfig describes the capture kit of a targeted analysis.
type PanelConfig struct {
	CaptureKit string   `json:"capture_kit"`
	Chrom      []string `json:"chrom,omitempty"`
	PONCNN     string   `json:"pon_cnn,omitempty"`
}

// VarCallerFilter describes when a variant caller applies.
type VarCallerFilter struct {
	Mutation         string           `json:"mutation"`
	Type             string           `json:"type"`
	AnalysisType     []AnalysisType   `json:"analysis_type"`
	SequencingType   []SequencingType `json:"sequencing_type"`
	WorkflowSolution string           `json:"workflow_solution"`
}

// Singularity points to the container image directory.
type Singularity struct {
	Image string `json:"image"`
}

// ConfigDocument is the complete case configuration consumed by the
// execution engine.
type ConfigDocument struct {
	QC                  QCConfig                   `json:"QC"`
	Analysis            AnalysisConfig             `json:"analysis"`
	Reference           ReferenceManifest          `json:"reference"`
	Panel               *PanelConfig               `json:"panel,omitempty"`
	Samples             map[string]Sample          `json:"samples"`
	BioinfoTools        map[string]string          `json:"bioinfo_tools"`
	BioinfoToolsVersion BioinfoToolVersions        `json:"bioinfo_tools_version"`
	VCF                 map[string]VarCallerFilter `json:"vcf,omitempty"`
	Singularity         Singularity                `json:"singularity"`
	BackgroundVariants  string                     `json:"background_variants,omitempty"`
}

// SamplesOfType returns the samples of the given type sorted by file prefix.
func (d *ConfigDocument) SamplesOfType(t SampleType) []Sample {
	var out []Sample
	for _, s := range d.Samples {
		if s.Type == t {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePrefix < out[j].FilePrefix })
	return out
}

// IsPON reports whether the document configures a panel-of-normals build.
func (d *ConfigDocument) IsPON() bool {
	return d.Analysis.AnalysisType == AnalysisTypePON
}

// CreationDateLayout is the layout of AnalysisConfig.ConfigCreationDate.
const CreationDateLayout = "2006-01-02 15:04"

// FormatCreationDate formats t for AnalysisConfig.ConfigCreationDate.
func FormatCreationDate(t time.Time) string {
	return t.Format(CreationDateLayout)
}
