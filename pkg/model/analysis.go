package model

import "slices"

// Gender of the case subject.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

// AnalysisType is derived from the presence of a normal sample.
type AnalysisType string

const (
	AnalysisTypeSingle AnalysisType = "single"
	AnalysisTypePaired AnalysisType = "paired"
	AnalysisTypePON    AnalysisType = "pon"
)

// SequencingType is derived from the presence of a panel BED.
type SequencingType string

const (
	SequencingTypeTargeted SequencingType = "targeted"
	SequencingTypeWGS      SequencingType = "wgs"
)

// AnalysisWorkflow selects the pipeline variant.
type AnalysisWorkflow string

const (
	WorkflowBalsamic    AnalysisWorkflow = "balsamic"
	WorkflowBalsamicUMI AnalysisWorkflow = "balsamic-umi"
	WorkflowBalsamicQC  AnalysisWorkflow = "balsamic-qc"
)

// SampleType distinguishes tumor and normal samples.
type SampleType string

const (
	SampleTypeTumor  SampleType = "tumor"
	SampleTypeNormal SampleType = "normal"
)

// GenomeVersion names a reference genome build.
type GenomeVersion string

const (
	GenomeHG19    GenomeVersion = "hg19"
	GenomeHG38    GenomeVersion = "hg38"
	GenomeCanFam3 GenomeVersion = "canfam3"
)

// PONWorkflow selects the panel-of-normals builder.
type PONWorkflow string

const (
	PONWorkflowCNVkit     PONWorkflow = "CNVkit"
	PONWorkflowGENSMale   PONWorkflow = "GENS_male"
	PONWorkflowGENSFemale PONWorkflow = "GENS_female"
)

// IsGENS reports whether the workflow builds a GENS coverage baseline.
func (w PONWorkflow) IsGENS() bool {
	return w == PONWorkflowGENSMale || w == PONWorkflowGENSFemale
}

// RunMode selects where the execution engine schedules jobs.
type RunMode string

const (
	RunModeLocal   RunMode = "local"
	RunModeCluster RunMode = "cluster"
)

// ClusterProfile names the cluster scheduler flavour.
type ClusterProfile string

const (
	ProfileSlurm ClusterProfile = "slurm"
	ProfileQsub  ClusterProfile = "qsub"
)

// QOS is the scheduler quality-of-service level.
type QOS string

const (
	QOSLow     QOS = "low"
	QOSNormal  QOS = "normal"
	QOSHigh    QOS = "high"
	QOSExpress QOS = "express"
)

// Permitted value sets.
var (
	Genders           = []Gender{GenderFemale, GenderMale}
	AnalysisTypes     = []AnalysisType{AnalysisTypeSingle, AnalysisTypePaired, AnalysisTypePON}
	SequencingTypes   = []SequencingType{SequencingTypeTargeted, SequencingTypeWGS}
	AnalysisWorkflows = []AnalysisWorkflow{WorkflowBalsamic, WorkflowBalsamicUMI, WorkflowBalsamicQC}
	SampleTypes       = []SampleType{SampleTypeTumor, SampleTypeNormal}
	GenomeVersions    = []GenomeVersion{GenomeHG19, GenomeHG38, GenomeCanFam3}
	PONWorkflows      = []PONWorkflow{PONWorkflowCNVkit, PONWorkflowGENSMale, PONWorkflowGENSFemale}
	RunModes          = []RunMode{RunModeLocal, RunModeCluster}
	ClusterProfiles   = []ClusterProfile{ProfileSlurm, ProfileQsub}
	QOSLevels         = []QOS{QOSLow, QOSNormal, QOSHigh, QOSExpress}
)

// ValidateEnum returns an InvalidFieldValue error when v is not in allowed.
func ValidateEnum[T ~string](field string, v T, allowed []T) error {
	if slices.Contains(allowed, v) {
		return nil
	}
	return NewInvalidFieldValueError(field, string(v), EnumStrings(allowed))
}

// EnumStrings converts a typed value set to plain strings.
func EnumStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
