// Package workflow turns a case configuration into an execution plan: the
// workflow file to run, its rule set and rule graph, and the engine
// invocation that dispatches it.
package workflow

import (
	"path/filepath"
	"strings"

	"github.com/me/balsamic/pkg/model"
)

// GenerateReference is the pseudo analysis type of reference builds.
const GenerateReference model.AnalysisType = "generate_ref"

// Snakefile returns the workflow file for an analysis.
func Snakefile(workflowDir string, analysisType model.AnalysisType, wf model.AnalysisWorkflow, genome model.GenomeVersion) string {
	name := "balsamic.smk"
	switch {
	case analysisType == GenerateReference && genome == model.GenomeCanFam3:
		return filepath.Join(workflowDir, "reference-canfam3.smk")
	case analysisType == GenerateReference:
		name = "reference.smk"
	case analysisType == model.AnalysisTypePON:
		name = "PON.smk"
	}
	if wf == model.WorkflowBalsamicQC {
		name = "QC.smk"
	}
	return filepath.Join(workflowDir, name)
}

// Stage groups the rules of one pipeline phase.
type Stage string

const (
	StageQC       Stage = "qc"
	StageAlign    Stage = "align"
	StageVarCall  Stage = "varcall"
	StageAnnotate Stage = "annotate"
)

// Stages lists the stages in the order their rules are included.
var Stages = []Stage{StageQC, StageAlign, StageVarCall, StageAnnotate}

// RuleSet maps each stage to its rule files, relative to the workflow root.
type RuleSet map[Stage][]string

// All returns every rule file in stage order.
func (r RuleSet) All() []string {
	var out []string
	for _, s := range Stages {
		out = append(out, r[s]...)
	}
	return out
}

// RuleName returns the rule name of a rule file: its base name without the
// .rule extension.
func RuleName(ruleFile string) string {
	return strings.TrimSuffix(filepath.Base(ruleFile), ".rule")
}

const (
	qcRules      = "snakemake_rules/quality_control/"
	alignRules   = "snakemake_rules/align/"
	varcallRules = "snakemake_rules/variant_calling/"
	annotRules   = "snakemake_rules/annotation/"
	umiRules     = "snakemake_rules/umi/"
	ponRules     = "snakemake_rules/pon/"
)

func ruleTables() map[string]RuleSet {
	return map[string]RuleSet{
		"common": {
			StageQC: {
				qcRules + "fastp.rule",
				qcRules + "fastqc.rule",
				qcRules + "multiqc.rule",
				qcRules + "qc_metrics.rule",
				varcallRules + "mergetype_tumor.rule",
			},
			StageVarCall: {
				varcallRules + "germline_sv.rule",
				varcallRules + "sentieon_quality_filter.rule",
				varcallRules + "somatic_sv_quality_filter.rule",
			},
			StageAnnotate: {
				annotRules + "vep.rule",
				annotRules + "varcaller_sv_filter.rule",
				annotRules + "vcf2cytosure_convert.rule",
			},
		},
		"single_targeted": {
			StageQC: {
				qcRules + "GATK.rule",
				qcRules + "picard.rule",
				qcRules + "sambamba_depth.rule",
				qcRules + "mosdepth.rule",
				umiRules + "qc_umi.rule",
				umiRules + "mergetype_tumor_umi.rule",
				umiRules + "generate_AF_tables.rule",
			},
			StageAlign: {
				alignRules + "bwa_mem.rule",
				umiRules + "sentieon_umiextract.rule",
				umiRules + "sentieon_consensuscall.rule",
			},
			StageVarCall: {
				varcallRules + "germline.rule",
				varcallRules + "split_bed.rule",
				varcallRules + "cnvkit_single.rule",
				varcallRules + "somatic_tumor_only.rule",
				varcallRules + "somatic_sv_tumor_only.rule",
				umiRules + "sentieon_varcall_tnscope.rule",
			},
			StageAnnotate: {
				annotRules + "rankscore.rule",
				annotRules + "varcaller_filter_tumor_only.rule",
			},
		},
		"paired_targeted": {
			StageQC: {
				qcRules + "GATK.rule",
				qcRules + "picard.rule",
				qcRules + "sambamba_depth.rule",
				qcRules + "mosdepth.rule",
				umiRules + "qc_umi.rule",
				varcallRules + "mergetype_normal.rule",
				qcRules + "somalier.rule",
				umiRules + "mergetype_tumor_umi.rule",
				umiRules + "mergetype_normal_umi.rule",
				qcRules + "contest.rule",
				umiRules + "generate_AF_tables.rule",
			},
			StageAlign: {
				alignRules + "bwa_mem.rule",
				umiRules + "sentieon_umiextract.rule",
				umiRules + "sentieon_consensuscall.rule",
			},
			StageVarCall: {
				varcallRules + "germline.rule",
				varcallRules + "split_bed.rule",
				varcallRules + "somatic_tumor_normal.rule",
				varcallRules + "somatic_sv_tumor_normal.rule",
				varcallRules + "cnvkit_paired.rule",
				umiRules + "sentieon_varcall_tnscope_tn.rule",
			},
			StageAnnotate: {
				annotRules + "rankscore.rule",
				annotRules + "varcaller_filter_tumor_normal.rule",
				annotRules + "vcfheader_rename.rule",
			},
		},
		"single_wgs": {
			StageQC: {
				qcRules + "sentieon_qc_metrics.rule",
				qcRules + "picard_wgs.rule",
				qcRules + "report.rule",
			},
			StageAlign: {alignRules + "sentieon_alignment.rule"},
			StageVarCall: {
				varcallRules + "sentieon_germline.rule",
				varcallRules + "sentieon_split_snv_sv.rule",
				varcallRules + "sentieon_t_varcall.rule",
				varcallRules + "somatic_sv_tumor_only.rule",
				"snakemake_rules/dragen_suite/dragen_dna.rule",
			},
			StageAnnotate: {
				annotRules + "varcaller_wgs_filter_tumor_only.rule",
			},
		},
		"paired_wgs": {
			StageQC: {
				qcRules + "sentieon_qc_metrics.rule",
				qcRules + "picard_wgs.rule",
				qcRules + "report.rule",
				varcallRules + "mergetype_normal.rule",
				qcRules + "somalier.rule",
			},
			StageAlign: {alignRules + "sentieon_alignment.rule"},
			StageVarCall: {
				varcallRules + "sentieon_germline.rule",
				varcallRules + "sentieon_split_snv_sv.rule",
				varcallRules + "sentieon_tn_varcall.rule",
				varcallRules + "somatic_sv_tumor_normal.rule",
			},
			StageAnnotate: {
				annotRules + "varcaller_wgs_filter_tumor_normal.rule",
				annotRules + "vcfheader_rename.rule",
			},
		},
	}
}

// Rules composes the common rules with the rules of an analysis and
// sequencing type. Panel-of-normals builds have no rule set.
func Rules(analysisType model.AnalysisType, seq model.SequencingType) (RuleSet, error) {
	tables := ruleTables()
	key := string(analysisType) + "_" + string(seq)
	specific, ok := tables[key]
	if !ok {
		return nil, model.NewInvalidFieldValueError("analysis_type",
			key, []string{"single_targeted", "paired_targeted", "single_wgs", "paired_wgs"})
	}
	out := make(RuleSet, len(Stages))
	for _, s := range Stages {
		rules := append([]string{}, tables["common"][s]...)
		out[s] = append(rules, specific[s]...)
	}
	return out, nil
}

// PONRules returns the rules of a panel-of-normals build. CNVkit builds align
// with bwa and create a coverage reference; GENS builds align with sentieon
// and create read-count references.
func PONRules(wf model.PONWorkflow) RuleSet {
	if wf.IsGENS() {
		return RuleSet{
			StageQC:      {qcRules + "fastp.rule"},
			StageAlign:   {alignRules + "sentieon_alignment.rule"},
			StageVarCall: {varcallRules + "gatk_read_counts.rule", ponRules + "gens_create_pon.rule"},
		}
	}
	return RuleSet{
		StageQC:      {qcRules + "fastp.rule", qcRules + "picard.rule"},
		StageAlign:   {alignRules + "bwa_mem.rule"},
		StageVarCall: {ponRules + "cnvkit_create_pon.rule"},
	}
}
