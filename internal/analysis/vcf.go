package analysis

import (
	"slices"
	"sort"

	"github.com/me/balsamic/pkg/model"
)

var (
	both     = []model.AnalysisType{model.AnalysisTypePaired, model.AnalysisTypeSingle}
	paired   = []model.AnalysisType{model.AnalysisTypePaired}
	single   = []model.AnalysisType{model.AnalysisTypeSingle}
	anySeq   = []model.SequencingType{model.SequencingTypeTargeted, model.SequencingTypeWGS}
	targeted = []model.SequencingType{model.SequencingTypeTargeted}
	wgs      = []model.SequencingType{model.SequencingTypeWGS}
)

// DefaultVCF returns the variant-caller table of the workflow.
func DefaultVCF() map[string]model.VarCallerFilter {
	vc := func(mutation, typ string, at []model.AnalysisType, st []model.SequencingType, solution string) model.VarCallerFilter {
		return model.VarCallerFilter{
			Mutation:         mutation,
			Type:             typ,
			AnalysisType:     slices.Clone(at),
			SequencingType:   slices.Clone(st),
			WorkflowSolution: solution,
		}
	}
	return map[string]model.VarCallerFilter{
		"tnscope":         vc("somatic", "SNV", both, anySeq, "Sentieon"),
		"tnscope_umi":     vc("somatic", "SNV", both, targeted, "Sentieon_umi"),
		"vardict":         vc("somatic", "SNV", both, targeted, "BALSAMIC"),
		"haplotypecaller": vc("germline", "SNV", both, targeted, "BALSAMIC"),
		"dnascope":        vc("germline", "SNV", both, wgs, "Sentieon"),
		"manta_germline":  vc("germline", "SV", both, anySeq, "BALSAMIC"),
		"manta":           vc("somatic", "SV", both, anySeq, "BALSAMIC"),
		"delly":           vc("somatic", "SV", both, anySeq, "BALSAMIC"),
		"tiddit":          vc("somatic", "SV", both, wgs, "BALSAMIC"),
		"svdb":            vc("somatic", "SV", both, anySeq, "BALSAMIC"),
		"cnvkit":          vc("somatic", "CNV", both, targeted, "BALSAMIC"),
		"ascat":           vc("somatic", "CNV", paired, wgs, "BALSAMIC"),
		"dellycnv":        vc("somatic", "CNV", both, wgs, "BALSAMIC"),
		"cnvpytor":        vc("somatic", "CNV", single, wgs, "BALSAMIC"),
	}
}

// VariantCallers returns the callers that apply to the document's analysis,
// sorted by name.
func VariantCallers(doc *model.ConfigDocument) []string {
	var out []string
	for name, f := range doc.VCF {
		if slices.Contains(f.AnalysisType, doc.Analysis.AnalysisType) &&
			slices.Contains(f.SequencingType, doc.Analysis.SequencingType) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CheckDisabledCaller rejects a caller name the document does not define.
func CheckDisabledCaller(doc *model.ConfigDocument, name string) error {
	if name == "" {
		return nil
	}
	if _, ok := doc.VCF[name]; ok {
		return nil
	}
	names := make([]string, 0, len(doc.VCF))
	for n := range doc.VCF {
		names = append(names, n)
	}
	sort.Strings(names)
	return model.NewInvalidFieldValueError("disable_variant_caller", name, names)
}
