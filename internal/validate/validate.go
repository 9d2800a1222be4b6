// Package validate checks a case configuration document against its field
// domains and cross-field invariants.
// It is used both when a document is built and when one is loaded for a run.
package validate

import (
	"fmt"

	"github.com/me/balsamic/pkg/model"
)

// Document returns a SchemaValidationError naming the first offending field,
// or nil when the document is valid.
func Document(doc *model.ConfigDocument) error {
	for _, check := range []func(*model.ConfigDocument) error{
		analysisFields,
		panelInvariant,
		qcInvariant,
		sampleInvariants,
	} {
		if err := check(doc); err != nil {
			return err
		}
	}
	return nil
}

func analysisFields(doc *model.ConfigDocument) error {
	a := doc.Analysis
	if a.CaseID == "" {
		return required("analysis.case_id")
	}
	if a.AnalysisDir == "" {
		return required("analysis.analysis_dir")
	}
	if err := model.ValidateEnum("analysis.analysis_type", a.AnalysisType, model.AnalysisTypes); err != nil {
		return err
	}
	if err := model.ValidateEnum("analysis.sequencing_type", a.SequencingType, model.SequencingTypes); err != nil {
		return err
	}
	if err := model.ValidateEnum("analysis.analysis_workflow", a.AnalysisWorkflow, model.AnalysisWorkflows); err != nil {
		return err
	}
	if a.Gender != "" {
		if err := model.ValidateEnum("analysis.gender", a.Gender, model.Genders); err != nil {
			return err
		}
	}
	if a.PONWorkflow != "" {
		if err := model.ValidateEnum("analysis.pon_workflow", a.PONWorkflow, model.PONWorkflows); err != nil {
			return err
		}
	}
	return nil
}

func panelInvariant(doc *model.ConfigDocument) error {
	targeted := doc.Analysis.SequencingType == model.SequencingTypeTargeted
	switch {
	case targeted && doc.Panel == nil:
		return invariant("panel", "targeted analyses require a panel")
	case !targeted && doc.Panel != nil:
		return invariant("panel", "a panel implies sequencing_type targeted")
	}
	return nil
}

func qcInvariant(doc *model.ConfigDocument) error {
	if doc.Analysis.SequencingType == model.SequencingTypeWGS && doc.QC.UMITrim {
		return invariant("QC.umi_trim", "UMI trimming is not available for wgs")
	}
	return nil
}

func sampleInvariants(doc *model.ConfigDocument) error {
	if len(doc.Samples) == 0 {
		return required("samples")
	}
	if doc.IsPON() {
		return nil
	}

	var tumors int
	normalNames := make(map[string]bool)
	for prefix, s := range doc.Samples {
		if err := model.ValidateEnum(fmt.Sprintf("samples.%s.type", prefix), s.Type, model.SampleTypes); err != nil {
			return err
		}
		switch s.Type {
		case model.SampleTypeTumor:
			tumors++
		case model.SampleTypeNormal:
			normalNames[s.SampleName] = true
		}
	}
	if tumors == 0 {
		return invariant("samples", "at least one tumor sample is required")
	}
	if len(normalNames) > 1 {
		return invariant("samples", "at most one normal sample is allowed")
	}

	paired := len(normalNames) == 1
	switch doc.Analysis.AnalysisType {
	case model.AnalysisTypePaired:
		if !paired {
			return invariant("analysis.analysis_type", "paired analysis requires a normal sample")
		}
	case model.AnalysisTypeSingle:
		if paired {
			return invariant("analysis.analysis_type", "single analysis cannot have a normal sample")
		}
	}
	return nil
}

func required(field string) error {
	return model.NewValidationError("missing required field", model.FieldError{Field: field, Message: "required"})
}

func invariant(field, msg string) error {
	return model.NewValidationError("invalid configuration", model.FieldError{Field: field, Message: msg})
}
