package model

// Norm is a comparison operator of a QC condition.
type Norm string

const (
	NormGT Norm = "gt"
	NormGE Norm = "ge"
	NormLT Norm = "lt"
	NormLE Norm = "le"
	NormEQ Norm = "eq"
	NormNE Norm = "ne"
)

// Norms is the permitted operator set.
var Norms = []Norm{NormGT, NormGE, NormLT, NormLE, NormEQ, NormNE}

// Holds reports whether "value norm threshold" is true. Equality is exact.
func (n Norm) Holds(value, threshold float64) bool {
	switch n {
	case NormGT:
		return value > threshold
	case NormGE:
		return value >= threshold
	case NormLT:
		return value < threshold
	case NormLE:
		return value <= threshold
	case NormEQ:
		return value == threshold
	case NormNE:
		return value != threshold
	}
	return false
}

// QCCondition is the pass condition of a metric.
type QCCondition struct {
	Norm      Norm    `json:"norm" yaml:"norm"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// QCMetric is one extracted metric value and its optional condition.
type QCMetric struct {
	Name      string       `json:"name"`
	Value     float64      `json:"value"`
	Condition *QCCondition `json:"condition"`
}

// QCValidationDocument holds the extracted metrics of every sample of a case.
// Missing lists, per sample, the conditional metrics no QC output reported.
type QCValidationDocument struct {
	Metrics map[string][]QCMetric `json:"metrics"`
	Missing map[string][]string   `json:"missing,omitempty"`
}
