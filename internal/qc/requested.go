// Package qc extracts QC metrics from tool outputs and validates them against
// per-sequencing-type conditions.
package qc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/me/balsamic/pkg/model"
)

// DefaultScope is the scope every sequencing type falls back to.
const DefaultScope = "default"

// MetricSpec is the declared condition of a requested metric. A nil
// Condition means the metric is reported but never fails.
type MetricSpec struct {
	Condition *model.QCCondition `yaml:"condition"`
}

// MetricSet maps metric names to their declared conditions.
type MetricSet map[string]MetricSpec

// Spec holds requested metrics per sequencing type and scope.
type Spec map[model.SequencingType]map[string]MetricSet

// RequestedMetric is one metric to extract, with its effective condition.
type RequestedMetric struct {
	Name      string
	Condition *model.QCCondition
}

// LoadRequested reads a requested-metrics file (YAML or JSON). A sequencing
// type may list metrics directly instead of under scopes; they then form its
// default scope.
func LoadRequested(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewResourceNotFoundError("requested metrics", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read requested metrics: %w", err)
	}
	return ParseRequested(data)
}

// ParseRequested decodes a requested-metrics document.
func ParseRequested(data []byte) (Spec, error) {
	var raw map[string]map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, model.NewValidationError("requested metrics", model.FieldError{Message: err.Error()})
	}

	spec := make(Spec, len(raw))
	for seq, entries := range raw {
		st := model.SequencingType(seq)
		if err := model.ValidateEnum("requested_metrics", st, model.SequencingTypes); err != nil {
			return nil, err
		}
		scopes, err := decodeScopes(seq, entries)
		if err != nil {
			return nil, err
		}
		spec[st] = scopes
	}
	return spec, nil
}

// decodeScopes tells scoped entries (value is a metric set) from flat
// metric entries (value holds a condition key).
func decodeScopes(seq string, entries map[string]yaml.Node) (map[string]MetricSet, error) {
	scopes := make(map[string]MetricSet)
	flat := make(MetricSet)
	for key, node := range entries {
		if isMetricSpec(&node) {
			var ms MetricSpec
			if err := node.Decode(&ms); err != nil {
				return nil, specError(seq, key, err)
			}
			flat[key] = ms
			continue
		}
		var set MetricSet
		if err := node.Decode(&set); err != nil {
			return nil, specError(seq, key, err)
		}
		scopes[key] = set
	}
	if len(flat) > 0 {
		if scopes[DefaultScope] == nil {
			scopes[DefaultScope] = make(MetricSet)
		}
		for k, v := range flat {
			scopes[DefaultScope][k] = v
		}
	}
	for scope, set := range scopes {
		for name, ms := range set {
			if ms.Condition == nil {
				continue
			}
			field := fmt.Sprintf("%s.%s.%s.condition.norm", seq, scope, name)
			if err := model.ValidateEnum(field, ms.Condition.Norm, model.Norms); err != nil {
				return nil, err
			}
		}
	}
	return scopes, nil
}

func isMetricSpec(n *yaml.Node) bool {
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "condition" {
			return true
		}
	}
	return false
}

func specError(seq, key string, err error) error {
	return model.NewValidationError("requested metrics",
		model.FieldError{Field: seq + "." + key, Message: err.Error()})
}

// RequestedFor returns the metrics requested for a sequencing type, folding
// the panel scope over the default scope. Panel entries replace default
// entries of the same name. The result is sorted by metric name.
func RequestedFor(spec Spec, seq model.SequencingType, panel string) ([]RequestedMetric, error) {
	scopes := spec[seq]
	merged := make(MetricSet)
	for k, v := range scopes[DefaultScope] {
		merged[k] = v
	}
	if override, ok := scopes[panel]; ok && panel != "" && panel != DefaultScope {
		if err := mergo.Merge(&merged, override, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s metrics: %w", panel, err)
		}
	}

	out := make([]RequestedMetric, 0, len(merged))
	for name, ms := range merged {
		out = append(out, RequestedMetric{Name: name, Condition: ms.Condition})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PanelScope returns the scope key of a capture kit: its file name.
func PanelScope(captureKit string) string {
	if captureKit == "" {
		return ""
	}
	return filepath.Base(captureKit)
}
