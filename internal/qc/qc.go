package qc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/me/balsamic/internal/filelock"
	"github.com/me/balsamic/pkg/model"
)

// Extract collects the requested metrics of every sample found by the
// sources. For each metric the first source holding a value wins. Metrics no
// source reports are skipped; conditional ones are listed in Missing.
func Extract(resultDir string, requested []RequestedMetric, sources []Source, logger *slog.Logger) (*model.QCValidationDocument, error) {
	loaded := make([]Values, 0, len(sources))
	samples := make(map[string]bool)
	for _, src := range sources {
		vals, err := src.Load(resultDir)
		if err != nil {
			return nil, fmt.Errorf("load %s metrics: %w", src.Name(), err)
		}
		logger.Debug("loaded qc source", "source", src.Name(), "samples", len(vals))
		for id := range vals {
			samples[id] = true
		}
		loaded = append(loaded, vals)
	}
	if len(samples) == 0 {
		return nil, model.NewResourceNotFoundError("QC metrics", filepath.Join(resultDir, "qc"))
	}

	ids := make([]string, 0, len(samples))
	for id := range samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := &model.QCValidationDocument{Metrics: make(map[string][]model.QCMetric)}
	for _, id := range ids {
		var metrics []model.QCMetric
		for _, req := range requested {
			v, ok := lookup(loaded, id, req.Name)
			if !ok && req.Condition == nil {
				logger.Debug("metric not reported", "sample", id, "metric", req.Name)
				continue
			}
			if !ok {
				logger.Warn("conditional metric not reported", "sample", id, "metric", req.Name)
				if doc.Missing == nil {
					doc.Missing = make(map[string][]string)
				}
				doc.Missing[id] = append(doc.Missing[id], req.Name)
				continue
			}
			metrics = append(metrics, model.QCMetric{Name: req.Name, Value: v, Condition: req.Condition})
		}
		if len(metrics) > 0 {
			doc.Metrics[id] = metrics
		}
	}
	return doc, nil
}

func lookup(loaded []Values, sample, metric string) (float64, bool) {
	for _, vals := range loaded {
		if v, ok := vals[sample][metric]; ok {
			return v, true
		}
	}
	return 0, false
}

// NewMetric builds a metric record and evaluates its condition. A failed
// condition returns the record together with a QCThresholdViolationError.
func NewMetric(name string, value float64, cond *model.QCCondition) (model.QCMetric, error) {
	m := model.QCMetric{Name: name, Value: value, Condition: cond}
	v, err := check("", m)
	if err != nil {
		return m, err
	}
	if v != nil {
		return m, &model.QCThresholdViolationError{Violations: []model.QCViolation{*v}}
	}
	return m, nil
}

func check(sample string, m model.QCMetric) (*model.QCViolation, error) {
	if m.Condition == nil {
		return nil, nil
	}
	c := m.Condition
	if err := model.ValidateEnum(m.Name+".condition.norm", c.Norm, model.Norms); err != nil {
		return nil, err
	}
	if c.Norm.Holds(m.Value, c.Threshold) {
		return nil, nil
	}
	return &model.QCViolation{Sample: sample, Metric: m.Name, Value: m.Value, Norm: string(c.Norm), Threshold: c.Threshold}, nil
}

// Validate evaluates every metric of every sample and returns one
// QCThresholdViolationError listing all failures, or nil when all pass.
func Validate(doc *model.QCValidationDocument) error {
	samples := make([]string, 0, len(doc.Metrics))
	for s := range doc.Metrics {
		samples = append(samples, s)
	}
	sort.Strings(samples)

	var violations []model.QCViolation
	for _, s := range samples {
		for _, m := range doc.Metrics[s] {
			v, err := check(s, m)
			if err != nil {
				return err
			}
			if v != nil {
				violations = append(violations, *v)
			}
		}
	}
	if len(violations) > 0 {
		return &model.QCThresholdViolationError{Violations: violations}
	}
	return nil
}

// GetJSON flattens the document to sample -> metric -> value.
func GetJSON(doc *model.QCValidationDocument) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(doc.Metrics))
	for s, metrics := range doc.Metrics {
		m := make(map[string]float64, len(metrics))
		for _, metric := range metrics {
			m[metric.Name] = metric.Value
		}
		out[s] = m
	}
	return out
}

// DeliverablesPath returns resultDir/qc/<caseID>_metrics_deliverables.json.
func DeliverablesPath(resultDir, caseID string) string {
	return filepath.Join(resultDir, "qc", caseID+"_metrics_deliverables.json")
}

// WriteDocument writes the {metrics: ...} document atomically.
func WriteDocument(doc *model.QCValidationDocument, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal qc metrics: %w", err)
	}
	if err := filelock.AtomicWrite(path, append(data, '\n')); err != nil {
		return fmt.Errorf("write qc metrics: %w", err)
	}
	return nil
}

// ReadDocument loads a metrics document written by WriteDocument.
func ReadDocument(path string) (*model.QCValidationDocument, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewResourceNotFoundError("QC metrics document", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read qc metrics: %w", err)
	}
	var doc model.QCValidationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, model.NewValidationError("QC metrics document", model.FieldError{Message: err.Error()})
	}
	return &doc, nil
}
