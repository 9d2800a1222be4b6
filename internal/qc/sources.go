package qc

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Values maps sample id to metric name to value.
type Values map[string]map[string]float64

func (v Values) set(sample, metric string, value float64) {
	if v[sample] == nil {
		v[sample] = make(map[string]float64)
	}
	v[sample][metric] = value
}

// Source reads metric values from one kind of tool output under a result
// directory. A source whose files are absent returns empty Values.
type Source interface {
	Name() string
	Load(resultDir string) (Values, error)
}

// DefaultSources returns the sources of the workflow's QC outputs in lookup
// order.
func DefaultSources() []Source {
	return []Source{
		MultiQCSource{Path: filepath.Join("qc", "multiqc_data", "multiqc_data.json")},
		DedupSource{Dir: filepath.Join("qc", "dedup")},
		CoverageSource{Dir: filepath.Join("qc", "coverage")},
	}
}

// SampleID strips the read-pair marker from a tool's sample label.
func SampleID(label string) string {
	return strings.TrimSuffix(label, "_R")
}

// MultiQCSource reads report_saved_raw_data of a multiqc_data.json file.
type MultiQCSource struct {
	Path string
}

func (MultiQCSource) Name() string { return "multiqc" }

func (s MultiQCSource) Load(resultDir string) (Values, error) {
	data, err := os.ReadFile(filepath.Join(resultDir, s.Path))
	if errors.Is(err, fs.ErrNotExist) {
		return Values{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read multiqc data: %w", err)
	}

	var doc struct {
		Raw map[string]map[string]map[string]any `json:"report_saved_raw_data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse multiqc data: %w", err)
	}

	out := Values{}
	// Sorted tool order keeps the first value of a metric stable.
	tools := make([]string, 0, len(doc.Raw))
	for tool := range doc.Raw {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	for _, tool := range tools {
		for label, metrics := range doc.Raw[tool] {
			id := SampleID(label)
			for name, raw := range metrics {
				v, ok := toFloat(raw)
				if !ok {
					continue
				}
				if _, seen := out[id][name]; seen {
					continue
				}
				out.set(id, name, v)
			}
		}
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// DedupSource reads Picard MarkDuplicates metrics files (*.metrics). The
// sample id is the file name up to its first dot.
type DedupSource struct {
	Dir string
}

func (DedupSource) Name() string { return "dedup" }

func (s DedupSource) Load(resultDir string) (Values, error) {
	files, err := filepath.Glob(filepath.Join(resultDir, s.Dir, "*.metrics"))
	if err != nil {
		return nil, fmt.Errorf("glob dedup metrics: %w", err)
	}
	out := Values{}
	for _, path := range files {
		label, _, _ := strings.Cut(filepath.Base(path), ".")
		metrics, err := readPicardMetrics(path)
		if err != nil {
			return nil, err
		}
		for name, v := range metrics {
			out.set(SampleID(label), name, v)
		}
	}
	return out, nil
}

// readPicardMetrics parses the first row of the METRICS CLASS table.
func readPicardMetrics(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var header []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "## METRICS CLASS") {
			if !sc.Scan() {
				break
			}
			header = strings.Split(sc.Text(), "\t")
			if !sc.Scan() {
				break
			}
			out := make(map[string]float64)
			for i, field := range strings.Split(sc.Text(), "\t") {
				if i >= len(header) {
					break
				}
				if v, err := strconv.ParseFloat(field, 64); err == nil {
					out[header[i]] = v
				}
			}
			return out, nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return nil, fmt.Errorf("%s: no METRICS CLASS table", path)
}

// CoverageSource reads per-target coverage summaries (*.tsv) whose first
// column is the sample label and whose header names the metrics.
type CoverageSource struct {
	Dir string
}

func (CoverageSource) Name() string { return "coverage" }

func (s CoverageSource) Load(resultDir string) (Values, error) {
	files, err := filepath.Glob(filepath.Join(resultDir, s.Dir, "*.tsv"))
	if err != nil {
		return nil, fmt.Errorf("glob coverage tables: %w", err)
	}
	out := Values{}
	for _, path := range files {
		if err := readCoverage(path, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readCoverage(path string, out Values) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if len(rec) == 0 {
			continue
		}
		id := SampleID(rec[0])
		for i := 1; i < len(rec) && i < len(header); i++ {
			if v, err := strconv.ParseFloat(rec[i], 64); err == nil {
				out.set(id, header[i], v)
			}
		}
	}
}
