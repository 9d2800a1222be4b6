// Package status reports which workflow outputs of a case exist.
package status

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// FinishMarker is the file the workflow writes into the result dir when it
// completes.
const FinishMarker = "analysis_finish"

// OutputColumn is the summary column naming each output file.
const OutputColumn = "output_file"

// ParseSummary reads the engine's tab-separated summary and returns the
// output_file column of every row, in order.
func ParseSummary(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty summary")
	}
	if err != nil {
		return nil, fmt.Errorf("read summary header: %w", err)
	}
	col := -1
	for i, h := range header {
		if h == OutputColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("summary has no %s column", OutputColumn)
	}

	var files []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read summary: %w", err)
		}
		if col < len(rec) && rec[col] != "" {
			files = append(files, rec[col])
		}
	}
}

// Report splits output files into existing and missing ones. Both lists are
// sorted and free of duplicates.
type Report struct {
	Found   []string
	Missing []string
}

// Tally checks every file for existence.
func Tally(files []string) Report {
	seen := make(map[string]bool, len(files))
	var rep Report
	for _, f := range files {
		if seen[f] {
			continue
		}
		seen[f] = true
		if info, err := os.Stat(f); err == nil && !info.IsDir() {
			rep.Found = append(rep.Found, f)
		} else {
			rep.Missing = append(rep.Missing, f)
		}
	}
	sort.Strings(rep.Found)
	sort.Strings(rep.Missing)
	return rep
}

// Finished reports whether the finish marker exists in resultDir.
func Finished(resultDir string) bool {
	_, err := os.Stat(filepath.Join(resultDir, FinishMarker))
	return err == nil
}

// PrintOptions controls which lines Print writes.
type PrintOptions struct {
	PrintFiles      bool // list found and missing files
	ShowOnlyMissing bool // list missing files
	Color           bool
}

// Print writes the per-file lines selected by opts followed by the final
// tally.
func Print(w io.Writer, rep Report, opts PrintOptions) {
	green := newColor(opts.Color, color.FgGreen)
	red := newColor(opts.Color, color.FgRed)
	yellow := newColor(opts.Color, color.FgYellow)

	if opts.PrintFiles {
		for _, f := range rep.Found {
			fmt.Fprintf(w, "[%s] Found: %s\n", green.Sprint("✓"), f)
		}
	}
	if opts.PrintFiles || opts.ShowOnlyMissing {
		for _, f := range rep.Missing {
			fmt.Fprintf(w, "[%s] File missing: %s\n", red.Sprint("✗"), f)
		}
	}
	yellow.Fprintln(w, "Final tally:")
	yellow.Fprintf(w, "\tFinished file count: %d\n", len(rep.Found))
	yellow.Fprintf(w, "\tMissing file count: %d\n", len(rep.Missing))
}

func newColor(enabled bool, attr color.Attribute) *color.Color {
	c := color.New(attr)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// ColorEnabled reports whether f is a terminal.
func ColorEnabled(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
