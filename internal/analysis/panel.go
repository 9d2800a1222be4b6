package analysis

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/biogo/hts/bgzf"

	"github.com/me/balsamic/pkg/model"
)

// loadPanel builds the panel section from a capture-kit BED file.
func loadPanel(bedPath, ponCNN string, withChrom bool) (*model.PanelConfig, error) {
	abs, err := filepath.Abs(bedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve panel bed: %w", err)
	}
	panel := &model.PanelConfig{CaptureKit: abs}
	if ponCNN != "" {
		cnn, err := filepath.Abs(ponCNN)
		if err != nil {
			return nil, fmt.Errorf("resolve pon cnn: %w", err)
		}
		if _, err := os.Stat(cnn); err != nil {
			return nil, model.NewResourceNotFoundError("PON reference", cnn)
		}
		panel.PONCNN = cnn
	}
	if !withChrom {
		if _, err := os.Stat(abs); err != nil {
			return nil, model.NewResourceNotFoundError("panel bed", abs)
		}
		return panel, nil
	}
	chrom, err := PanelChrom(abs)
	if err != nil {
		return nil, err
	}
	panel.Chrom = chrom
	return panel, nil
}

// PanelChrom returns the sorted set of first-column values of a BED file.
// Header, track and browser lines are skipped. Files ending in .gz are read as
// BGZF, falling back to plain gzip.
func PanelChrom(bedPath string) ([]string, error) {
	f, err := os.Open(bedPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewResourceNotFoundError("panel bed", bedPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open panel bed: %w", err)
	}
	defer f.Close()

	r, closeFn, err := bedReader(f, strings.HasSuffix(bedPath, ".gz"))
	if err != nil {
		return nil, fmt.Errorf("open panel bed %s: %w", bedPath, err)
	}
	defer closeFn()

	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		chrom, _, _ := strings.Cut(line, "\t")
		seen[chrom] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read panel bed: %w", err)
	}
	if len(seen) == 0 {
		return nil, model.NewValidationError("empty panel",
			model.FieldError{Field: "panel.capture_kit", Value: bedPath, Message: "no regions"})
	}

	chrom := make([]string, 0, len(seen))
	for c := range seen {
		chrom = append(chrom, c)
	}
	sort.Strings(chrom)
	return chrom, nil
}

func bedReader(f *os.File, compressed bool) (io.Reader, func() error, error) {
	if !compressed {
		return f, func() error { return nil }, nil
	}
	bg, err := bgzf.NewReader(f, 1)
	if err == nil {
		return bg, bg.Close, nil
	}
	if _, serr := f.Seek(0, io.SeekStart); serr != nil {
		return nil, nil, serr
	}
	gz, gerr := gzip.NewReader(f)
	if gerr != nil {
		return nil, nil, fmt.Errorf("bgzf: %v; gzip: %w", err, gerr)
	}
	return gz, gz.Close, nil
}
