// Package samples discovers FASTQ read pairs and types them as tumor or normal.
package samples

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/me/balsamic/pkg/model"
)

// FastqPattern matches the read-pair tail of a FASTQ file name.
const FastqPattern = `R_[12].fastq.gz$`

const fastqExt = ".fastq.gz"

var fastqRe = regexp.MustCompile(FastqPattern)

// ValidateFastqPattern returns the file prefix of a FASTQ file: the basename
// up to and including the 'R' of the read-pair marker.
func ValidateFastqPattern(name string) (string, error) {
	base := filepath.Base(name)
	loc := fastqRe.FindStringIndex(base)
	if loc == nil {
		return "", &model.PatternMismatchError{File: base, Pattern: FastqPattern}
	}
	return base[:loc[0]+1], nil
}

// listPrefixes returns the sorted, distinct prefixes of the FASTQ files in dir.
func listPrefixes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewResourceNotFoundError("fastq directory", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read fastq dir: %w", err)
	}

	seen := make(map[string]bool)
	var prefixes []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fastqExt) {
			continue
		}
		prefix, err := ValidateFastqPattern(e.Name())
		if err != nil {
			return nil, err
		}
		if !seen[prefix] {
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}
	if len(prefixes) == 0 {
		return nil, &model.PatternMismatchError{Pattern: FastqPattern}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

// Resolve builds the sample map of a case. Prefixes starting with tumorName
// are tumor samples; when normalName is set, prefixes starting with it are
// normal samples. Other prefixes are ignored.
func Resolve(fastqDir, tumorName, normalName string) (map[string]model.Sample, error) {
	if tumorName == "" {
		return nil, model.NewUsageError("tumor sample name is required")
	}
	if normalName != "" && normalName == tumorName {
		return nil, model.NewUsageError("tumor and normal sample names must differ")
	}

	prefixes, err := listPrefixes(fastqDir)
	if err != nil {
		return nil, fmt.Errorf("resolve samples: %w", err)
	}

	out := make(map[string]model.Sample)
	for _, p := range prefixes {
		if t, name, ok := classify(p, tumorName, normalName); ok {
			out[p] = newSample(p, t, name)
		}
	}

	var tumors int
	for _, s := range out {
		if s.Type == model.SampleTypeTumor {
			tumors++
		}
	}
	if tumors == 0 {
		return nil, model.NewValidationError("no tumor sample found",
			model.FieldError{Field: "samples", Value: tumorName,
				Message: fmt.Sprintf("no FASTQ prefix in %s starts with the tumor sample name", fastqDir)})
	}
	return out, nil
}

// ResolvePON types every discovered prefix as an untyped panel-of-normals
// sample.
func ResolvePON(fastqDir string) (map[string]model.Sample, error) {
	prefixes, err := listPrefixes(fastqDir)
	if err != nil {
		return nil, fmt.Errorf("resolve PON samples: %w", err)
	}
	out := make(map[string]model.Sample, len(prefixes))
	for _, p := range prefixes {
		name := strings.TrimSuffix(strings.TrimSuffix(p, "R"), "_")
		out[p] = newSample(p, "", name)
	}
	return out, nil
}

// classify types a prefix by the sample name it starts with. When both names
// match, the longer one wins.
func classify(prefix, tumorName, normalName string) (model.SampleType, string, bool) {
	tumor := strings.HasPrefix(prefix, tumorName)
	normal := normalName != "" && strings.HasPrefix(prefix, normalName)
	switch {
	case tumor && normal:
		if len(normalName) > len(tumorName) {
			return model.SampleTypeNormal, normalName, true
		}
		return model.SampleTypeTumor, tumorName, true
	case tumor:
		return model.SampleTypeTumor, tumorName, true
	case normal:
		return model.SampleTypeNormal, normalName, true
	}
	return "", "", false
}

func newSample(prefix string, t model.SampleType, name string) model.Sample {
	return model.Sample{
		FilePrefix:     prefix,
		Type:           t,
		SampleName:     name,
		ReadpairSuffix: model.DefaultReadpairSuffix(),
	}
}

// CaseFastqDir returns analysisDir/caseID/fastq.
func CaseFastqDir(analysisDir, caseID string) string {
	return filepath.Join(analysisDir, caseID, "fastq")
}

// LinkFastqs symlinks every FASTQ of srcDir into dstDir. Existing links are
// kept. When srcDir already is dstDir nothing is linked. A FASTQ name without
// a read-pair marker fails before dstDir is created.
func LinkFastqs(srcDir, dstDir string, logger *slog.Logger) error {
	src, err := filepath.Abs(srcDir)
	if err != nil {
		return fmt.Errorf("resolve fastq path: %w", err)
	}
	dst, err := filepath.Abs(dstDir)
	if err != nil {
		return fmt.Errorf("resolve case fastq dir: %w", err)
	}
	if src == dst {
		return nil
	}

	entries, err := os.ReadDir(src)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewResourceNotFoundError("fastq directory", src)
	}
	if err != nil {
		return fmt.Errorf("read fastq dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fastqExt) {
			continue
		}
		if _, err := ValidateFastqPattern(e.Name()); err != nil {
			return err
		}
		names = append(names, e.Name())
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create case fastq dir: %w", err)
	}

	for _, name := range names {
		target := filepath.Join(src, name)
		link := filepath.Join(dst, name)
		if _, err := os.Lstat(link); err == nil {
			logger.Debug("fastq link exists, skipping", "link", link)
			continue
		}
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("link %s: %w", name, err)
		}
		logger.Debug("linked fastq", "target", target, "link", link)
	}
	return nil
}

// BindPaths returns the distinct resolved parent directories of the files in
// fastqDir, sorted. Symlinks are followed so containers can reach the targets.
func BindPaths(fastqDir string) ([]string, error) {
	entries, err := os.ReadDir(fastqDir)
	if err != nil {
		return nil, fmt.Errorf("read fastq dir: %w", err)
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		resolved, err := filepath.EvalSymlinks(filepath.Join(fastqDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", e.Name(), err)
		}
		parent := filepath.Dir(resolved)
		if !seen[parent] {
			seen[parent] = true
			out = append(out, parent)
		}
	}
	sort.Strings(out)
	return out, nil
}
