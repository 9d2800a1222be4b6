package workflow

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/balsamic/internal/filelock"
	"github.com/me/balsamic/pkg/model"
)

// NextAvailablePath returns base when it does not exist, otherwise the
// first base.N (N >= 1) that does not. A base already ending in .N counts
// up from N. Nothing is created.
func NextAvailablePath(base string) (string, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", base, err)
	}
	ok, err := exists(abs)
	if err != nil || !ok {
		return abs, err
	}

	stem, n := splitNumbered(abs)
	for {
		n++
		candidate := stem + "." + strconv.Itoa(n)
		ok, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !ok {
			return candidate, nil
		}
	}
}

func splitNumbered(path string) (string, int) {
	i := strings.LastIndex(filepath.Base(path), ".")
	if i < 0 {
		return path, 0
	}
	cut := len(path) - len(filepath.Base(path)) + i
	n, err := strconv.Atoi(path[cut+1:])
	if err != nil || n < 0 {
		return path, 0
	}
	return path[:cut], n
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// HasFiles reports whether any regular file lives under dir.
func HasFiles(dir string) (bool, error) {
	found := false
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan %s: %w", dir, err)
	}
	return found, nil
}

// JobIDsPath returns resultDir/<profile>_jobids.yaml.
func JobIDsPath(resultDir string, profile model.ClusterProfile) string {
	return filepath.Join(resultDir, string(profile)+"_jobids.yaml")
}

// SacctPath returns logDir/<caseID>.sacct, where the scheduler script logs
// submitted job ids.
func SacctPath(logDir, caseID string) string {
	return filepath.Join(logDir, caseID+".sacct")
}

// DumpJobIDs writes the job ids listed one per line in sacct as a
// {caseID: [ids]} YAML document.
func DumpJobIDs(sacct, yamlPath, caseID string) error {
	f, err := os.Open(sacct)
	if errors.Is(err, fs.ErrNotExist) {
		return model.NewResourceNotFoundError("job id dump", sacct)
	}
	if err != nil {
		return fmt.Errorf("open job id dump: %w", err)
	}
	defer f.Close()

	ids := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read job id dump: %w", err)
	}

	data, err := yaml.Marshal(map[string][]string{caseID: ids})
	if err != nil {
		return fmt.Errorf("marshal job ids: %w", err)
	}
	if err := filelock.AtomicWrite(yamlPath, data); err != nil {
		return fmt.Errorf("write job ids: %w", err)
	}
	return nil
}
