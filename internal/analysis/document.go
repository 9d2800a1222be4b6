package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/me/balsamic/internal/filelock"
	"github.com/me/balsamic/internal/validate"
	"github.com/me/balsamic/pkg/model"
)

// ConfigPath returns analysisDir/caseID/caseID.json, or caseID_PON.json for
// panel-of-normals builds.
func ConfigPath(analysisDir, caseID string, pon bool) string {
	name := caseID + ".json"
	if pon {
		name = caseID + "_PON.json"
	}
	return filepath.Join(analysisDir, caseID, name)
}

// ToMap returns the serialized form of doc with empty optional fields
// dropped.
func ToMap(doc *model.ConfigDocument) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// Write persists doc at path atomically while holding the case lock.
func Write(doc *model.ConfigDocument, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := filelock.LockAndWrite(path, data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load reads and validates a configuration document.
func Load(path string) (*model.ConfigDocument, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewResourceNotFoundError("sample config", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc model.ConfigDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, model.NewValidationError(fmt.Sprintf("config %s", path),
			model.FieldError{Message: err.Error()})
	}
	if err := validate.Document(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Directories returns the result, log, script and benchmark directories.
func Directories(doc *model.ConfigDocument) []string {
	a := doc.Analysis
	return []string{a.Result, a.Log, a.Script, a.Benchmark}
}

// CreateDirectories creates the per-case directories. Existing ones are kept.
func CreateDirectories(doc *model.ConfigDocument) error {
	for _, dir := range Directories(doc) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
