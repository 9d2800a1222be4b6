// Package reference resolves the reference-file manifest of a cache version
// and genome build.
package reference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/me/balsamic/pkg/model"
)

// ManifestName is the file name of the reference manifest inside a genome dir.
const ManifestName = "reference.json"

// Override role names.
const (
	RoleCADDAnnotations         = "cadd_annotations"
	RoleClinicalSNVObservations = "clinical_snv_observations"
	RoleClinicalSVObservations  = "clinical_sv_observations"
	RoleCancerGermlineSNV       = "cancer_germline_snv_observations"
	RoleCancerSomaticSNV        = "cancer_somatic_snv_observations"
	RoleCancerSomaticSV         = "cancer_somatic_sv_observations"
	RoleSwegenSNVFrequency      = "swegen_snv_frequency"
	RoleSwegenSVFrequency       = "swegen_sv_frequency"
	RoleGenomeInterval          = "genome_interval"
)

// Dir returns {cacheRoot}/{version}/{genomeVersion}.
func Dir(cacheRoot, version string, genomeVersion model.GenomeVersion) string {
	return filepath.Join(cacheRoot, version, string(genomeVersion))
}

// ManifestPath returns the location of the reference manifest.
func ManifestPath(cacheRoot, version string, genomeVersion model.GenomeVersion) string {
	return filepath.Join(Dir(cacheRoot, version, genomeVersion), ManifestName)
}

// Resolve loads the reference manifest for the given cache version and genome
// build. Relative entries are rooted at the manifest's directory.
func Resolve(cacheRoot, version string, genomeVersion model.GenomeVersion) (model.ReferenceManifest, error) {
	path := ManifestPath(cacheRoot, version, genomeVersion)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewResourceNotFoundError("reference manifest", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read reference manifest: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, model.NewValidationError(fmt.Sprintf("reference manifest %s", path),
			model.FieldError{Message: err.Error()})
	}

	base := filepath.Dir(path)
	manifest := make(model.ReferenceManifest, len(raw))
	for role, p := range raw {
		manifest[role] = absolute(base, p)
	}
	return manifest, nil
}

func absolute(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Overrides are user-supplied annotation and observation files. Empty fields
// leave the manifest untouched.
type Overrides struct {
	CADDAnnotations         string
	ClinicalSNVObservations string
	ClinicalSVObservations  string
	CancerGermlineSNV       string
	CancerSomaticSNV        string
	CancerSomaticSV         string
	SwegenSNV               string
	SwegenSV                string
	GenomeInterval          string
}

func (o Overrides) byRole() map[string]string {
	return map[string]string{
		RoleCADDAnnotations:         o.CADDAnnotations,
		RoleClinicalSNVObservations: o.ClinicalSNVObservations,
		RoleClinicalSVObservations:  o.ClinicalSVObservations,
		RoleCancerGermlineSNV:       o.CancerGermlineSNV,
		RoleCancerSomaticSNV:        o.CancerSomaticSNV,
		RoleCancerSomaticSV:         o.CancerSomaticSV,
		RoleSwegenSNVFrequency:      o.SwegenSNV,
		RoleSwegenSVFrequency:       o.SwegenSV,
		RoleGenomeInterval:          o.GenomeInterval,
	}
}

// Apply returns a copy of m with every non-empty override set under its role.
// Override paths are made absolute against the working directory.
func Apply(m model.ReferenceManifest, o Overrides) (model.ReferenceManifest, error) {
	out := make(model.ReferenceManifest, len(m))
	for k, v := range m {
		out[k] = v
	}
	for role, p := range o.byRole() {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", role, err)
		}
		out[role] = abs
	}
	return out, nil
}

// Verify checks that every path of the manifest exists and reports all
// missing roles at once.
func Verify(m model.ReferenceManifest) error {
	var missing []string
	for _, role := range m.Roles() {
		if _, err := os.Stat(m[role]); err != nil {
			missing = append(missing, fmt.Sprintf("%s=%s", role, m[role]))
		}
	}
	if len(missing) > 0 {
		return model.NewResourceNotFoundError("reference files", missing...)
	}
	return nil
}
