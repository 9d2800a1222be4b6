// Package toolversion resolves the versions of bioinformatics tools from the
// environment manifests of the workflow containers.
package toolversion

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/me/balsamic/pkg/model"
)

// Container environment names.
const (
	EnvAlignQC      = "align_qc"
	EnvAnnotate     = "annotate"
	EnvCoverageQC   = "coverage_qc"
	EnvPython3      = "python_3"
	EnvPython27     = "python_27"
	EnvCNVpytor     = "cnvpytor"
	EnvCNVkit       = "cnvkit"
	EnvDelly        = "delly"
	EnvAscat        = "ascatNgs"
	EnvVCF2Cytosure = "vcf2cytosure"
	EnvSomalier     = "somalier"
)

// Registry maps a tool name to the container environment providing it.
type Registry map[string]string

// DefaultRegistry returns the tool registry of the workflow.
func DefaultRegistry() Registry {
	return Registry{
		"bedtools":     EnvAlignQC,
		"bwa":          EnvAlignQC,
		"fastqc":       EnvAlignQC,
		"samtools":     EnvAlignQC,
		"picard":       EnvAlignQC,
		"multiqc":      EnvAlignQC,
		"fastp":        EnvAlignQC,
		"csvkit":       EnvAlignQC,
		"ensembl-vep":  EnvAnnotate,
		"genmod":       EnvAnnotate,
		"vcfanno":      EnvAnnotate,
		"sambamba":     EnvCoverageQC,
		"mosdepth":     EnvCoverageQC,
		"bcftools":     EnvPython3,
		"tabix":        EnvPython3,
		"bgzip":        EnvPython3,
		"gatk":         EnvPython3,
		"vardict":      EnvPython3,
		"svdb":         EnvPython3,
		"tiddit":       EnvPython3,
		"cnvpytor":     EnvCNVpytor,
		"manta":        EnvPython27,
		"cnvkit":       EnvCNVkit,
		"delly":        EnvDelly,
		"ascatNgs":     EnvAscat,
		"vcf2cytosure": EnvVCF2Cytosure,
		"somalier":     EnvSomalier,
	}
}

// Environments returns the distinct environment names in sorted order.
func (r Registry) Environments() []string {
	seen := make(map[string]bool)
	var envs []string
	for _, env := range r {
		if !seen[env] {
			seen[env] = true
			envs = append(envs, env)
		}
	}
	sort.Strings(envs)
	return envs
}

// ManifestPath returns envDir/<env>/<env>.yaml.
func ManifestPath(envDir, env string) string {
	return filepath.Join(envDir, env, env+".yaml")
}

// Resolve reads the manifest of every environment in the registry and
// collects the versions of registered tools. Versions found in several
// manifests are merged; every list is sorted and de-duplicated.
func Resolve(registry Registry, envDir string) (model.BioinfoToolVersions, error) {
	acc := make(map[string][]string)
	for _, env := range registry.Environments() {
		path := ManifestPath(envDir, env)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.NewResourceNotFoundError("environment manifest", path)
		}
		if err != nil {
			return nil, fmt.Errorf("read environment manifest: %w", err)
		}
		found, err := parseManifest(data, registry)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for tool, versions := range found {
			acc[tool] = append(acc[tool], versions...)
		}
	}

	out := make(model.BioinfoToolVersions, len(acc))
	for tool, versions := range acc {
		out[tool] = dedupe(versions)
	}
	return out, nil
}

// parseManifest accepts a conda environment ({dependencies: [...]}) or a plain
// list of name=version strings.
func parseManifest(data []byte, registry Registry) (map[string][]string, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, model.NewValidationError("environment manifest", model.FieldError{Message: err.Error()})
	}

	found := make(map[string][]string)
	switch v := doc.(type) {
	case map[string]any:
		deps, _ := v["dependencies"].([]any)
		collectConda(deps, registry, found)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			name, version := splitPlain(s)
			if _, ok := registry[name]; ok {
				found[name] = append(found[name], version)
			}
		}
	case nil:
	default:
		return nil, model.NewValidationError("environment manifest",
			model.FieldError{Message: fmt.Sprintf("unexpected document type %T", doc)})
	}
	return found, nil
}

var condaSep = regexp.MustCompile(`==?`)

func collectConda(deps []any, registry Registry, found map[string][]string) {
	for _, dep := range deps {
		switch d := dep.(type) {
		case map[string]any:
			// pip sub-list
			for _, sub := range d {
				if list, ok := sub.([]any); ok {
					collectConda(list, registry, found)
				}
			}
		case string:
			name, version, ok := splitConda(d)
			if !ok {
				continue
			}
			if _, known := registry[name]; known {
				found[name] = append(found[name], version)
			}
		}
	}
}

// splitConda parses channel::name=version and name==version.
func splitConda(s string) (name, version string, ok bool) {
	var parts []string
	for _, p := range condaSep.Split(s, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return "", "", false
	}
	name = parts[0]
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return strings.TrimSpace(name), strings.TrimSpace(parts[1]), true
}

// splitPlain splits at the first '=' and keeps the rest as the version.
func splitPlain(s string) (name, version string) {
	name, version, _ = strings.Cut(s, "=")
	return name, version
}

func dedupe(versions []string) []string {
	seen := make(map[string]bool, len(versions))
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
