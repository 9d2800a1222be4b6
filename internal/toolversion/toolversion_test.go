package toolversion

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/me/balsamic/pkg/model"
)

func writeEnv(t *testing.T, envDir, env, content string) {
	t.Helper()
	dir := filepath.Join(envDir, env)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ManifestPath(envDir, env), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve_CondaAndPlain(t *testing.T) {
	envDir := t.TempDir()
	writeEnv(t, envDir, "align_qc", `
channels:
  - bioconda
dependencies:
  - bioconda::bwa=0.7.15
  - samtools=1.9
  - samtools=1.9
  - python=3.11
  - pip:
      - multiqc==1.12
`)
	writeEnv(t, envDir, "delly", `
- delly=1.0.3
- htslib=1.16
`)

	reg := Registry{"bwa": "align_qc", "samtools": "align_qc", "multiqc": "align_qc", "delly": "delly"}
	got, err := Resolve(reg, envDir)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := model.BioinfoToolVersions{
		"bwa":      {"0.7.15"},
		"samtools": {"1.9"},
		"multiqc":  {"1.12"},
		"delly":    {"1.0.3"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve = %v, want %v", got, want)
	}
}

func TestResolve_MergesAcrossEnvironments(t *testing.T) {
	envDir := t.TempDir()
	writeEnv(t, envDir, "a", "dependencies:\n  - samtools=1.15\n  - samtools=1.9\n")
	writeEnv(t, envDir, "b", "dependencies:\n  - samtools=1.15\n")

	got, err := Resolve(Registry{"samtools": "a", "bcftools": "b"}, envDir)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"1.15", "1.9"}; !reflect.DeepEqual(got["samtools"], want) {
		t.Errorf("samtools = %v, want %v", got["samtools"], want)
	}
	if _, ok := got["bcftools"]; ok {
		t.Error("bcftools has no declared version and should be absent")
	}
}

func TestResolve_PlainListKeepsVersionTail(t *testing.T) {
	envDir := t.TempDir()
	writeEnv(t, envDir, "x", "- vcf2cytosure=0.8=dev\n")

	got, err := Resolve(Registry{"vcf2cytosure": "x"}, envDir)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"0.8=dev"}; !reflect.DeepEqual(got["vcf2cytosure"], want) {
		t.Errorf("vcf2cytosure = %v, want %v", got["vcf2cytosure"], want)
	}
}

func TestResolve_MissingManifest(t *testing.T) {
	_, err := Resolve(Registry{"bwa": "align_qc"}, t.TempDir())
	var rnf *model.ResourceNotFoundError
	if !errors.As(err, &rnf) {
		t.Fatalf("expected ResourceNotFoundError, got %v", err)
	}
}

func TestSplitConda(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		version string
		ok      bool
	}{
		{"bwa=0.7.17", "bwa", "0.7.17", true},
		{"multiqc==1.12", "multiqc", "1.12", true},
		{"bioconda::fastp=0.23.2", "fastp", "0.23.2", true},
		{"python", "", "", false},
	}
	for _, tt := range tests {
		name, version, ok := splitConda(tt.in)
		if name != tt.name || version != tt.version || ok != tt.ok {
			t.Errorf("splitConda(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, name, version, ok, tt.name, tt.version, tt.ok)
		}
	}
}

func TestDefaultRegistry_Environments(t *testing.T) {
	envs := DefaultRegistry().Environments()
	if len(envs) != 11 {
		t.Errorf("Environments() = %v, want 11 entries", envs)
	}
	for i := 1; i < len(envs); i++ {
		if envs[i-1] >= envs[i] {
			t.Errorf("Environments() not sorted: %v", envs)
		}
	}
}
