package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/balsamic/internal/analysis"
	"github.com/me/balsamic/internal/logging"
	"github.com/me/balsamic/internal/qc"
	"github.com/me/balsamic/internal/store"
	"github.com/me/balsamic/internal/toolversion"
	"github.com/me/balsamic/internal/workflow"
	"github.com/me/balsamic/pkg/model"
)

// fixture is a cache, environment manifests, FASTQs and a settings file
// pointing at them. The engine executable is echo, so dispatches print their
// command line and succeed.
type fixture struct {
	dir         string
	settings    string
	analysisDir string
	fastqDir    string
	dbPath      string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:         dir,
		settings:    filepath.Join(dir, "settings.toml"),
		analysisDir: filepath.Join(dir, "analysis"),
		fastqDir:    filepath.Join(dir, "fastq"),
		dbPath:      filepath.Join(dir, "db", "balsamic.db"),
	}

	cache := filepath.Join(dir, "cache")
	genomeDir := filepath.Join(cache, "develop", "hg19")
	writeFile(t, filepath.Join(genomeDir, "genome", "genome.fa"), ">chr1\nACGT\n")
	writeFile(t, filepath.Join(genomeDir, "reference.json"), `{"reference_genome": "genome/genome.fa"}`)

	envDir := filepath.Join(dir, "envs")
	for _, env := range toolversion.DefaultRegistry().Environments() {
		writeFile(t, toolversion.ManifestPath(envDir, env), "- bwa=0.7.17\n- samtools=1.15\n")
	}

	for _, prefix := range []string{"ACC1_R", "ACC2_R"} {
		for _, read := range []string{"1", "2"} {
			writeFile(t, filepath.Join(f.fastqDir, fmt.Sprintf("%s_%s.fastq.gz", prefix, read)), "@r\nACGT\n+\nIIII\n")
		}
	}

	writeFile(t, f.settings, fmt.Sprintf(`log_level = "error"
db_path = %q

[reference]
cache_dir = %q

[workflow]
dir = %q
env_dir = %q
snakemake = "echo"

[cluster]
account = "development"
`, f.dbPath, cache, filepath.Join(dir, "workflows"), envDir))
	return f
}

func execute(t *testing.T, f *fixture, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--settings", f.settings}, args...))
	err := root.Execute()
	return out.String(), err
}

func (f *fixture) configCase(t *testing.T, extra ...string) *model.ConfigDocument {
	t.Helper()
	args := append([]string{"config", "case",
		"--case-id", "case1",
		"--analysis-dir", f.analysisDir,
		"--fastq-path", f.fastqDir,
		"--tumor-sample-name", "ACC1",
	}, extra...)
	if _, err := execute(t, f, args...); err != nil {
		t.Fatalf("config case: %v", err)
	}
	doc, err := analysis.Load(f.configPath())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return doc
}

func (f *fixture) configPath() string {
	return analysis.ConfigPath(f.analysisDir, "case1", false)
}

func (f *fixture) runs(t *testing.T) []*model.Run {
	t.Helper()
	if _, err := os.Stat(f.dbPath); err != nil {
		return nil
	}
	st, err := store.NewSQLiteStore(f.dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.ListRunsByCase(context.Background(), "case1")
	if err != nil {
		t.Fatal(err)
	}
	return runs
}

func TestConfigCase_PairedWGS(t *testing.T) {
	f := newFixture(t)
	doc := f.configCase(t, "--normal-sample-name", "ACC2")

	a := doc.Analysis
	if a.AnalysisType != model.AnalysisTypePaired || a.SequencingType != model.SequencingTypeWGS {
		t.Errorf("analysis = %s/%s, want paired/wgs", a.AnalysisType, a.SequencingType)
	}
	if a.BalsamicVersion != Version {
		t.Errorf("BALSAMIC_version = %q", a.BalsamicVersion)
	}
	if doc.QC.UMITrim {
		t.Error("umi_trim set for wgs")
	}
	if len(doc.Samples) != 2 || doc.Samples["ACC1_R"].Type != model.SampleTypeTumor || doc.Samples["ACC2_R"].Type != model.SampleTypeNormal {
		t.Errorf("samples = %+v", doc.Samples)
	}
	if got := doc.Reference["reference_genome"]; !filepath.IsAbs(got) || !strings.HasSuffix(got, "genome/genome.fa") {
		t.Errorf("reference_genome = %q", got)
	}
	if v := doc.BioinfoToolsVersion["bwa"]; len(v) != 1 || v[0] != "0.7.17" {
		t.Errorf("bwa versions = %v", v)
	}

	link := filepath.Join(f.analysisDir, "case1", "fastq", "ACC1_R_1.fastq.gz")
	if fi, err := os.Lstat(link); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("fastq not linked into case dir: %v", err)
	}
	for _, dir := range analysis.Directories(doc) {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("directory not created: %v", err)
		}
	}
	if _, err := os.Stat(workflow.DOTPath(a.Dag)); err != nil {
		t.Errorf("workflow graph not written: %v", err)
	}
}

func TestConfigCase_UsageErrors(t *testing.T) {
	f := newFixture(t)
	base := []string{"config", "case", "--case-id", "case1", "--analysis-dir", f.analysisDir, "--fastq-path", f.fastqDir}

	tests := []struct {
		name string
		args []string
	}{
		{"missing tumor", base},
		{"bad genome", append(append([]string{}, base...), "-t", "ACC1", "--genome-version", "hg99")},
		{"bad gender", append(append([]string{}, base...), "-t", "ACC1", "--gender", "unknown")},
		{"umi without panel", append(append([]string{}, base...), "-t", "ACC1", "-w", "balsamic-umi")},
		{"unknown flag", append(append([]string{}, base...), "--bogus")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, f, tt.args...)
			if got := model.ExitCode(err); got != model.ExitUsage {
				t.Errorf("exit code = %d (%v), want %d", got, err, model.ExitUsage)
			}
		})
	}
}

func TestConfigCase_MissingReference(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, f, "config", "case", "--case-id", "case1", "--analysis-dir", f.analysisDir,
		"--fastq-path", f.fastqDir, "-t", "ACC1", "--genome-version", "hg38")
	var rnf *model.ResourceNotFoundError
	if !errors.As(err, &rnf) {
		t.Fatalf("expected ResourceNotFoundError, got %v", err)
	}
	if model.ExitCode(err) != model.ExitFailure {
		t.Errorf("exit code = %d", model.ExitCode(err))
	}
}

func TestConfigPON(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, f, "config", "pon", "--case-id", "pon1", "--analysis-dir", f.analysisDir,
		"--fastq-path", f.fastqDir, "--pon-workflow", "GENS_male")
	if model.ExitCode(err) != model.ExitUsage {
		t.Fatalf("GENS without genome interval: %v", err)
	}

	interval := filepath.Join(f.dir, "genome.interval_list")
	writeFile(t, interval, "chr1\t1\t100\n")
	out, err := execute(t, f, "config", "pon", "--case-id", "pon1", "--analysis-dir", f.analysisDir,
		"--fastq-path", f.fastqDir, "--pon-workflow", "GENS_male", "--genome-interval", interval)
	if err != nil {
		t.Fatalf("config pon: %v", err)
	}
	path := analysis.ConfigPath(f.analysisDir, "pon1", true)
	if strings.TrimSpace(out) != path {
		t.Errorf("output = %q, want %q", out, path)
	}
	doc, err := analysis.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Analysis.AnalysisType != model.AnalysisTypePON || doc.Analysis.PONWorkflow != model.PONWorkflowGENSMale {
		t.Errorf("analysis = %+v", doc.Analysis)
	}
	if len(doc.Samples) != 2 || doc.Samples["ACC1_R"].SampleName != "ACC1" {
		t.Errorf("samples = %+v", doc.Samples)
	}
	if doc.Reference["genome_interval"] != interval {
		t.Errorf("genome_interval = %q", doc.Reference["genome_interval"])
	}
	if _, err := os.Stat(workflow.DOTPath(doc.Analysis.Dag)); err != nil {
		t.Errorf("workflow graph not written: %v", err)
	}
}

func TestRunAnalysis_DryRunAndRerun(t *testing.T) {
	f := newFixture(t)
	doc := f.configCase(t)

	out, err := execute(t, f, "run", "analysis", "--sample-config", f.configPath())
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	for _, want := range []string{"--dryrun", "--snakefile " + filepath.Join(f.dir, "workflows", "balsamic.smk"), "--use-singularity"} {
		if !strings.Contains(out, want) {
			t.Errorf("engine command missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "--immediate-submit") {
		t.Error("cluster dry run was not switched to local")
	}
	if _, err := os.Stat(filepath.Join(doc.Analysis.Log, logging.LogFileName)); err != nil {
		t.Errorf("case log not written: %v", err)
	}

	out, err = execute(t, f, "run", "analysis", "--sample-config", f.configPath(), "--run-mode", "local", "-r")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(out, "--dryrun") {
		t.Errorf("real run passed --dryrun:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(doc.Analysis.Log+".1", logging.LogFileName)); err != nil {
		t.Errorf("rerun did not move to the next log dir: %v", err)
	}

	runs := f.runs(t)
	if len(runs) != 2 {
		t.Fatalf("ledger holds %d runs, want 2", len(runs))
	}
	for i, dry := range []bool{true, false} {
		r := runs[i]
		if r.State != model.RunStateCompleted || r.ExitCode == nil || *r.ExitCode != 0 || r.DryRun != dry || r.RunMode != model.RunModeLocal {
			t.Errorf("run %d = %+v", i, r)
		}
	}
}

func TestRunAnalysis_Cluster(t *testing.T) {
	f := newFixture(t)
	f.configCase(t)

	// No sacct dump is written by echo, so the job id step reports it missing.
	out, err := execute(t, f, "run", "analysis", "--sample-config", f.configPath(), "-r", "--qos", "high")
	var rnf *model.ResourceNotFoundError
	if !errors.As(err, &rnf) {
		t.Fatalf("expected missing sacct dump, got %v", err)
	}
	for _, want := range []string{"--immediate-submit", "--account development", "--qos high", "BALSAMIC.case1.{rulename}.{jobid}.sh"} {
		if !strings.Contains(out, want) {
			t.Errorf("engine command missing %q:\n%s", want, out)
		}
	}
	if runs := f.runs(t); len(runs) != 1 || runs[0].State != model.RunStateCompleted || runs[0].RunMode != model.RunModeCluster {
		t.Errorf("ledger = %+v", runs)
	}

	_, err = execute(t, f, "run", "analysis", "--sample-config", f.configPath(), "--qos", "urgent")
	if model.ExitCode(err) != model.ExitUsage {
		t.Errorf("bad qos: exit %d (%v)", model.ExitCode(err), err)
	}
}

func caseEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestRunAnalysis_ClusterNeedsAccount(t *testing.T) {
	f := newFixture(t)
	doc := f.configCase(t)
	// A finished local run leaves files in the log dir, so a new real run
	// would move to logs.1.
	if _, err := execute(t, f, "run", "analysis", "--sample-config", f.configPath(), "--run-mode", "local", "-r"); err != nil {
		t.Fatalf("local run: %v", err)
	}
	caseDir := filepath.Join(f.analysisDir, "case1")
	before := caseEntries(t, caseDir)

	data, err := os.ReadFile(f.settings)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, f.settings, strings.Replace(string(data), `account = "development"`, "", 1))

	_, err = execute(t, f, "run", "analysis", "--sample-config", f.configPath(), "-r")
	var ue *model.UsageError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UsageError, got %v", err)
	}
	if after := caseEntries(t, caseDir); strings.Join(after, ",") != strings.Join(before, ",") {
		t.Errorf("case dir changed by rejected run: %v -> %v", before, after)
	}
	if _, err := os.Stat(doc.Analysis.Log + ".1"); !os.IsNotExist(err) {
		t.Errorf("rejected run created %s.1", doc.Analysis.Log)
	}
	if len(f.runs(t)) != 1 {
		t.Error("rejected run recorded in ledger")
	}

	if _, err := execute(t, f, "run", "analysis", "--sample-config", f.configPath()); err != nil {
		t.Errorf("cluster dry run without account: %v", err)
	}
}

func TestConfigCase_MissingPanelCreatesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := execute(t, f, "config", "case", "--case-id", "case1", "--analysis-dir", f.analysisDir,
		"--fastq-path", f.fastqDir, "-t", "ACC1", "--panel-bed", filepath.Join(f.dir, "missing.bed"))
	var rnf *model.ResourceNotFoundError
	if !errors.As(err, &rnf) {
		t.Fatalf("expected ResourceNotFoundError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.analysisDir, "case1")); !os.IsNotExist(err) {
		t.Errorf("case dir created: %v", err)
	}
}

func TestConfig_PatternMismatchCreatesNothing(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.fastqDir, "ACC1_bad.fastq.gz"), "@r\n")
	interval := filepath.Join(f.dir, "genome.interval_list")
	writeFile(t, interval, "chr1\t1\t100\n")

	tests := []struct {
		name string
		args []string
	}{
		{"case", []string{"config", "case", "--case-id", "case1", "--analysis-dir", f.analysisDir,
			"--fastq-path", f.fastqDir, "-t", "ACC1"}},
		{"pon", []string{"config", "pon", "--case-id", "case1", "--analysis-dir", f.analysisDir,
			"--fastq-path", f.fastqDir, "--pon-workflow", "GENS_male", "--genome-interval", interval}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, f, tt.args...)
			var pme *model.PatternMismatchError
			if !errors.As(err, &pme) {
				t.Fatalf("expected PatternMismatchError, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(f.analysisDir, "case1")); !os.IsNotExist(err) {
				t.Errorf("case dir created: %v", err)
			}
		})
	}
}

func TestRunAnalysis_BadVariantCaller(t *testing.T) {
	f := newFixture(t)
	f.configCase(t)
	_, err := execute(t, f, "run", "analysis", "--sample-config", f.configPath(), "--disable-variant-caller", "nosuchcaller")
	var sve *model.SchemaValidationError
	if !errors.As(err, &sve) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
	if len(f.runs(t)) != 0 {
		t.Error("rejected run recorded in ledger")
	}
}

func TestReportStatus(t *testing.T) {
	f := newFixture(t)
	doc := f.configCase(t)
	if _, err := execute(t, f, "run", "analysis", "--sample-config", f.configPath()); err != nil {
		t.Fatalf("dry run: %v", err)
	}

	found := filepath.Join(doc.Analysis.Result, "vcf", "SNV.vcf.gz")
	writeFile(t, found, "x")
	missing := filepath.Join(doc.Analysis.Result, "vcf", "SV.vcf.gz")
	summary := filepath.Join(f.dir, "summary.tsv")
	writeFile(t, summary, "output_file\tdate\trule\tstatus\n"+
		found+"\t-\tvardict\tok\n"+
		missing+"\t-\tmanta\tmissing\n")

	out, err := execute(t, f, "report", "status", "--sample-config", f.configPath(), "--summary-file", summary, "-p")
	if err != nil {
		t.Fatalf("report status: %v", err)
	}
	runID := f.runs(t)[0].ID
	for _, want := range []string{runID, "COMPLETED", "Found: " + found, "File missing: " + missing, "Finished file count: 1", "Missing file count: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestQCValidate(t *testing.T) {
	f := newFixture(t)
	doc := f.configCase(t)

	writeFile(t, filepath.Join(doc.Analysis.Result, "qc", "coverage", "coverage.tsv"),
		"sample\tMEAN_COVERAGE\tPCT_30X\n"+
			"concatenated_tumor_ACC1_R\t35.2\t0.95\n")
	requested := filepath.Join(f.dir, "requested.yaml")

	writeFile(t, requested, "wgs:\n  PCT_30X:\n    condition:\n      norm: gt\n      threshold: 0.9\n  MEAN_COVERAGE:\n    condition: null\n")
	out, err := execute(t, f, "qc", "validate", "--sample-config", f.configPath(), "--requested-metrics", requested)
	if err != nil {
		t.Fatalf("qc validate: %v", err)
	}
	if !strings.Contains(out, `"PCT_30X": 0.95`) {
		t.Errorf("output = %s", out)
	}
	written, err := qc.ReadDocument(qc.DeliverablesPath(doc.Analysis.Result, "case1"))
	if err != nil {
		t.Fatalf("deliverables: %v", err)
	}
	if len(written.Metrics["concatenated_tumor_ACC1"]) != 2 {
		t.Errorf("metrics = %+v", written.Metrics)
	}

	writeFile(t, requested, "wgs:\n  PCT_30X:\n    condition:\n      norm: gt\n      threshold: 0.99\n")
	_, err = execute(t, f, "qc", "validate", "--sample-config", f.configPath(), "--requested-metrics", requested)
	var qe *model.QCThresholdViolationError
	if !errors.As(err, &qe) || len(qe.Violations) != 1 {
		t.Fatalf("expected one QC violation, got %v", err)
	}
	if model.ExitCode(err) != model.ExitFailure {
		t.Errorf("exit code = %d", model.ExitCode(err))
	}
}

func TestVersionFlag(t *testing.T) {
	f := newFixture(t)
	out, err := execute(t, f, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("--version output = %q", out)
	}
}
