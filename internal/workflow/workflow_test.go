package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/dominikbraun/graph"
	"gopkg.in/yaml.v3"

	"github.com/me/balsamic/pkg/model"
)

func TestSnakefile(t *testing.T) {
	tests := []struct {
		at     model.AnalysisType
		wf     model.AnalysisWorkflow
		genome model.GenomeVersion
		want   string
	}{
		{model.AnalysisTypePaired, model.WorkflowBalsamic, model.GenomeHG19, "balsamic.smk"},
		{model.AnalysisTypeSingle, model.WorkflowBalsamicUMI, model.GenomeHG38, "balsamic.smk"},
		{model.AnalysisTypeSingle, model.WorkflowBalsamicQC, model.GenomeHG19, "QC.smk"},
		{model.AnalysisTypePON, model.WorkflowBalsamic, model.GenomeHG19, "PON.smk"},
		{GenerateReference, "", model.GenomeHG38, "reference.smk"},
		{GenerateReference, "", model.GenomeCanFam3, "reference-canfam3.smk"},
	}
	for _, tt := range tests {
		got := Snakefile("/wf", tt.at, tt.wf, tt.genome)
		if want := filepath.Join("/wf", tt.want); got != want {
			t.Errorf("Snakefile(%s, %s, %s) = %q, want %q", tt.at, tt.wf, tt.genome, got, want)
		}
	}
}

func TestRules(t *testing.T) {
	rules, err := Rules(model.AnalysisTypeSingle, model.SequencingTypeWGS)
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	qc := rules[StageQC]
	if qc[0] != "snakemake_rules/quality_control/fastp.rule" {
		t.Errorf("first qc rule = %q, want the common fastp rule", qc[0])
	}
	if qc[len(qc)-1] != "snakemake_rules/quality_control/report.rule" {
		t.Errorf("last qc rule = %q", qc[len(qc)-1])
	}
	if got := rules[StageAlign]; !reflect.DeepEqual(got, []string{"snakemake_rules/align/sentieon_alignment.rule"}) {
		t.Errorf("align = %v", got)
	}
	if n := len(rules.All()); n != 8+1+8+4 {
		t.Errorf("All() has %d rules", n)
	}

	// The returned set must not alias the shared tables.
	rules[StageQC][0] = "changed"
	again, _ := Rules(model.AnalysisTypePaired, model.SequencingTypeWGS)
	if again[StageQC][0] == "changed" {
		t.Error("Rules returned an aliased slice")
	}
}

func TestRules_PON(t *testing.T) {
	_, err := Rules(model.AnalysisTypePON, model.SequencingTypeTargeted)
	var sve *model.SchemaValidationError
	if !errors.As(err, &sve) {
		t.Fatalf("expected SchemaValidationError, got %v", err)
	}
}

func testDocument(t *testing.T) *model.ConfigDocument {
	t.Helper()
	dir := t.TempDir()
	return &model.ConfigDocument{
		Analysis: model.AnalysisConfig{
			CaseID:          "case1",
			AnalysisDir:     dir,
			Dag:             filepath.Join(dir, "case1", "case1_BALSAMIC_13.0.0_graph.pdf"),
			BalsamicVersion: "13.0.0",
			AnalysisType:    model.AnalysisTypePaired,
			SequencingType:  model.SequencingTypeTargeted,
		},
	}
}

func TestBuildDAG(t *testing.T) {
	doc := testDocument(t)
	g, err := BuildDAG(doc)
	if err != nil {
		t.Fatalf("BuildDAG: %v", err)
	}

	order, err := graph.TopologicalSort(g)
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, v := range order {
		pos[v] = i
	}
	for _, pair := range [][2]string{
		{"bwa_mem", "picard"},
		{"bwa_mem", "somatic_tumor_normal"},
		{"somatic_tumor_normal", "vep"},
	} {
		if pos[pair[0]] >= pos[pair[1]] {
			t.Errorf("%s should precede %s", pair[0], pair[1])
		}
	}

	_, props, err := g.VertexWithProperties("vep")
	if err != nil {
		t.Fatal(err)
	}
	if props.Attributes["group"] != string(StageAnnotate) {
		t.Errorf("vep group = %q", props.Attributes["group"])
	}
}

func TestBuildDAG_PON(t *testing.T) {
	tests := []struct {
		wf       model.PONWorkflow
		from, to string
	}{
		{model.PONWorkflowCNVkit, "bwa_mem", "cnvkit_create_pon"},
		{model.PONWorkflowGENSMale, "sentieon_alignment", "gens_create_pon"},
	}
	for _, tt := range tests {
		t.Run(string(tt.wf), func(t *testing.T) {
			doc := testDocument(t)
			doc.Analysis.AnalysisType = model.AnalysisTypePON
			doc.Analysis.PONWorkflow = tt.wf
			g, err := BuildDAG(doc)
			if err != nil {
				t.Fatalf("BuildDAG: %v", err)
			}
			if _, err := g.Edge(tt.from, tt.to); err != nil {
				t.Errorf("edge %s -> %s: %v", tt.from, tt.to, err)
			}
			if _, err := g.Vertex("vep"); err == nil {
				t.Error("PON graph includes case annotation rules")
			}
		})
	}
}

func TestWriteDAG(t *testing.T) {
	doc := testDocument(t)
	path, err := WriteDAG(doc)
	if err != nil {
		t.Fatalf("WriteDAG: %v", err)
	}
	if want := filepath.Join(doc.Analysis.AnalysisDir, "case1", "case1_BALSAMIC_13.0.0_graph.dot"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"BALSAMIC_13.0.0_case1", "bwa_mem", "vcfheader_rename"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}

func TestSnakemakeCommand_LocalDryRun(t *testing.T) {
	cmd, err := SnakemakeCommand(SnakemakeOptions{
		CaseID:         "case1",
		WorkingDir:     "/a/case1/BALSAMIC_run",
		Snakefile:      "/wf/balsamic.smk",
		ConfigFile:     "/a/case1/case1.json",
		RunMode:        model.RunModeLocal,
		UseSingularity: true,
		BindPaths:      []string{"/a", "/ref"},
		ForceAll:       true,
		Dragen:         true,
		ExtraOptions:   []string{"--cores", "4"},
	})
	if err != nil {
		t.Fatalf("SnakemakeCommand: %v", err)
	}
	want := []string{
		"snakemake", "--notemp", "-p",
		"--directory", "/a/case1/BALSAMIC_run",
		"--snakefile", "/wf/balsamic.smk",
		"--configfiles", "/a/case1/case1.json",
		"--use-singularity", "--singularity-args", "--cleanenv --bind /a:/a --bind /ref:/ref",
		"--forceall", "--dryrun",
		"--config", "dragen=True",
		"--cores", "4",
	}
	if !reflect.DeepEqual(cmd, want) {
		t.Errorf("command =\n%q\nwant\n%q", cmd, want)
	}
}

func TestSnakemakeCommand_Cluster(t *testing.T) {
	opts := SnakemakeOptions{
		CaseID:               "case1",
		WorkingDir:           "/w",
		Snakefile:            "/wf/balsamic.smk",
		ConfigFile:           "/c.json",
		RunMode:              model.RunModeCluster,
		Profile:              model.ProfileSlurm,
		ClusterConfig:        "/cluster.json",
		Python:               "python3",
		Scheduler:            "/opt/scheduler.py",
		Account:              "dev",
		QOS:                  model.QOSHigh,
		MailUser:             "ops@example.org",
		LogDir:               "/l",
		ScriptDir:            "/s",
		ResultDir:            "/r",
		Run:                  true,
		DisableVariantCaller: "tnscope,vardict",
	}
	cmd, err := SnakemakeCommand(opts)
	if err != nil {
		t.Fatalf("SnakemakeCommand: %v", err)
	}
	joined := strings.Join(cmd, " ")
	for _, want := range []string{
		"--immediate-submit -j 999",
		"--jobname BALSAMIC.case1.{rulename}.{jobid}.sh",
		"--cluster-config /cluster.json",
		"--config disable_variant_caller=tnscope,vardict",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("command missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "--dryrun") {
		t.Error("real run must not carry --dryrun")
	}

	var cluster string
	for i, a := range cmd {
		if a == "--cluster" {
			cluster = cmd[i+1]
		}
	}
	wantCluster := "python3 /opt/scheduler.py --sample-config /c.json --profile slurm --account dev --qos high " +
		"--log-dir /l --script-dir /s --result-dir /r --mail-user ops@example.org {dependencies}"
	if cluster != wantCluster {
		t.Errorf("cluster = %q, want %q", cluster, wantCluster)
	}

	opts.Account = ""
	_, err = SnakemakeCommand(opts)
	var ue *model.UsageError
	if !errors.As(err, &ue) {
		t.Errorf("expected UsageError without account, got %v", err)
	}
}

func TestClusterDryRun(t *testing.T) {
	if !(SnakemakeOptions{RunMode: model.RunModeCluster}).ClusterDryRun() {
		t.Error("cluster without run should be a dry run")
	}
	if (SnakemakeOptions{RunMode: model.RunModeCluster, Run: true}).ClusterDryRun() {
		t.Error("cluster with run is not a dry run")
	}
}

func TestSingularityBindPaths(t *testing.T) {
	root := t.TempDir()
	raw := filepath.Join(root, "raw")
	fastq := filepath.Join(root, "analysis", "case1", "fastq")
	for _, d := range []string{raw, fastq} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	target := filepath.Join(raw, "ACC1_R_1.fastq.gz")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(fastq, "ACC1_R_1.fastq.gz")); err != nil {
		t.Fatal(err)
	}
	resolvedRaw, err := filepath.EvalSymlinks(raw)
	if err != nil {
		t.Fatal(err)
	}

	doc := &model.ConfigDocument{
		Analysis: model.AnalysisConfig{AnalysisDir: filepath.Join(root, "analysis"), FastqPath: fastq},
		Reference: model.ReferenceManifest{
			"reference_genome": "/ref/genome/genome.fa",
			"dbsnp":            "/ref/variants/dbsnp.vcf.gz",
			"cosmic":           "/ref/variants/cosmic.vcf.gz",
		},
		Panel: &model.PanelConfig{CaptureKit: "/panels/kit.bed"},
	}
	got, err := SingularityBindPaths(doc)
	if err != nil {
		t.Fatalf("SingularityBindPaths: %v", err)
	}
	want := []string{filepath.Join(root, "analysis"), "/panels", "/ref/genome", "/ref/variants", resolvedRaw}
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bind paths = %v, want %v", got, want)
	}
}

func TestNextAvailablePath(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "logs")

	got, err := NextAvailablePath(base)
	if err != nil || got != base {
		t.Fatalf("NextAvailablePath(missing) = %q, %v; want %q", got, err, base)
	}

	for _, d := range []string{base, base + ".1"} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	got, err = NextAvailablePath(base)
	if err != nil {
		t.Fatal(err)
	}
	if got != base+".2" {
		t.Errorf("NextAvailablePath = %q, want %q", got, base+".2")
	}
	if _, err := os.Stat(got); !os.IsNotExist(err) {
		t.Error("NextAvailablePath must not create the path")
	}

	got, err = NextAvailablePath(base + ".1")
	if err != nil {
		t.Fatal(err)
	}
	if got != base+".2" {
		t.Errorf("NextAvailablePath(.1) = %q, want %q", got, base+".2")
	}
}

func TestHasFiles(t *testing.T) {
	dir := t.TempDir()
	if ok, err := HasFiles(filepath.Join(dir, "missing")); err != nil || ok {
		t.Errorf("HasFiles(missing) = %v, %v", ok, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if ok, _ := HasFiles(dir); ok {
		t.Error("empty tree reported files")
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "x.log"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := HasFiles(dir); !ok {
		t.Error("nested file not found")
	}
}

func TestDumpJobIDs(t *testing.T) {
	dir := t.TempDir()
	sacct := SacctPath(dir, "case1")
	if err := os.WriteFile(sacct, []byte("1001\n1002\n\n1003\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := JobIDsPath(filepath.Join(dir, "result"), model.ProfileSlurm)
	if err := DumpJobIDs(sacct, out, "case1"); err != nil {
		t.Fatalf("DumpJobIDs: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string][]string
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{"case1": {"1001", "1002", "1003"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("job ids = %v, want %v", got, want)
	}

	err = DumpJobIDs(filepath.Join(dir, "none.sacct"), out, "case1")
	var rnf *model.ResourceNotFoundError
	if !errors.As(err, &rnf) {
		t.Errorf("expected ResourceNotFoundError, got %v", err)
	}
}
