package workflow

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/me/balsamic/internal/samples"
	"github.com/me/balsamic/pkg/model"
)

// SnakemakeOptions describes one engine invocation.
type SnakemakeOptions struct {
	Executable string // default "snakemake"

	CaseID     string
	WorkingDir string
	Snakefile  string
	ConfigFile string

	RunMode       model.RunMode
	Profile       model.ClusterProfile
	ClusterConfig string
	Python        string // interpreter of the scheduler script
	Scheduler     string // scheduler script submitting each job
	Account       string
	QOS           model.QOS
	MailUser      string
	MailType      string
	SlurmProfiler string
	LogDir        string
	ScriptDir     string
	ResultDir     string

	Run      bool // false adds --dryrun
	ForceAll bool
	Quiet    bool
	Report   string

	UseSingularity bool
	BindPaths      []string

	DisableVariantCaller string
	Dragen               bool

	ExtraOptions []string
}

// ClusterDryRun reports whether a cluster invocation is only a dry run,
// which is run locally instead.
func (o SnakemakeOptions) ClusterDryRun() bool {
	return o.RunMode == model.RunModeCluster && !o.Run
}

// SnakemakeCommand composes the engine command line. Cluster mode requires
// an account and submits every job through the scheduler script.
func SnakemakeCommand(o SnakemakeOptions) ([]string, error) {
	if o.RunMode == model.RunModeCluster && o.Account == "" {
		return nil, model.NewUsageError("an account is required for cluster run mode")
	}
	exe := o.Executable
	if exe == "" {
		exe = "snakemake"
	}

	args := []string{exe, "--notemp", "-p",
		"--directory", o.WorkingDir,
		"--snakefile", o.Snakefile,
		"--configfiles", o.ConfigFile,
	}
	if o.UseSingularity {
		args = append(args, "--use-singularity", "--singularity-args", singularityArgs(o.BindPaths))
	}
	if o.Quiet {
		args = append(args, "--quiet")
	}
	if o.ForceAll {
		args = append(args, "--forceall")
	}
	if !o.Run {
		args = append(args, "--dryrun")
	}
	if o.RunMode == model.RunModeCluster {
		args = append(args,
			"--immediate-submit", "-j", "999",
			"--jobname", fmt.Sprintf("BALSAMIC.%s.{rulename}.{jobid}.sh", o.CaseID),
			"--cluster-config", o.ClusterConfig,
			"--cluster", clusterCommand(o))
	}
	if o.Report != "" {
		args = append(args, "--report", o.Report)
	}

	var kv []string
	if o.DisableVariantCaller != "" {
		kv = append(kv, "disable_variant_caller="+o.DisableVariantCaller)
	}
	if o.Dragen {
		kv = append(kv, "dragen=True")
	}
	if len(kv) > 0 {
		args = append(args, "--config")
		args = append(args, kv...)
	}
	return append(args, o.ExtraOptions...), nil
}

func singularityArgs(binds []string) string {
	var b strings.Builder
	b.WriteString("--cleanenv")
	for _, p := range binds {
		fmt.Fprintf(&b, " --bind %s:%s", p, p)
	}
	return b.String()
}

// clusterCommand is the per-job submission command. The engine substitutes
// {dependencies} with the ids of upstream jobs.
func clusterCommand(o SnakemakeOptions) string {
	parts := []string{o.Python, o.Scheduler,
		"--sample-config", o.ConfigFile,
		"--profile", string(o.Profile),
		"--account", o.Account,
		"--qos", string(o.QOS),
		"--log-dir", o.LogDir,
		"--script-dir", o.ScriptDir,
		"--result-dir", o.ResultDir,
	}
	if o.SlurmProfiler != "" {
		parts = append(parts, "--slurm-profiler", o.SlurmProfiler)
	}
	if o.MailUser != "" {
		parts = append(parts, "--mail-user", o.MailUser)
	}
	if o.MailType != "" {
		parts = append(parts, "--mail-type", o.MailType)
	}
	parts = append(parts, "{dependencies}")
	return strings.Join(parts, " ")
}

// SingularityBindPaths lists the host directories a containerised run must
// see: the analysis dir, the FASTQ targets, the reference directories and
// the panel inputs. The result is sorted and free of duplicates.
func SingularityBindPaths(doc *model.ConfigDocument) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	add(doc.Analysis.AnalysisDir)
	if doc.Analysis.FastqPath != "" {
		fastq, err := samples.BindPaths(doc.Analysis.FastqPath)
		if err != nil {
			return nil, err
		}
		for _, p := range fastq {
			add(p)
		}
	}
	for _, role := range doc.Reference.Roles() {
		add(filepath.Dir(doc.Reference[role]))
	}
	if doc.Panel != nil {
		add(filepath.Dir(doc.Panel.CaptureKit))
		if doc.Panel.PONCNN != "" {
			add(filepath.Dir(doc.Panel.PONCNN))
		}
	}
	if doc.BackgroundVariants != "" {
		add(filepath.Dir(doc.BackgroundVariants))
	}
	sort.Strings(out)
	return out, nil
}
