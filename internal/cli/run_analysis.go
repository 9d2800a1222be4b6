package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/me/balsamic/internal/analysis"
	"github.com/me/balsamic/internal/execution"
	"github.com/me/balsamic/internal/logging"
	"github.com/me/balsamic/internal/store"
	"github.com/me/balsamic/internal/workflow"
	"github.com/me/balsamic/pkg/model"
	"github.com/spf13/cobra"
)

// RunDirName is the engine working directory under analysis_dir/case_id.
const RunDirName = "BALSAMIC_run"

type runAnalysisFlags struct {
	sampleConfig  string
	snakeFile     string
	runMode       string
	clusterConfig string
	profile       string
	qos           string
	account       string
	mailUser      string
	mailType      string

	runAnalysis          bool
	forceAll             bool
	quiet                bool
	benchmark            bool
	dragen               bool
	disableVariantCaller string
	snakemakeOpts        []string
	engineImage          string

	mode model.RunMode
}

func newRunAnalysisCmd() *cobra.Command {
	var f runAnalysisFlags

	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Run the workflow of a case configuration document",
		Long: `Composes the workflow engine command for a case and dispatches it.
Without --run-analysis the engine only performs a dry run; cluster dry runs
are executed locally. Every dispatch is recorded in the run ledger.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.sampleConfig, "sample-config", "s", "", "Case configuration document (required)")
	cmd.Flags().StringVarP(&f.snakeFile, "snake-file", "S", "", "Workflow file overriding the selected one")
	cmd.Flags().StringVarP(&f.runMode, "run-mode", "m", string(model.RunModeCluster), "Run mode: local or cluster")
	cmd.Flags().StringVarP(&f.clusterConfig, "cluster-config", "c", "", "Engine cluster config (default from settings)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Cluster profile: slurm or qsub (default from settings)")
	cmd.Flags().StringVar(&f.qos, "qos", "", "Cluster QOS: low, normal, high or express (default from settings)")
	cmd.Flags().StringVar(&f.account, "account", "", "Cluster account (default from settings)")
	cmd.Flags().StringVar(&f.mailUser, "mail-user", "", "User email for cluster notifications")
	cmd.Flags().StringVar(&f.mailType, "mail-type", "", "Cluster mail type: NONE, BEGIN, END, FAIL, REQUEUE, ALL or TIME_LIMIT")
	cmd.Flags().BoolVarP(&f.runAnalysis, "run-analysis", "r", false, "Run the analysis (default is a dry run)")
	cmd.Flags().BoolVarP(&f.forceAll, "force-all", "f", false, "Force rerun of all rules")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Quiet engine output")
	cmd.Flags().BoolVar(&f.benchmark, "benchmark", false, "Profile cluster jobs into the benchmark directory")
	cmd.Flags().BoolVar(&f.dragen, "dragen", false, "Enable the DRAGEN variant caller")
	cmd.Flags().StringVar(&f.disableVariantCaller, "disable-variant-caller", "", "Comma separated variant callers to disable")
	cmd.Flags().StringArrayVar(&f.snakemakeOpts, "snakemake-opt", nil, "Extra engine option (repeatable)")
	cmd.Flags().StringVar(&f.engineImage, "engine-image", "", "Run the engine inside this singularity image")

	return cmd
}

// resolve fills cluster defaults from settings, validates enumerations and
// settles the effective run mode. Nothing is written to disk.
func (f *runAnalysisFlags) resolve() error {
	if f.sampleConfig == "" {
		return model.NewUsageError("--sample-config is required")
	}
	if f.clusterConfig == "" {
		f.clusterConfig = settings.Workflow.ClusterConfig
	}
	if f.profile == "" {
		f.profile = string(settings.Cluster.Profile)
	}
	if f.qos == "" {
		f.qos = string(settings.Cluster.QOS)
	}
	if f.account == "" {
		f.account = settings.Cluster.Account
	}
	if f.mailUser == "" {
		f.mailUser = settings.Cluster.MailUser
	}
	if f.mailType == "" {
		f.mailType = settings.Cluster.MailType
	}
	if err := usageEnum("--run-mode", model.RunMode(f.runMode), model.RunModes); err != nil {
		return err
	}
	if err := usageEnum("--profile", model.ClusterProfile(f.profile), model.ClusterProfiles); err != nil {
		return err
	}
	if err := usageEnum("--qos", model.QOS(f.qos), model.QOSLevels); err != nil {
		return err
	}

	f.mode = model.RunMode(f.runMode)
	if f.mode == model.RunModeCluster && !f.runAnalysis {
		logger.Info("changing run mode to local on dry run")
		f.mode = model.RunModeLocal
	}
	if f.mode == model.RunModeCluster && f.account == "" {
		return model.NewUsageError("an account is required for cluster run mode")
	}
	return nil
}

// runDirs are the log, script and benchmark directories of one dispatch.
type runDirs struct {
	log, script, benchmark string
}

// prepareDirs creates the result and run directories. A real run whose log
// directory already holds files moves to the next numbered directories.
func prepareDirs(doc *model.ConfigDocument, run bool) (runDirs, error) {
	d := runDirs{log: doc.Analysis.Log, script: doc.Analysis.Script, benchmark: doc.Analysis.Benchmark}
	if run {
		used, err := workflow.HasFiles(d.log)
		if err != nil {
			return d, err
		}
		if used {
			for _, p := range []*string{&d.log, &d.script, &d.benchmark} {
				next, err := workflow.NextAvailablePath(*p)
				if err != nil {
					return d, err
				}
				*p = next
			}
		}
	}
	for _, dir := range []string{doc.Analysis.Result, d.log, d.script, d.benchmark} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return d, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return d, nil
}

func runAnalysis(cmd *cobra.Command, f runAnalysisFlags) error {
	if err := f.resolve(); err != nil {
		return err
	}
	runMode := f.mode

	configPath, err := filepath.Abs(f.sampleConfig)
	if err != nil {
		return fmt.Errorf("resolve sample config: %w", err)
	}
	doc, err := analysis.Load(configPath)
	if err != nil {
		return err
	}
	for _, name := range splitCallers(f.disableVariantCaller) {
		if err := analysis.CheckDisabledCaller(doc, name); err != nil {
			return err
		}
	}

	dirs, err := prepareDirs(doc, f.runAnalysis)
	if err != nil {
		return err
	}
	caseID := doc.Analysis.CaseID
	log, closer, err := logging.NewCaseLogger(logging.ParseLevel(settings.LogLevel), settings.LogFormat,
		cmd.ErrOrStderr(), dirs.log, caseID)
	if err != nil {
		return err
	}
	defer closer.Close()

	snakefile := f.snakeFile
	if snakefile == "" {
		snakefile = workflow.Snakefile(settings.Workflow.Dir, doc.Analysis.AnalysisType,
			doc.Analysis.AnalysisWorkflow, settings.Reference.GenomeVersion)
	}
	binds, err := workflow.SingularityBindPaths(doc)
	if err != nil {
		return err
	}

	opts := workflow.SnakemakeOptions{
		Executable:           settings.Workflow.Snakemake,
		CaseID:               caseID,
		WorkingDir:           filepath.Join(doc.Analysis.AnalysisDir, caseID, RunDirName),
		Snakefile:            snakefile,
		ConfigFile:           configPath,
		RunMode:              runMode,
		Profile:              model.ClusterProfile(f.profile),
		ClusterConfig:        f.clusterConfig,
		Python:               settings.Workflow.Python,
		Scheduler:            settings.Workflow.Scheduler,
		Account:              f.account,
		QOS:                  model.QOS(f.qos),
		MailUser:             f.mailUser,
		MailType:             f.mailType,
		LogDir:               dirs.log,
		ScriptDir:            dirs.script,
		ResultDir:            doc.Analysis.Result,
		Run:                  f.runAnalysis,
		ForceAll:             f.forceAll,
		Quiet:                f.quiet,
		UseSingularity:       true,
		BindPaths:            binds,
		DisableVariantCaller: f.disableVariantCaller,
		Dragen:               f.dragen,
		ExtraOptions:         f.snakemakeOpts,
	}
	if f.benchmark {
		opts.SlurmProfiler = dirs.benchmark
	}
	command, err := workflow.SnakemakeCommand(opts)
	if err != nil {
		return err
	}

	ledger, err := openLedger(cmd.Context())
	if err != nil {
		return err
	}
	defer ledger.Close()

	run := &model.Run{
		ID:         uuid.NewString(),
		CaseID:     caseID,
		ConfigPath: configPath,
		Snakefile:  snakefile,
		Command:    command,
		RunMode:    runMode,
		DryRun:     !f.runAnalysis,
		State:      model.RunStatePending,
		LogDir:     dirs.log,
		CreatedAt:  time.Now().UTC(),
	}
	if err := ledger.CreateRun(cmd.Context(), run); err != nil {
		return err
	}
	log = log.With("run", run.ID)
	log.Info("starting workflow", "workflow", doc.Analysis.AnalysisWorkflow, "mode", runMode, "dryRun", run.DryRun)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := dispatch(ctx, cmd.OutOrStdout(), log, ledger, run, f.engineImage, binds, opts.WorkingDir)
	if runErr != nil {
		return runErr
	}

	if f.runAnalysis && runMode == model.RunModeCluster {
		yamlPath := workflow.JobIDsPath(doc.Analysis.Result, opts.Profile)
		if err := workflow.DumpJobIDs(workflow.SacctPath(dirs.log, caseID), yamlPath, caseID); err != nil {
			return err
		}
		log.Info("job ids written", "path", yamlPath)
	}
	return nil
}

// dispatch runs the engine and records the outcome of run in the ledger.
func dispatch(ctx context.Context, out io.Writer, log *slog.Logger, ledger store.Store, run *model.Run, image string, binds []string, workDir string) error {
	if err := run.Transition(model.RunStateRunning, time.Now().UTC()); err != nil {
		return err
	}
	if err := ledger.UpdateRun(ctx, run); err != nil {
		return err
	}

	cfg := execution.Config{Logger: log}
	if image != "" {
		cfg.Runtime = &execution.SingularityRuntime{}
		cfg.Image = image
		cfg.Binds = binds
	}
	result, runErr := execution.NewEngine(cfg).Dispatch(ctx, execution.Invocation{
		Command: run.Command,
		WorkDir: workDir,
		Output:  out,
	})

	next := model.RunStateCompleted
	if runErr != nil {
		next = model.RunStateFailed
	}
	if result != nil {
		code := result.ExitCode
		run.ExitCode = &code
	}
	if err := run.Transition(next, time.Now().UTC()); err != nil {
		return err
	}
	if err := ledger.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		log.Error("workflow failed", "error", runErr)
		return runErr
	}
	log.Info("workflow finished", "state", run.State)
	return nil
}

func splitCallers(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// openLedger opens and migrates the run ledger at settings.DBPath.
func openLedger(ctx context.Context) (*store.SQLiteStore, error) {
	if settings.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(settings.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(settings.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return st, nil
}
