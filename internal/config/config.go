// Package config loads user settings: defaults overlaid by a TOML file.
// Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/me/balsamic/pkg/model"
)

// EnvSettings names the environment variable pointing at the settings file.
const EnvSettings = "BALSAMIC_SETTINGS"

// Settings holds configuration for balsamic invocations.
type Settings struct {
	LogLevel  string `toml:"log_level"`  // debug, info, warn, error
	LogFormat string `toml:"log_format"` // text, json
	DBPath    string `toml:"db_path"`    // run ledger (default ~/.balsamic/balsamic.db, ":memory:" for testing)

	Reference ReferenceSettings `toml:"reference"`
	Workflow  WorkflowSettings  `toml:"workflow"`
	Cluster   ClusterSettings   `toml:"cluster"`
	QC        QCSettings        `toml:"qc"`
}

// ReferenceSettings locates the reference cache.
type ReferenceSettings struct {
	CacheDir      string              `toml:"cache_dir"`
	CacheVersion  string              `toml:"cache_version"`
	GenomeVersion model.GenomeVersion `toml:"genome_version"`
}

// WorkflowSettings locates workflow files, containers and engine binaries.
type WorkflowSettings struct {
	Dir           string `toml:"dir"`            // holds the .smk files
	EnvDir        string `toml:"env_dir"`        // holds <env>/<env>.yaml manifests
	ContainerDir  string `toml:"container_dir"`  // singularity images
	Snakemake     string `toml:"snakemake"`      // engine executable
	Python        string `toml:"python"`         // interpreter of the scheduler script
	Scheduler     string `toml:"scheduler"`      // per-job submission script
	ClusterConfig string `toml:"cluster_config"` // engine cluster config
}

// ClusterSettings are the scheduler defaults of run analysis.
type ClusterSettings struct {
	Account  string               `toml:"account"`
	Profile  model.ClusterProfile `toml:"profile"`
	QOS      model.QOS            `toml:"qos"`
	MailUser string               `toml:"mail_user"`
	MailType string               `toml:"mail_type"`
}

// QCSettings locates QC inputs.
type QCSettings struct {
	RequestedMetrics string `toml:"requested_metrics"`
}

// DefaultSettings returns sensible defaults.
func DefaultSettings() Settings {
	home := balsamicHome()
	return Settings{
		LogLevel:  "info",
		LogFormat: "text",
		DBPath:    filepath.Join(home, "balsamic.db"),
		Reference: ReferenceSettings{
			CacheDir:      filepath.Join(home, "cache"),
			CacheVersion:  "develop",
			GenomeVersion: model.GenomeHG19,
		},
		Workflow: WorkflowSettings{
			Dir:          filepath.Join(home, "workflows"),
			EnvDir:       filepath.Join(home, "containers"),
			ContainerDir: filepath.Join(home, "containers"),
			Snakemake:    "snakemake",
			Python:       "python3",
			Scheduler:    filepath.Join(home, "scheduler.py"),
		},
		Cluster: ClusterSettings{
			Profile: model.ProfileSlurm,
			QOS:     model.QOSLow,
		},
	}
}

func balsamicHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".balsamic"
	}
	return filepath.Join(home, ".balsamic")
}

// DefaultPath returns $BALSAMIC_SETTINGS, or ~/.balsamic/settings.toml.
func DefaultPath() string {
	if p := os.Getenv(EnvSettings); p != "" {
		return p
	}
	return filepath.Join(balsamicHome(), "settings.toml")
}

// Load overlays the TOML file at path onto DefaultSettings. A missing file
// yields the defaults. Unknown keys are rejected.
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	md, err := toml.DecodeFile(path, &s)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return s, model.NewValidationError("settings "+path, model.FieldError{Message: err.Error()})
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return s, model.NewValidationError("settings "+path,
			model.FieldError{Message: "unknown keys: " + strings.Join(keys, ", ")})
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// Validate checks the enumerated settings.
func (s Settings) Validate() error {
	if err := model.ValidateEnum("reference.genome_version", s.Reference.GenomeVersion, model.GenomeVersions); err != nil {
		return err
	}
	if err := model.ValidateEnum("cluster.profile", s.Cluster.Profile, model.ClusterProfiles); err != nil {
		return err
	}
	return model.ValidateEnum("cluster.qos", s.Cluster.QOS, model.QOSLevels)
}
