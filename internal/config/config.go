// Package config loads bb-inflator settings from defaults, an optional
// .bb-inflator.yaml, BB_INFLATOR_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BackendCLI    = "cli"
	BackendGoGit  = "go-git"
	BackendSDK    = "sdk"
	BackendKrusty = "krusty"
	BackendNative = "native"
	BackendYQ     = "yq"
)

type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Platform PlatformConfig `mapstructure:"platform"`
	Backends BackendsConfig `mapstructure:"backends"`
	Tools    ToolsConfig    `mapstructure:"tools"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
}

type PathsConfig struct {
	Generated string `mapstructure:"generated"`
	Repos     string `mapstructure:"repos"`
}

// PlatformConfig describes the platform repository and the files read from
// each kustomization directory.
type PlatformConfig struct {
	RepoURL       string `mapstructure:"repo_url"`
	ChartPath     string `mapstructure:"chart_path"`
	ReleaseName   string `mapstructure:"release_name"`
	SecretsFile   string `mapstructure:"secrets_file"`
	ConfigMapFile string `mapstructure:"configmap_file"`
}

type BackendsConfig struct {
	Git       string `mapstructure:"git"`
	Helm      string `mapstructure:"helm"`
	Kustomize string `mapstructure:"kustomize"`
	YAML      string `mapstructure:"yaml"`
}

// ToolsConfig holds the binaries run by the cli backends.
type ToolsConfig struct {
	Kustomize string `mapstructure:"kustomize"`
	Sops      string `mapstructure:"sops"`
	Helm      string `mapstructure:"helm"`
	Git       string `mapstructure:"git"`
	YQ        string `mapstructure:"yq"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type OutputConfig struct {
	Diff bool `mapstructure:"diff"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"generated-dir":     "paths.generated",
	"repos-dir":         "paths.repos",
	"platform-repo":     "platform.repo_url",
	"git-backend":       "backends.git",
	"helm-backend":      "backends.helm",
	"kustomize-backend": "backends.kustomize",
	"yaml-backend":      "backends.yaml",
	"log-level":         "logging.level",
	"diff":              "output.diff",
}

// Load reads configuration. cfgFile, when set, must exist; otherwise
// .bb-inflator.yaml is looked up in the working directory and in
// $HOME/.config/bb-inflator. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".bb-inflator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/bb-inflator")
	}

	v.SetEnvPrefix("BB_INFLATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag --%s: %w", name, err)
				}
			}
		}
		if debug, err := flags.GetBool("debug"); err == nil && debug {
			v.Set("logging.level", "debug")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.generated", "generated")
	v.SetDefault("paths.repos", "repos")

	v.SetDefault("platform.repo_url", "https://repo1.dso.mil/big-bang/bigbang.git")
	v.SetDefault("platform.chart_path", "chart")
	v.SetDefault("platform.release_name", "bigbang")
	v.SetDefault("platform.secrets_file", "secrets.enc.yaml")
	v.SetDefault("platform.configmap_file", "configmap.yaml")

	v.SetDefault("backends.git", BackendCLI)
	v.SetDefault("backends.helm", BackendCLI)
	v.SetDefault("backends.kustomize", BackendCLI)
	v.SetDefault("backends.yaml", BackendNative)

	v.SetDefault("tools.kustomize", "kustomize")
	v.SetDefault("tools.sops", "sops")
	v.SetDefault("tools.helm", "helm")
	v.SetDefault("tools.git", "git")
	v.SetDefault("tools.yq", "yq")

	v.SetDefault("logging.level", "info")
	v.SetDefault("output.diff", false)
}

func validate(cfg *Config) error {
	choices := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"backends.git", cfg.Backends.Git, []string{BackendCLI, BackendGoGit}},
		{"backends.helm", cfg.Backends.Helm, []string{BackendCLI, BackendSDK}},
		{"backends.kustomize", cfg.Backends.Kustomize, []string{BackendCLI, BackendKrusty}},
		{"backends.yaml", cfg.Backends.YAML, []string{BackendNative, BackendYQ}},
	}
	for _, c := range choices {
		if !contains(c.allowed, c.value) {
			return fmt.Errorf("invalid %s %q: must be one of %s", c.key, c.value, strings.Join(c.allowed, ", "))
		}
	}
	if cfg.Paths.Generated == "" || cfg.Paths.Repos == "" {
		return errors.New("paths.generated and paths.repos must not be empty")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
