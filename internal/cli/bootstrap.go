// Package cli wires flags, configuration and logging for the binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"bbinflator/internal/config"
	"bbinflator/internal/pkg/errs"
	"bbinflator/internal/pkg/logger"

	"github.com/spf13/pflag"
)

// Version is set at build time with -ldflags "-X bbinflator/internal/cli.Version=...".
var Version = "dev"

// AddCommonFlags registers the flags every binary shares. Their names match
// the keys config.Load binds.
func AddCommonFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (default is .bb-inflator.yaml)")
	fs.Bool("debug", false, "Enable debug logging")
	fs.String("log-level", "", "Log level: debug, info, warn or error (default \"info\")")
	fs.String("platform-repo", "", "Platform repository used when the base entry has no URL")
	fs.String("generated-dir", "", "Directory for generated artifacts (default \"generated\")")
	fs.String("repos-dir", "", "Repository cache directory (default \"repos\")")
	fs.String("git-backend", "", "Git backend: cli or go-git")
	fs.String("helm-backend", "", "Helm backend: cli or sdk")
	fs.String("kustomize-backend", "", "Kustomize backend: cli or krusty")
	fs.String("yaml-backend", "", "YAML backend: native or yq")
	fs.Bool("diff", false, "Log a diff of every overwritten artifact")
}

// Setup loads configuration with flag overrides and initializes logging.
func Setup(fs *pflag.FlagSet) (*config.Config, error) {
	cfgFile, _ := fs.GetString("config")
	cfg, err := config.Load(cfgFile, fs)
	if err != nil {
		return nil, errs.Preconditionf("%v", err)
	}
	if err := logger.InitLogger(cfg.Logging.Level); err != nil {
		return nil, errs.Preconditionf("%v", err)
	}
	logger.Log.Debugf("Configuration loaded: %+v", *cfg)
	return cfg, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM, which kills any running
// child process.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Exit logs err and terminates with its exit code.
func Exit(err error) {
	if err == nil {
		return
	}
	logger.Log.Error(err)
	os.Exit(errs.ExitCode(err))
}
