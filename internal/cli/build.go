package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"bbinflator/internal/app"
	"bbinflator/internal/pkg/errs"

	"github.com/spf13/pflag"
)

// Build runs bigbang-build: it renders the platform artifacts for the
// kustomization directory given as the only positional argument.
func Build(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("bigbang-build", pflag.ContinueOnError)
	versionFlag := fs.BoolP("version", "v", false, "Print version information and exit")
	AddCommonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bigbang-build [flags] <kustomize-directory>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errs.Preconditionf("%v", err)
	}

	if *versionFlag {
		fmt.Fprintf(stdout, "bigbang-build version: %s\n", Version)
		return nil
	}
	if fs.NArg() != 1 {
		return errs.Preconditionf("usage: bigbang-build [flags] <kustomize-directory>")
	}

	cfg, err := Setup(fs)
	if err != nil {
		return err
	}
	return app.BuildPlatform(ctx, cfg, app.NewBackends(cfg), fs.Arg(0))
}
