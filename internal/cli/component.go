package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"bbinflator/internal/app"
	"bbinflator/internal/pkg/errs"

	"github.com/spf13/pflag"
)

// Component runs bigbang-component: it lists the components of the platform
// manifest or renders one of them.
func Component(ctx context.Context, args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("bigbang-component", pflag.ContinueOnError)
	versionFlag := fs.BoolP("version", "v", false, "Print version information and exit")
	dir := fs.StringP("kustomize-directory", "k", "", "Kustomization directory the platform was built from (required)")
	name := fs.StringP("name", "n", "", "Component to render (required unless --list-names)")
	listNames := fs.BoolP("list-names", "l", false, "Print the component names and exit")
	filters := fs.StringSlice("filter", nil, "Filter listed components with field==value or field!=value. Fields: name, url, ref, tag, branch, chart, namespace, a GitRepository path such as spec.ref.tag, or release.<path> into the HelmRelease (can be repeated)")
	AddCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errs.Preconditionf("%v", err)
	}

	if *versionFlag {
		fmt.Fprintf(stdout, "bigbang-component version: %s\n", Version)
		return nil
	}
	if *dir == "" {
		return errs.Preconditionf("--kustomize-directory is a required flag")
	}
	if !*listNames && *name == "" {
		return errs.Preconditionf("--name is required unless --list-names is set")
	}

	cfg, err := Setup(fs)
	if err != nil {
		return err
	}
	if *listNames {
		return app.ListComponents(cfg, *dir, *filters, stdout)
	}
	return app.RenderComponent(ctx, cfg, app.NewBackends(cfg), *dir, *name)
}
