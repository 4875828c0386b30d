package cli

import (
	"fmt"
	"os"

	"bbinflator/internal/app"
	"bbinflator/internal/config"
	"bbinflator/internal/inflate"
	"bbinflator/internal/pkg/output"
	"bbinflator/internal/pkg/values"

	"github.com/spf13/cobra"
)

// BackendFactory builds the backends a command runs against.
type BackendFactory func(cfg *config.Config) app.Backends

type inflator struct {
	printer     *output.Printer
	newBackends BackendFactory
	cfg         *config.Config
}

// NewInflatorCommand returns the bb-inflator command tree.
func NewInflatorCommand(printer *output.Printer, newBackends BackendFactory) *cobra.Command {
	in := &inflator{printer: printer, newBackends: newBackends}

	rootCmd := &cobra.Command{
		Use:   "bb-inflator",
		Short: "Inflate BigBang kustomizations into plain manifests",
		Long: `bb-inflator renders BigBang deployments without a cluster.

Example usage:
  bb-inflator extract-values -i configmap.yaml
  bb-inflator inflate --repo-url https://repo1.dso.mil/big-bang/bigbang.git --ref 2.52.0 --subdir base
  bb-inflator inflate-from-kustomization envs/dev
  bb-inflator helm-template-with-values envs/dev`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Setup(cmd.Flags())
			if err != nil {
				return err
			}
			in.cfg = cfg
			return nil
		},
	}
	rootCmd.SetOut(printer.Out())
	AddCommonFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		in.extractValuesCmd(),
		in.inflateCmd(),
		in.inflateFromKustomizationCmd(),
		in.extractValuesFromKustomizationCmd(),
		in.printSecretValuesCmd(),
		in.helmTemplateWithValuesCmd(),
	)
	return rootCmd
}

func (in *inflator) extractValuesCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "extract-values",
		Short: "Print the values.yaml payload of a ConfigMap manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", input, err)
				}
				defer f.Close()
				r = f
			}
			text, err := inflate.ExtractValues(r)
			if err != nil {
				return err
			}
			return in.printer.YAML(text)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "ConfigMap manifest to read (default stdin)")
	return cmd
}

func (in *inflator) inflateCmd() *cobra.Command {
	var repoURL, ref, subdir string
	cmd := &cobra.Command{
		Use:   "inflate",
		Short: "Clone a repository at a ref and run kustomize build on a subdirectory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.printer.Status("Inflating %s at %s", repoURL, ref)
			out, err := inflate.Inflate(cmd.Context(), in.newBackends(in.cfg), repoURL, ref, subdir)
			if err != nil {
				return err
			}
			return in.printer.Text(string(out))
		},
	}
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Git repository URL (required)")
	cmd.Flags().StringVar(&ref, "ref", "", "Tag, branch or commit to check out (required)")
	cmd.Flags().StringVar(&subdir, "subdir", "", "Kustomization directory inside the repository")
	_ = cmd.MarkFlagRequired("repo-url")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func (in *inflator) inflateFromKustomizationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inflate-from-kustomization <kustomize-directory>",
		Short: "Inflate the remote base a kustomization points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := inflate.InflateFromKustomization(cmd.Context(), in.newBackends(in.cfg), args[0])
			if err != nil {
				return err
			}
			return in.printer.Text(string(out))
		},
	}
}

func (in *inflator) extractValuesFromKustomizationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-values-from-kustomization <kustomize-directory>",
		Short: "Print the values the platform HelmRelease receives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := inflate.MergedValuesFromKustomization(cmd.Context(), in.cfg, in.newBackends(in.cfg), args[0])
			if err != nil {
				return err
			}
			return in.printYAML(merged)
		},
	}
}

func (in *inflator) printSecretValuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "print-secret-values <kustomize-directory>",
		Short: "Decrypt and print the values.yaml of every secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads, err := inflate.SecretValues(cmd.Context(), in.cfg, in.newBackends(in.cfg), args[0])
			if err != nil {
				return err
			}
			for _, p := range payloads {
				in.printer.Heading("Secret: %s", p.Name)
				if err := in.printYAML([]byte(p.Text)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (in *inflator) helmTemplateWithValuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "helm-template-with-values <kustomize-directory>",
		Short: "Render the platform chart with the merged values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := inflate.TemplateWithValues(cmd.Context(), in.cfg, in.newBackends(in.cfg), args[0])
			if err != nil {
				return err
			}
			return in.printer.Text(string(out))
		},
	}
}

func (in *inflator) printYAML(doc []byte) error {
	text, err := values.Pretty(string(doc))
	if err != nil {
		return err
	}
	return in.printer.YAML(text)
}
