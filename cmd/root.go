package cmd

import (
	"fmt"
	"os"

	"deployctl/internal/app"
	"deployctl/pkg/logging"

	"github.com/spf13/cobra"
)

// Persistent flags shared by every command that loads configuration.
var (
	rootDebug        bool
	rootLogFormat    string
	rootConfigPath   string
	rootEnvFile      string
	rootKubeconfig   string
	rootKubeContext  string
	rootManifestsDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deployctl",
	Short: "Deploy the e-commerce application stack to Kubernetes",
	Long: `deployctl deploys the four application services and their supporting
resources (databases, message broker, configuration and secrets) to a
Kubernetes namespace, waits for every deployment to become available,
checks the external endpoints and prints a report of the run.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed deployments)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "deployctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// newApplication bootstraps the application from the persistent flags.
func newApplication() (*app.Application, error) {
	format := logging.Format(rootLogFormat)
	if format != logging.FormatText && format != logging.FormatJSON {
		return nil, fmt.Errorf("unsupported log format %q (use text or json)", rootLogFormat)
	}

	cfg := app.NewConfig(rootDebug)
	cfg.LogFormat = format
	cfg.ConfigPath = rootConfigPath
	cfg.EnvFile = rootEnvFile
	cfg.Kubeconfig = rootKubeconfig
	cfg.KubeContext = rootKubeContext
	cfg.ManifestsDir = rootManifestsDir

	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

func init() {
	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	flags.StringVar(&rootLogFormat, "log-format", string(logging.FormatText), "Log format: text or json")
	flags.StringVar(&rootConfigPath, "config", "", "Configuration file (default: layered ~/.config/deployctl/config.yaml and .deployctl/config.yaml)")
	flags.StringVar(&rootEnvFile, "env-file", ".env", "File with DEPLOYCTL_* variables to load before reading configuration")
	flags.StringVar(&rootKubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	flags.StringVar(&rootKubeContext, "context", "", "Kubeconfig context to use")
	flags.StringVar(&rootManifestsDir, "manifests", "", "Directory holding the manifest templates (default \"k8s\")")
}
