package app

import (
	"fmt"

	"deployctl/internal/config"
	"deployctl/pkg/logging"
)

// Application is the main application structure that bootstraps deployctl
type Application struct {
	config   *Config
	services *Services
}

// NewApplication initializes logging and loads the layered configuration:
// defaults, config files, .env and DEPLOYCTL_* variables, then CLI flags.
// No cluster connection is made here.
func NewApplication(cfg *Config) (*Application, error) {
	// Configure logging based on debug flag
	appLogLevel := logging.LevelInfo
	if cfg.Debug {
		appLogLevel = logging.LevelDebug
	}
	logging.InitWithFormat(appLogLevel, cfg.LogOutput, cfg.LogFormat)

	loaded, err := config.LoadDotEnv(cfg.EnvFile)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load .env file")
		return nil, err
	}
	if loaded {
		logging.Debug("Bootstrap", "Loaded environment variables from .env file")
	}

	var deployCfg config.DeployctlConfig
	if cfg.ConfigPath != "" {
		deployCfg, err = config.LoadConfigFromPath(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load deployctl configuration from path: %s", cfg.ConfigPath)
			return nil, fmt.Errorf("failed to load deployctl configuration from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Debug("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
	} else {
		deployCfg, err = config.LoadConfig()
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load deployctl configuration")
			return nil, fmt.Errorf("failed to load deployctl configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	deployCfg = cfg.applyFlagOverrides(config.ApplyEnvOverrides(deployCfg))
	cfg.DeployctlConfig = &deployCfg

	return &Application{
		config:   cfg,
		services: InitializeServices(cfg),
	}, nil
}

// DeployctlConfig returns the effective configuration.
func (a *Application) DeployctlConfig() config.DeployctlConfig {
	return *a.config.DeployctlConfig
}

// Services returns the collaborators created at bootstrap.
func (a *Application) Services() *Services {
	return a.services
}
