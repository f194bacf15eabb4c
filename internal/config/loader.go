package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/deployctl"
	projectConfigDir = ".deployctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the deployctl configuration by layering default, user, and project settings.
func LoadConfig() (DeployctlConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return DeployctlConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return DeployctlConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	return config, config.Validate()
}

// LoadConfigFromPath layers a single explicit file over the defaults,
// skipping the user and project layers.
func LoadConfigFromPath(path string) (DeployctlConfig, error) {
	fileConfig, err := loadConfigFromFile(path)
	if err != nil {
		return DeployctlConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	config := mergeConfigs(GetDefaultConfig(), fileConfig)
	return config, config.Validate()
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a DeployctlConfig from a YAML file.
func loadConfigFromFile(filePath string) (DeployctlConfig, error) {
	var config DeployctlConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return DeployctlConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return DeployctlConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Scalars override
// when set; named lists are merged by name, keeping the base order and
// appending new entries.
func mergeConfigs(base, overlay DeployctlConfig) DeployctlConfig {
	merged := base

	if overlay.Registries.Frontend != "" {
		merged.Registries.Frontend = overlay.Registries.Frontend
	}
	if overlay.Registries.Backend != "" {
		merged.Registries.Backend = overlay.Registries.Backend
	}
	if overlay.Manifests.Root != "" {
		merged.Manifests.Root = overlay.Manifests.Root
	}
	if overlay.Kube.Kubeconfig != "" {
		merged.Kube.Kubeconfig = overlay.Kube.Kubeconfig
	}
	if overlay.Kube.Context != "" {
		merged.Kube.Context = overlay.Kube.Context
	}
	if overlay.Kube.FieldManager != "" {
		merged.Kube.FieldManager = overlay.Kube.FieldManager
	}

	if overlay.Timeouts.ServiceAvailable > 0 {
		merged.Timeouts.ServiceAvailable = overlay.Timeouts.ServiceAvailable
	}
	if overlay.Timeouts.AllDeployments > 0 {
		merged.Timeouts.AllDeployments = overlay.Timeouts.AllDeployments
	}
	if overlay.Timeouts.HealthCheck > 0 {
		merged.Timeouts.HealthCheck = overlay.Timeouts.HealthCheck
	}
	if overlay.Timeouts.PollInterval > 0 {
		merged.Timeouts.PollInterval = overlay.Timeouts.PollInterval
	}

	merged.Services = mergeByName(base.Services, overlay.Services, func(s ServiceDefinition) string { return s.Name })
	merged.Supporting = mergeByName(base.Supporting, overlay.Supporting, func(r ResourceDefinition) string { return r.Name })
	merged.Environments = mergeByName(base.Environments, overlay.Environments, func(e EnvironmentDefinition) string { return e.Name })

	return merged
}

func mergeByName[T any](base, overlay []T, name func(T) string) []T {
	out := make([]T, len(base))
	copy(out, base)

	index := make(map[string]int, len(out))
	for i, item := range out {
		index[name(item)] = i
	}
	for _, item := range overlay {
		if i, ok := index[name(item)]; ok {
			out[i] = item // Replace if name exists
			continue
		}
		index[name(item)] = len(out)
		out = append(out, item)
	}
	return out
}

// Validate reports configuration errors that would otherwise only surface
// halfway through a run.
func (c DeployctlConfig) Validate() error {
	var errs []error

	if c.Registries.Frontend == "" || c.Registries.Backend == "" {
		errs = append(errs, errors.New("both frontend and backend registries must be set"))
	}
	if c.Manifests.Root == "" {
		errs = append(errs, errors.New("manifests.root must be set"))
	}
	if len(c.Services) == 0 {
		errs = append(errs, errors.New("at least one service must be defined"))
	}
	for _, svc := range c.Services {
		if svc.Name == "" {
			errs = append(errs, errors.New("service without a name"))
		}
		if svc.Registry != "" && svc.Registry != RegistryFrontend && svc.Registry != RegistryBackend {
			errs = append(errs, fmt.Errorf("service %s: unknown registry %q", svc.Name, svc.Registry))
		}
	}
	for _, res := range c.Supporting {
		if res.Name == "" || res.Template == "" {
			errs = append(errs, fmt.Errorf("supporting resource %q needs a name and a template", res.Name))
		}
	}
	if len(c.Environments) == 0 {
		errs = append(errs, errors.New("at least one environment must be defined"))
	}
	for _, env := range c.Environments {
		if env.Name == "" {
			errs = append(errs, errors.New("environment without a name"))
		}
		for _, step := range env.PostSteps {
			if step.Template == "" {
				errs = append(errs, fmt.Errorf("environment %s: post step %q has no template", env.Name, step.Name))
			}
		}
	}
	if c.Timeouts.ServiceAvailable <= 0 || c.Timeouts.AllDeployments <= 0 || c.Timeouts.PollInterval <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}

	return errors.Join(errs...)
}

// Environment looks up a row of the environment table.
func (c DeployctlConfig) Environment(name string) (EnvironmentDefinition, bool) {
	for _, env := range c.Environments {
		if env.Name == name {
			return env, true
		}
	}
	return EnvironmentDefinition{}, false
}

// EnvironmentNames lists the configured environments in table order.
func (c DeployctlConfig) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for _, env := range c.Environments {
		names = append(names, env.Name)
	}
	return names
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
