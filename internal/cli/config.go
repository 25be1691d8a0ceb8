package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigPathEnv overrides the location of the CLI config file.
const ConfigPathEnv = "FLAGPAGE_CONFIG"

// Config represents the CLI configuration
type Config struct {
	DefaultEnv   string               `yaml:"default_env"`
	Environments map[string]EnvConfig `yaml:"environments"`
}

// EnvConfig is how to reach the flag service for one environment.
type EnvConfig struct {
	BaseURL string `yaml:"base_url"`
	SDKKey  string `yaml:"sdk_key"`
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".flagpage", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{
				DefaultEnv:   "prod",
				Environments: make(map[string]EnvConfig),
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetEnvConfig resolves the service URL and SDK key for an environment.
// Priority: command flags > environment variables > config file.
// Returns the environment config and the effective environment name.
func GetEnvConfig(envName, baseURLFlag, sdkKeyFlag string) (*EnvConfig, string, error) {
	envBaseURL := os.Getenv("FLAGSHIP_BASE_URL")
	envSDKKey := os.Getenv("FLAGSHIP_SDK_KEY")

	baseURL := firstNonEmpty(baseURLFlag, envBaseURL)
	sdkKey := firstNonEmpty(sdkKeyFlag, envSDKKey)
	if baseURL != "" && sdkKey != "" {
		if envName == "" {
			envName = firstNonEmpty(os.Getenv("FLAGSHIP_ENV"), "prod")
		}
		return &EnvConfig{BaseURL: baseURL, SDKKey: sdkKey}, envName, nil
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, "", err
	}
	if envName == "" {
		envName = cfg.DefaultEnv
	}
	envCfg, ok := cfg.Environments[envName]
	if !ok {
		return nil, "", fmt.Errorf("environment '%s' not found in config", envName)
	}
	if baseURL != "" {
		envCfg.BaseURL = baseURL
	}
	if sdkKey != "" {
		envCfg.SDKKey = sdkKey
	}
	if envCfg.BaseURL == "" || envCfg.SDKKey == "" {
		return nil, "", fmt.Errorf("base_url and sdk_key must be configured for environment '%s'", envName)
	}
	return &envCfg, envName, nil
}

// InitConfig creates a config file with placeholder environments.
func InitConfig() error {
	cfg := &Config{
		DefaultEnv: "prod",
		Environments: map[string]EnvConfig{
			"dev":  {BaseURL: "http://localhost:8080", SDKKey: "dev-sdk-key"},
			"prod": {BaseURL: "https://flagship.example.com", SDKKey: "prod-sdk-key"},
		},
	}
	return SaveConfig(cfg)
}

// MaskKey hides all but the first four characters of a key.
func MaskKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "***"
	}
	return "***"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
