package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bacman/logger"
	"bacman/models"

	"github.com/spf13/viper"
)

type DefaultPaths struct {
	ConfigDir    string
	LogPathApp   string
	LogPathProxy string
	CACertPath   string
	CAKeyPath    string
	DBPath       string
	LogLevel     string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port    string `mapstructure:"port"`
		LogPath string `mapstructure:"log_path"`
	} `mapstructure:"server"`
	Proxy struct {
		Port       string `mapstructure:"port"`
		CACertPath string `mapstructure:"ca_cert_path"`
		CAKeyPath  string `mapstructure:"ca_key_path"`
		LogPath    string `mapstructure:"log_path"`
	} `mapstructure:"proxy"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Replay struct {
		Timeout           time.Duration `mapstructure:"timeout"`
		SkipTLSVerify     bool          `mapstructure:"skip_tls_verify"`
		AllowLoopback     bool          `mapstructure:"allow_loopback"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second"`
		Burst             int           `mapstructure:"burst"`
	} `mapstructure:"replay"`
	Probe struct {
		ActiveOnStart   bool   `mapstructure:"active_on_start"`
		OverrideHeaders string `mapstructure:"override_headers"`
		WaitForResponse bool   `mapstructure:"wait_for_response"`
		LiveLogSize     int    `mapstructure:"live_log_size"`
	} `mapstructure:"probe"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// ExpandTilde resolves a leading ~ against the user's home directory.
func ExpandTilde(path string) (string, error) {
	return expandTilde(path)
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	userConfigDir, err := expandTilde(userConfigDirBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in user config dir '%s': %v. Using potentially literal path.\n", userConfigDirBase, err)
		userConfigDir = userConfigDirBase
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "bacman")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathProxy = filepath.Join(logDir, "proxy.log")
	paths.CACertPath = filepath.Join(paths.ConfigDir, "bacman-ca.crt")
	paths.CAKeyPath = filepath.Join(paths.ConfigDir, "bacman-ca.key")
	paths.DBPath = filepath.Join(paths.ConfigDir, "bacman.db")
	paths.LogLevel = "INFO"
	return paths
}

// newViper returns a viper instance carrying every default and the BACMAN_ env binding.
func newViper(defaults DefaultPaths) *viper.Viper {
	v := viper.New()
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8778")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("proxy.port", "8777")
	v.SetDefault("proxy.ca_cert_path", defaults.CACertPath)
	v.SetDefault("proxy.ca_key_path", defaults.CAKeyPath)
	v.SetDefault("proxy.log_path", defaults.LogPathProxy)
	v.SetDefault("logging.level", defaults.LogLevel)
	v.SetDefault("replay.timeout", 30*time.Second)
	v.SetDefault("replay.skip_tls_verify", false)
	v.SetDefault("replay.allow_loopback", false)
	v.SetDefault("replay.requests_per_second", 0)
	v.SetDefault("replay.burst", 1)
	v.SetDefault("probe.active_on_start", false)
	v.SetDefault("probe.override_headers", models.DefaultOverrideHeaderText)
	v.SetDefault("probe.wait_for_response", true)
	v.SetDefault("probe.live_log_size", 1000)

	v.SetEnvPrefix("BACMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (if any), environment and defaults into a Configuration.
// It has no side effects on AppConfig or the loggers.
func Load(cfgFile string) (Configuration, string, error) {
	defaults := GetDefaultConfigPaths()
	v := newViper(defaults)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in config file path '%s': %v. Trying original path.\n", cfgFile, err)
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	configUsedMsg := "Using default/environment configuration."
	readErr := v.ReadInConfig()
	if readErr == nil {
		configUsedMsg = fmt.Sprintf("Using config file: %s", v.ConfigFileUsed())
	} else if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
		return Configuration{}, "", fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), readErr)
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return Configuration{}, "", fmt.Errorf("unable to decode config into struct: %w", err)
	}

	for _, p := range []*string{&cfg.Database.Path, &cfg.Proxy.CACertPath, &cfg.Proxy.CAKeyPath, &cfg.Server.LogPath, &cfg.Proxy.LogPath} {
		expanded, err := expandTilde(*p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in '%s': %v.\n", *p, err)
			continue
		}
		*p = expanded
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	return cfg, configUsedMsg, nil
}

func Init(cfgFile string, flagAppLogPath, flagProxyLogPath, flagLogLevel string) error {
	cfg, configUsedMsg, err := Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		return err
	}
	AppConfig = cfg

	if flagAppLogPath != "" {
		expandedPath, err := expandTilde(flagAppLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in --app-log path '%s': %v. Using original path.\n", flagAppLogPath, err)
			expandedPath = flagAppLogPath
		}
		AppConfig.Server.LogPath = expandedPath
	}
	if flagProxyLogPath != "" {
		expandedPath, err := expandTilde(flagProxyLogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in --proxy-log path '%s': %v. Using original path.\n", flagProxyLogPath, err)
			expandedPath = flagProxyLogPath
		}
		AppConfig.Proxy.LogPath = expandedPath
	}
	if flagLogLevel != "" {
		AppConfig.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	defaults := GetDefaultConfigPaths()
	for _, dir := range []string{filepath.Dir(AppConfig.Server.LogPath), filepath.Dir(AppConfig.Proxy.LogPath), defaults.ConfigDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not create directory %s: %v\n", dir, err)
		}
	}

	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Proxy.LogPath, AppConfig.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize global loggers with final config: %v\n", err)
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	logger.Info("%s", configUsedMsg)
	if flagAppLogPath != "" || flagProxyLogPath != "" || flagLogLevel != "" {
		logger.Info("Log path/level flags may have overridden config file/defaults.")
	}
	if AppConfig.Replay.SkipTLSVerify {
		logger.Warn("Replay: TLS certificate verification for outgoing requests is DISABLED.")
	}
	if AppConfig.Replay.AllowLoopback {
		logger.Warn("Replay: Requests to loopback addresses are ALLOWED.")
	}

	logger.Debug("Final AppConfig Initialized: %+v", AppConfig)
	return nil
}
