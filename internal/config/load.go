package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var defineFlagsOnce sync.Once

func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("config", "", "path to config file")
		pflag.String("dsn", "", "database DSN (user:pass@tcp(host:port)/db)")
		pflag.Bool("prompt-dsn", false, "read the database DSN interactively without echo")
		pflag.String("log-level", "", "log level (debug, info, warn, error)")
		pflag.String("log-format", "", "log format (json, text)")
	})
}

// Load loads configuration with the following precedence:
// 1. Explicit overrides (interactive DSN prompt)
// 2. Command line flags
// 3. Environment variables (RELGRAPH_*)
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("relgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.relgraph")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Env vars: RELGRAPH_DATABASE_DSN, RELGRAPH_LOGGING_LEVEL, ...
	v.SetEnvPrefix("RELGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v)

	if v.GetBool("database.prompt_dsn") && v.GetString("database.dsn") == "" {
		dsn, err := promptDSN()
		if err != nil {
			return nil, err
		}
		v.Set("database.dsn", dsn)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_open", 4)
	v.SetDefault("database.max_idle", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// bindChangedFlagsToViper maps only flags the user actually set, so unset
// flags never shadow env or file values.
func bindChangedFlagsToViper(v *viper.Viper) {
	keys := map[string]string{
		"dsn":        "database.dsn",
		"prompt-dsn": "database.prompt_dsn",
		"log-level":  "logging.level",
		"log-format": "logging.format",
	}
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if key, ok := keys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})
}

func promptDSN() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("--prompt-dsn requires an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "Database DSN: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read DSN: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *Config) validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	names := make(map[string]struct{}, len(c.Entities))
	for _, entity := range c.Entities {
		if entity.Name == "" {
			return fmt.Errorf("entity declared without a name")
		}
		if _, dup := names[entity.Name]; dup {
			return fmt.Errorf("entity %s declared twice", entity.Name)
		}
		names[entity.Name] = struct{}{}
	}
	return nil
}
