// Package config binds command-line flags and an optional YAML file
// into the Config a sandbox host needs to boot: the guest argv/envp
// seed, the preopened directory mappings, and the logging
// format/severity. Environment variables are not read.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// PreopenConfig names one guest-visible root the sandbox grants the
// guest at startup, and the host directory it maps to.
type PreopenConfig struct {
	GuestPath string `yaml:"guest-path" mapstructure:"guest-path"`
	HostPath  string `yaml:"host-path" mapstructure:"host-path"`
	ReadOnly  bool   `yaml:"read-only" mapstructure:"read-only"`
}

// LoggingConfig selects the handler format and minimum severity for
// internal/logger.
type LoggingConfig struct {
	Format   string `yaml:"format" mapstructure:"format"`
	Severity string `yaml:"severity" mapstructure:"severity"`
}

// Config is the root configuration object, unmarshaled from bound
// flags and an optional YAML file.
type Config struct {
	Args     []string        `yaml:"args" mapstructure:"args"`
	Environ  []string        `yaml:"environ" mapstructure:"environ"`
	Preopens []PreopenConfig `yaml:"preopens" mapstructure:"preopens"`
	Logging  LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// BindFlags registers the flags this config understands on flagSet
// and binds each one through viper: flagSet.*P followed by
// viper.BindPFlag per field.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.StringArrayP("arg", "", nil, "Argument to pass to the guest program; may be repeated.")
	if err := viper.BindPFlag("args", flagSet.Lookup("arg")); err != nil {
		return err
	}

	flagSet.StringArrayP("env", "", nil, "Environment variable (NAME=VALUE) to expose to the guest; may be repeated.")
	if err := viper.BindPFlag("environ", flagSet.Lookup("env")); err != nil {
		return err
	}

	flagSet.StringArrayP("preopen", "", nil, "Preopen mapping guest-path=host-path[:ro]; may be repeated.")
	if err := viper.BindPFlag("preopen-flags", flagSet.Lookup("preopen")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log handler format: text or json.")
	if err := viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "INFO", "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err := viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	return nil
}

// Load unmarshals viper's bound state into a Config, then parses the
// --preopen flag values (which have no direct struct field, since
// each one packs three sub-values into one flag string) into
// Preopens.
func Load() (Config, error) {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	for _, raw := range viper.GetStringSlice("preopen-flags") {
		p, err := parsePreopenFlag(raw)
		if err != nil {
			return Config{}, err
		}
		c.Preopens = append(c.Preopens, p)
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Severity == "" {
		c.Logging.Severity = "INFO"
	}
	return c, nil
}

// parsePreopenFlag parses "guest-path=host-path" or
// "guest-path=host-path:ro".
func parsePreopenFlag(raw string) (PreopenConfig, error) {
	guestAndRest, ok := splitOnce(raw, '=')
	if !ok {
		return PreopenConfig{}, fmt.Errorf("invalid --preopen %q: want guest-path=host-path", raw)
	}
	hostPath, readOnly := guestAndRest.tail, false
	if pair, ok := splitOnce(hostPath, ':'); ok && pair.tail == "ro" {
		hostPath, readOnly = pair.head, true
	}
	return PreopenConfig{GuestPath: guestAndRest.head, HostPath: hostPath, ReadOnly: readOnly}, nil
}

type splitPair struct{ head, tail string }

func splitOnce(s string, sep byte) (splitPair, bool) {
	idx := strings.IndexByte(s, sep)
	if idx < 0 {
		return splitPair{}, false
	}
	return splitPair{head: s[:idx], tail: s[idx+1:]}, true
}
