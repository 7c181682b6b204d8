package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synfig/synfig-vfs/container"
	"github.com/synfig/synfig-vfs/staging"
)

// Configuration keys.
const (
	keyConfig      = "config"
	keyTempDir     = "temp_dir"
	keyLogLevel    = "log_level"
	keyCompression = "compression"
	keyTag         = "tag"
)

const envPrefix = "SVFS"

func bindConfig(root *cobra.Command, v *viper.Viper) {
	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default $XDG_CONFIG_HOME/svfs/config.yaml)")
	flags.String("temp-dir", "", "Directory for staging sessions (default: system temp directory)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("compression", "store", "Compression for new entries: store, deflate or zstd")
	flags.String("tag", staging.DefaultTag, "Tag of the staging sessions")

	v.BindPFlag(keyConfig, flags.Lookup("config"))
	v.BindPFlag(keyTempDir, flags.Lookup("temp-dir"))
	v.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	v.BindPFlag(keyCompression, flags.Lookup("compression"))
	v.BindPFlag(keyTag, flags.Lookup("tag"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// configDir returns the directory searched for config.yaml.
func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "svfs")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "svfs")
	}
	return ""
}

// loadConfig reads the config file, if any, and sets up the default logger.
func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	if file := v.GetString(keyConfig); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	} else if dir := configDir(); dir != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config in %s: %w", dir, err)
			}
		}
	}

	level, err := parseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func tempDir(v *viper.Viper) string {
	if dir := v.GetString(keyTempDir); dir != "" {
		return dir
	}
	return staging.SystemTempDir()
}

func tag(v *viper.Viper) string {
	if t := v.GetString(keyTag); t != "" {
		return t
	}
	return staging.DefaultTag
}

func compression(v *viper.Viper) (uint16, error) {
	return container.ParseMethod(strings.ToLower(v.GetString(keyCompression)))
}
