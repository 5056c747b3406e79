package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"docvault/internal/config"
)

const (
	logLevelEnvKey  = "DOCVAULT_LOG_LEVEL"
	logFormatEnvKey = "DOCVAULT_LOG_FORMAT"
)

// configureLoggerForCLI installs the default logger. Invalid flag values are
// errors; invalid env or config values fall back with a warning.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	var warnings []string
	if _, err := logHandlerFormat(os.Getenv(logFormatEnvKey)); err != nil {
		warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to text", logFormatEnvKey, os.Getenv(logFormatEnvKey)))
	}
	warning, err := configureLevel(flagLevel, configLevel)
	if err != nil {
		return "", err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}
	return strings.Join(warnings, "\n"), nil
}

func configureLevel(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	rawLevel, source := selectedLogLevel(flagLevel, envLevel, configLevel)
	if err := configureDefaultLogger(rawLevel); err != nil {
		if source == "flag" {
			return "", fmt.Errorf("invalid --log-level %q", flagLevel)
		}
		_ = configureDefaultLogger("")
		switch source {
		case "env":
			return fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel), nil
		case "config":
			return fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel), nil
		default:
			return "", nil
		}
	}
	return "", nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, string) {
	if strings.TrimSpace(flagLevel) != "" {
		return flagLevel, "flag"
	}
	if strings.TrimSpace(envLevel) != "" {
		return envLevel, "env"
	}
	if strings.TrimSpace(configLevel) != "" {
		return configLevel, "config"
	}
	return "", "default"
}

func configureDefaultLogger(rawLevel string) error {
	level, err := parseLogLevel(rawLevel)
	if err != nil {
		return err
	}
	format, _ := logHandlerFormat(os.Getenv(logFormatEnvKey))
	slog.SetDefault(newLogger(os.Stderr, level, format))
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}

	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func logHandlerFormat(raw string) (string, error) {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case "", "text":
		return "text", nil
	case "json":
		return "json", nil
	default:
		return "text", fmt.Errorf("invalid log format %q", raw)
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
