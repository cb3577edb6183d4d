/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lopanworks/lopan_admin/internal/models"
	"github.com/lopanworks/lopan_admin/internal/shiftpolicy"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string
	MetricsBind   string

	// Shift cutoff configuration. Env overrides apply on top of the
	// optional shift config file; both fall back to built-in defaults.
	ShiftConfigPath string
	ShiftCutoffs    shiftpolicy.Cutoffs

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// shiftFile is the on-disk shape of the optional shift config file.
type shiftFile struct {
	Shifts map[string]struct {
		Cutoff string `yaml:"cutoff"`
	} `yaml:"shifts"`
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("LOPAN_ENV", "development"),
		HTTPBind:      getEnv("LOPAN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("LOPAN_HTTP_PORT", 8080),
		DBBackend:     DatabaseBackend(getEnv("LOPAN_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:         getEnv("LOPAN_DB_DSN", ""),
		JWTSigningKey: getEnv("LOPAN_JWT_SIGNING_KEY", ""),
		MetricsBind:   getEnv("LOPAN_METRICS_BIND", "127.0.0.1:9000"),

		ShiftConfigPath: getEnv("LOPAN_SHIFT_CONFIG", ""),

		TracingEnabled:    getEnvBool("LOPAN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("LOPAN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("LOPAN_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("LOPAN_DB_DSN must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("LOPAN_JWT_SIGNING_KEY must be provided")
	}

	cutoffs, err := loadCutoffs(cfg.ShiftConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.ShiftCutoffs = cutoffs

	return cfg, nil
}

// loadCutoffs resolves the effective shift cutoffs: built-in defaults,
// then the shift config file, then per-shift env overrides
// (LOPAN_SHIFT_CUTOFF_MORNING, LOPAN_SHIFT_CUTOFF_EVENING as "HH:MM").
func loadCutoffs(path string) (shiftpolicy.Cutoffs, error) {
	cutoffs := shiftpolicy.DefaultCutoffs()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read shift config %s: %w", path, err)
		}
		var file shiftFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse shift config %s: %w", path, err)
		}
		for name, entry := range file.Shifts {
			shift := models.Shift(name)
			if !shift.Valid() {
				return nil, fmt.Errorf("shift config %s: unknown shift %q", path, name)
			}
			cutoff, err := parseCutoff(entry.Cutoff)
			if err != nil {
				return nil, fmt.Errorf("shift config %s: shift %q: %w", path, name, err)
			}
			cutoffs[shift] = cutoff
		}
	}

	for _, shift := range models.AllShifts() {
		key := "LOPAN_SHIFT_CUTOFF_" + strings.ToUpper(string(shift))
		if v := os.Getenv(key); v != "" {
			cutoff, err := parseCutoff(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			cutoffs[shift] = cutoff
		}
	}

	return cutoffs, nil
}

func parseCutoff(s string) (shiftpolicy.CutoffTime, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return shiftpolicy.CutoffTime{}, fmt.Errorf("cutoff %q must be HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return shiftpolicy.CutoffTime{}, fmt.Errorf("cutoff %q has an invalid hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return shiftpolicy.CutoffTime{}, fmt.Errorf("cutoff %q has an invalid minute", s)
	}
	return shiftpolicy.CutoffTime{Hour: hour, Minute: minute}, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
