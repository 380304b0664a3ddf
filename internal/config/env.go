// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/InsiderP/video-streaming/internal/log"
)

// ParseString reads a string from an environment variable or returns the
// default value. Sensitive keys are never logged in full.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	if value, exists := os.LookupEnv(key); exists && value != "" {
		lowerKey := strings.ToLower(key)
		if strings.Contains(lowerKey, "secret") || strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "key") {
			logger.Debug().
				Str("key", key).
				Str("source", "environment").
				Bool("sensitive", true).
				Msg("using environment variable")
		} else {
			logger.Debug().
				Str("key", key).
				Str("value", value).
				Str("source", "environment").
				Msg("using environment variable")
		}
		return value
	}
	return defaultValue
}

// ParseInt reads an integer from an environment variable or returns the
// default value. It falls back to the default on parse errors.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Int("default", defaultValue).
				Msg("invalid integer in environment, using default")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// ParseBool reads a boolean from an environment variable or returns the
// default value.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn().
				Str("key", key).
				Str("value", v).
				Bool("default", defaultValue).
				Msg("invalid boolean in environment, using default")
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
