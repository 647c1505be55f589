package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("op", "config/env").Str("key", EnvPrefix+key).Msg("Ignoring non-integer value")
		return defaultValue
	}
	return intVal
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("op", "config/env").Str("key", EnvPrefix+key).Msg("Ignoring non-boolean value")
		return defaultValue
	}
	return boolVal
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("op", "config/env").Str("key", EnvPrefix+key).Msg("Ignoring invalid duration")
		return defaultValue
	}
	return duration
}
