package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

func Config(key string) string {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	return os.Getenv(key)
}

// ConfigInt reads an integer setting, falling back to def when the
// variable is unset or malformed.
func ConfigInt(key string, def int) int {
	raw := Config(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid integer for %s (%q), using default %d", key, raw, def)
		return def
	}
	return v
}

// ConfigFloat reads a float setting, falling back to def when the
// variable is unset or malformed.
func ConfigFloat(key string, def float64) float64 {
	raw := Config(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Warning: invalid float for %s (%q), using default %f", key, raw, def)
		return def
	}
	return v
}
