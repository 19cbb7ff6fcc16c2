package config

import (
	"os"
	"strings"
)

// GetString returns the trimmed value of an environment variable, or fallback
// when it is unset or blank.
func GetString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
