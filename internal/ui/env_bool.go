package ui

import "strings"

// EnvFlag reports whether the environment variable key holds a truthy value
// (1, true, yes, on). Anything else, including unset, is false.
func EnvFlag(getenv func(string) string, key string) bool {
	switch strings.ToLower(strings.TrimSpace(getenv(key))) {
	case "1", "true", "yes", "on", "y":
		return true
	}
	return false
}
