// Package env reads process environment variables with fallbacks.
package env

import "os"

// Get reads key from the process environment. Unset and empty both fall back,
// so a blank override cannot mask a default.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
