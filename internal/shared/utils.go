// Package shared
package shared

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

func SafeEnv(env string) (string, error) {
	// Lookup env variable, and error if not present
	res, present := os.LookupEnv(env)
	if !present {
		return "", fmt.Errorf("missing environment variable %s", env)
	}
	return res, nil
}

func ExtractAPIKey(r *http.Request) (string, error) {
	// Check Authorization header
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingAuth
	}

	// Validate bearer format
	parts := strings.Split(auth, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", ErrInvalidFormat
	}

	apiKey := parts[1]

	// Validate key length
	if len(apiKey) != APIKeyLength {
		return "", ErrInvalidKeyLen
	}

	return apiKey, nil
}

// ClampSegmentSize keeps a configured segment size inside the accepted range.
func ClampSegmentSize(n int) int {
	switch {
	case n <= 0:
		return DefaultSegmentSize
	case n > MaxSegmentSize:
		return MaxSegmentSize
	}
	return n
}
