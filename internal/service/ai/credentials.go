package ai

import (
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"

	"github.com/zhouzirui/persona-chat/backend/internal/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrAuthFailure means no usable Google Cloud credential was found.
var ErrAuthFailure = errors.New("google cloud authentication failed")

// serviceAccountJSON returns the configured service-account key, preferring the
// inline value over the file. Empty means Application Default Credentials.
func serviceAccountJSON(cfg config.AIConfig) ([]byte, error) {
	if cfg.ServiceAccountJSON != "" {
		return []byte(cfg.ServiceAccountJSON), nil
	}
	if cfg.ServiceAccountFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read service account file: %v", ErrAuthFailure, err)
	}
	return data, nil
}

// resolveCredentials tries the service-account key first and falls back to
// Application Default Credentials (gcloud auth application-default login).
func resolveCredentials(cfg config.AIConfig) (*auth.Credentials, error) {
	key, err := serviceAccountJSON(cfg)
	if err != nil {
		return nil, err
	}

	opts := &credentials.DetectOptions{
		Scopes:          []string{cloudPlatformScope},
		CredentialsJSON: key,
	}

	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		if key == nil {
			return nil, fmt.Errorf("%w: no application default credentials, run 'gcloud auth application-default login': %v", ErrAuthFailure, err)
		}
		return nil, fmt.Errorf("%w: invalid service account key: %v", ErrAuthFailure, err)
	}
	return creds, nil
}
