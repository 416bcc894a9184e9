package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TokenEnv holds a bearer token for the inference service.
const TokenEnv = "COACH_API_TOKEN"

const credentialsFile = "credentials.json"

// ErrNoToken is returned when no token is configured anywhere.
var ErrNoToken = errors.New("API token not found in environment or config files")

type credentials struct {
	Token string `json:"token"`
}

// LoadToken retrieves the API token from the environment or the credentials
// file in the config directory.
func LoadToken() (string, error) {
	// Check environment variables first - fast path
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}

	configDir, err := Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}

	var creds credentials
	if err := readJSONFile(filepath.Join(configDir, credentialsFile), &creds); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read credentials: %w", err)
	}

	if creds.Token == "" {
		return "", ErrNoToken
	}
	return creds.Token, nil
}

// readJSONFile reads a JSON file and unmarshals it into the provided variable.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
