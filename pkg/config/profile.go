package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// APIKeyProfile is an API key entry as it appears in a profile file. The
// plaintext key is never stored; only its bcrypt hash.
type APIKeyProfile struct {
	Hash      string   `yaml:"hash"`
	Principal string   `yaml:"principal"`
	TenantID  string   `yaml:"tenant_id,omitempty"`
	Roles     []string `yaml:"roles,omitempty"`
}

// Profile is the on-disk YAML form of Config plus the bits that only make
// sense in a file, like the API key table.
type Profile struct {
	Config  `yaml:",inline"`
	APIKeys []APIKeyProfile `yaml:"api_keys,omitempty"`
}

// LoadProfile reads a YAML profile file into a Config, applying the same
// defaults Load does before overlaying the file's values.
func LoadProfile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load profile %q: %w", path, err)
	}

	var p Profile
	p.Config = *defaults()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %q: %w", path, err)
	}
	return &p.Config, nil
}

// LoadAPIKeys reads just the api_keys table from a profile file.
func LoadAPIKeys(path string) ([]APIKeyProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load profile %q: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %q: %w", path, err)
	}
	return p.APIKeys, nil
}
