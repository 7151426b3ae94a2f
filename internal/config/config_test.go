package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, key, value string) func() {
	t.Helper()
	orig, had := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	return func() {
		if had {
			os.Setenv(key, orig)
		} else {
			os.Unsetenv(key)
		}
	}
}

func TestLoadConfigDefaultsQAPublicSite(t *testing.T) {
	defer setEnv(t, "QA_PUBLIC_SITE", "")()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "stackoverflow", cfg.QAPublic.Site)
}

func TestLoadConfigHonorsExplicitQAPublicSite(t *testing.T) {
	defer setEnv(t, "QA_PUBLIC_SITE", "serverfault")()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "serverfault", cfg.QAPublic.Site)
}

func TestValidateTrackerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TrackerConfig
		wantErr bool
	}{
		{"all fields present", TrackerConfig{BaseURL: "https://tracker.example.com", Token: "tok"}, false},
		{"missing base url", TrackerConfig{Token: "tok"}, true},
		{"missing token", TrackerConfig{BaseURL: "https://tracker.example.com"}, true},
		{"username may be empty", TrackerConfig{BaseURL: "https://tracker.example.com", Token: "tok", Username: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTrackerConfig(&Config{Tracker: tt.cfg})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSCMConfig(t *testing.T) {
	assert.NoError(t, ValidateSCMConfig(&Config{SCM: SCMConfig{Token: "tok"}}))
	assert.Error(t, ValidateSCMConfig(&Config{SCM: SCMConfig{}}))
}

func TestValidateQAInternalConfig(t *testing.T) {
	assert.NoError(t, ValidateQAInternalConfig(&Config{QAInternal: QAInternalConfig{BaseURL: "https://qa.internal", APIKey: "key"}}))
	assert.Error(t, ValidateQAInternalConfig(&Config{QAInternal: QAInternalConfig{BaseURL: "https://qa.internal"}}))
	assert.Error(t, ValidateQAInternalConfig(&Config{QAInternal: QAInternalConfig{APIKey: "key"}}))
}
