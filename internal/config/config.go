// Package config provides centralized configuration management for the
// application. It loads how to reach each upstream from the process
// environment; what to poll and how to behave lives in the Settings
// Document owned by internal/store instead (SPEC_FULL AMBIENT STACK).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration parameters for the application.
type Config struct {
	Tracker    TrackerConfig
	SCM        SCMConfig
	QAPublic   QAPublicConfig
	QAInternal QAInternalConfig
}

// TrackerConfig holds the work-item tracker's connection details.
type TrackerConfig struct {
	BaseURL  string
	Username string
	Token    string
}

// SCMConfig holds the source-control issue tracker's connection details.
type SCMConfig struct {
	Domain string
	Token  string
}

// QAPublicConfig holds the public Q&A site's connection details.
type QAPublicConfig struct {
	Site string
}

// QAInternalConfig holds the internal Q&A site's connection details.
type QAInternalConfig struct {
	BaseURL string
	APIKey  string
}

// LoadConfig initializes and loads configuration from environment variables.
// It requires nothing and never returns an error: required fields are
// checked separately by the per-upstream Validate*Config functions below.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("tracker.base_url", "TRACKER_BASE_URL")
	v.BindEnv("tracker.username", "TRACKER_USERNAME")
	v.BindEnv("tracker.token", "TRACKER_PAT")
	v.BindEnv("scm.domain", "SCM_DOMAIN")
	v.BindEnv("scm.token", "SCM_TOKEN")
	v.BindEnv("qa_public.site", "QA_PUBLIC_SITE")
	v.BindEnv("qa_internal.base_url", "QA_INTERNAL_BASE_URL")
	v.BindEnv("qa_internal.api_key", "QA_INTERNAL_API_KEY")

	site := v.GetString("qa_public.site")
	if site == "" {
		site = "stackoverflow"
	}

	cfg := &Config{
		Tracker: TrackerConfig{
			BaseURL:  v.GetString("tracker.base_url"),
			Username: v.GetString("tracker.username"),
			Token:    v.GetString("tracker.token"),
		},
		SCM: SCMConfig{
			Domain: v.GetString("scm.domain"),
			Token:  v.GetString("scm.token"),
		},
		QAPublic: QAPublicConfig{
			Site: site,
		},
		QAInternal: QAInternalConfig{
			BaseURL: v.GetString("qa_internal.base_url"),
			APIKey:  v.GetString("qa_internal.api_key"),
		},
	}

	return cfg, nil
}

// ValidateTrackerConfig validates the work-item tracker's required fields
// (base URL and token empty are the common misconfigurations).
func ValidateTrackerConfig(cfg *Config) error {
	var missing []string
	if cfg.Tracker.BaseURL == "" {
		missing = append(missing, "TRACKER_BASE_URL")
	}
	if cfg.Tracker.Token == "" {
		missing = append(missing, "TRACKER_PAT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// ValidateSCMConfig validates the SCM issues upstream's required fields.
func ValidateSCMConfig(cfg *Config) error {
	if cfg.SCM.Token == "" {
		return fmt.Errorf("missing required environment variable: SCM_TOKEN")
	}
	return nil
}

// ValidateQAInternalConfig validates the internal Q&A upstream's required fields.
func ValidateQAInternalConfig(cfg *Config) error {
	var missing []string
	if cfg.QAInternal.BaseURL == "" {
		missing = append(missing, "QA_INTERNAL_BASE_URL")
	}
	if cfg.QAInternal.APIKey == "" {
		missing = append(missing, "QA_INTERNAL_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// ValidateQAPublicConfig validates the public Q&A upstream's required fields.
// The public Q&A API takes no key, so there is nothing to require
// beyond a non-empty site parameter, which LoadConfig already defaults.
func ValidateQAPublicConfig(cfg *Config) error {
	if cfg.QAPublic.Site == "" {
		return fmt.Errorf("missing required configuration: qa_public.site")
	}
	return nil
}
