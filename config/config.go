// Package config loads and validates the service configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that the required settings are present and coherent.
func (c *AllConfig) Validate() error {
	var problems []string

	if c.Discord.Token == "" {
		problems = append(problems, "discord.token is required")
	}
	if c.Discord.TargetUserID == "" {
		problems = append(problems, "discord.target_user_id is required")
	}
	if c.Recording.WorkDir == "" {
		problems = append(problems, "recording.work_dir is required")
	}
	if c.Recording.ReadyTimeout <= 0 {
		problems = append(problems, "recording.ready_timeout must be positive")
	}
	if c.Recording.RecoveryWindow <= 0 {
		problems = append(problems, "recording.recovery_window must be positive")
	}
	if c.Summary.Attempts < 1 {
		problems = append(problems, "summary.attempts must be at least 1")
	}
	if c.Summary.Workers < 1 {
		problems = append(problems, "summary.workers must be at least 1")
	}
	switch c.Summary.Mode {
	case ModeAudio:
	case ModeTranscript:
		if !c.Speech.Enabled {
			problems = append(problems, "summary.mode transcript requires speech.enabled")
		}
	default:
		problems = append(problems, fmt.Sprintf("summary.mode %q is not one of audio, transcript", c.Summary.Mode))
	}
	if c.Upload.Enabled && c.Upload.CredentialsFile == "" {
		problems = append(problems, "upload.credentials_file is required when upload is enabled")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// SummaryEnabled reports whether a summarizer can be constructed.
func (c *AllConfig) SummaryEnabled() bool {
	return c.Summary.APIKey != ""
}
