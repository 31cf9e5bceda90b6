package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestEnvironment points the home directory at a temp dir and clears
// any environment that would leak into the loader.
func setupTestEnvironment(t *testing.T) string {
	tempDir := t.TempDir()

	scribePath := filepath.Join(tempDir, "Scribe")
	require.NoError(t, os.MkdirAll(scribePath, 0755))

	original := userHomeDir
	userHomeDir = func() (string, error) { return tempDir, nil }
	t.Cleanup(func() { userHomeDir = original })

	for _, name := range legacyEnv {
		t.Setenv(name, "")
	}
	for key := range legacyEnv {
		t.Setenv(envPrefix+"_"+envName(key), "")
	}
	return scribePath
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

const sampleConfig = `
discord:
  token: test-token
  target_user_id: "42"
  notes_channel_id: "100"
recording:
  work_dir: ~/scribe-work
  ready_timeout: 20s
summary:
  api_key: gemini-key
  attempts: 5
`

func TestLoad_DefaultSearchPath(t *testing.T) {
	scribePath := setupTestEnvironment(t)
	require.NoError(t, os.WriteFile(filepath.Join(scribePath, "config.yaml"), []byte(sampleConfig), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Discord.Token)
	assert.Equal(t, "42", cfg.Discord.TargetUserID)
	assert.Equal(t, "100", cfg.Discord.NotesChannelID)
	assert.Equal(t, 20*time.Second, cfg.Recording.ReadyTimeout)
	assert.Equal(t, 5, cfg.Summary.Attempts)
	assert.Equal(t, filepath.Join(filepath.Dir(scribePath), "scribe-work"), cfg.Recording.WorkDir)
	assert.True(t, cfg.SummaryEnabled())
}

func TestLoad_Defaults(t *testing.T) {
	scribePath := setupTestEnvironment(t)
	path := filepath.Join(scribePath, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord:\n  token: t\n  target_user_id: u\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Recording.ReadyTimeout)
	assert.Equal(t, 5*time.Second, cfg.Recording.RecoveryWindow)
	assert.Equal(t, time.Second, cfg.Recording.FlushGrace)
	assert.Equal(t, 9*time.Hour, cfg.Recording.MaxDuration)
	assert.Equal(t, uint32(48000), cfg.Recording.SampleRate)
	assert.Equal(t, uint16(2), cfg.Recording.Channels)
	assert.Equal(t, int64(1000), cfg.Pipeline.MinArtifactBytes)
	assert.Equal(t, 16000, cfg.Pipeline.TranscriptSampleRate)
	assert.Equal(t, "gemini-2.5-flash", cfg.Summary.Model)
	assert.Equal(t, 2*time.Minute, cfg.Summary.MinDuration)
	assert.Equal(t, 3, cfg.Summary.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Summary.BaseDelay)
	assert.Equal(t, ModeAudio, cfg.Summary.Mode)
	assert.True(t, cfg.Discord.SelfMute)
	assert.False(t, cfg.SummaryEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	scribePath := setupTestEnvironment(t)
	path := filepath.Join(scribePath, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0644))

	t.Setenv("SCRIBE_DISCORD_TOKEN", "from-prefixed-env")
	t.Setenv("MEETING_NOTES_CHANNEL_ID", "legacy-channel")
	t.Setenv("SCRIBE_SUMMARY_MIN_DURATION", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-prefixed-env", cfg.Discord.Token)
	assert.Equal(t, "legacy-channel", cfg.Discord.NotesChannelID)
	assert.Equal(t, 90*time.Second, cfg.Summary.MinDuration)
}

func TestLoad_MissingRequired(t *testing.T) {
	setupTestEnvironment(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord.token is required")
	assert.Contains(t, err.Error(), "discord.target_user_id is required")
}

func TestLoad_InvalidYAML(t *testing.T) {
	scribePath := setupTestEnvironment(t)
	path := filepath.Join(scribePath, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discord: [not: valid"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read config file")
}

func TestValidate_TranscriptModeNeedsSpeech(t *testing.T) {
	scribePath := setupTestEnvironment(t)
	path := filepath.Join(scribePath, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig+"  mode: transcript\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires speech.enabled")
}
