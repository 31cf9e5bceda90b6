package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SCRIBE"

// userHomeDir is a variable so tests can point the default search path elsewhere.
var userHomeDir = os.UserHomeDir

// legacyEnv maps config keys to the environment variable names older
// deployments used before the SCRIBE_ prefix existed.
var legacyEnv = map[string]string{
	"discord.token":            "DISCORD_TOKEN",
	"discord.target_user_id":   "TARGET_USER_ID",
	"discord.notes_channel_id": "MEETING_NOTES_CHANNEL_ID",
	"summary.api_key":          "GEMINI_API_KEY",
	"recording.work_dir":       "TEMP_DIR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.target_user_id", "")
	v.SetDefault("discord.notes_channel_id", "")
	v.SetDefault("discord.log_channel_id", "")
	v.SetDefault("discord.self_mute", true)
	v.SetDefault("discord.self_deaf", false)

	v.SetDefault("recording.work_dir", filepath.Join(os.TempDir(), "scribe"))
	v.SetDefault("recording.ready_timeout", 30*time.Second)
	v.SetDefault("recording.recovery_window", 5*time.Second)
	v.SetDefault("recording.flush_grace", time.Second)
	v.SetDefault("recording.max_duration", 9*time.Hour)
	v.SetDefault("recording.min_free_bytes", uint64(512<<20))
	v.SetDefault("recording.keep_artifacts", false)
	v.SetDefault("recording.sample_rate", 48000)
	v.SetDefault("recording.channels", 2)

	v.SetDefault("pipeline.ffmpeg_path", "ffmpeg")
	v.SetDefault("pipeline.min_artifact_bytes", 1000)
	v.SetDefault("pipeline.near_empty_bytes", 4096)
	v.SetDefault("pipeline.max_summary_bytes", 20<<20)
	v.SetDefault("pipeline.quality", 2)
	v.SetDefault("pipeline.timeout", 10*time.Minute)
	v.SetDefault("pipeline.transcript_sample_rate", 16000)

	v.SetDefault("summary.mode", ModeAudio)
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.model", "gemini-2.5-flash")
	v.SetDefault("summary.min_duration", 2*time.Minute)
	v.SetDefault("summary.attempts", 3)
	v.SetDefault("summary.base_delay", 2*time.Second)
	v.SetDefault("summary.jitter", 0.0)
	v.SetDefault("summary.workers", 2)
	v.SetDefault("summary.queue_size", 16)

	v.SetDefault("speech.enabled", false)
	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.language_code", "en-US")

	v.SetDefault("upload.enabled", false)
	v.SetDefault("upload.credentials_file", "")
	v.SetDefault("upload.folder_id", "")

	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.username", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)

	v.SetDefault("log.level", "info")
}

// DefaultPath returns ~/Scribe/config.yaml.
func DefaultPath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(home, "Scribe", "config.yaml"), nil
}

// Load reads the config file at path (or the default search path when empty),
// applies environment overrides and validates the result.
func Load(path string) (*AllConfig, error) {
	cfg, err := LoadUnvalidated(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate call.
func LoadUnvalidated(path string) (*AllConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("could not bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := userHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "Scribe"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("could not read config file: %w", err)
			}
		}
	}

	cfg := &AllConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	workDir, err := expandPath(cfg.Recording.WorkDir)
	if err != nil {
		return nil, err
	}
	cfg.Recording.WorkDir = workDir
	return cfg, nil
}

// expandPath resolves paths like "~/" to the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
