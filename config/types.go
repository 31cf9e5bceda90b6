package config

import "time"

// AllConfig holds every configuration section of the service.
type AllConfig struct {
	Discord   *DiscordConfig   `mapstructure:"discord"`
	Recording *RecordingConfig `mapstructure:"recording"`
	Pipeline  *PipelineConfig  `mapstructure:"pipeline"`
	Summary   *SummaryConfig   `mapstructure:"summary"`
	Speech    *SpeechConfig    `mapstructure:"speech"`
	Upload    *UploadConfig    `mapstructure:"upload"`
	Cache     *CacheConfig     `mapstructure:"cache"`
	Log       *LogConfig       `mapstructure:"log"`
}

// DiscordConfig holds Discord-specific settings
type DiscordConfig struct {
	Token          string `mapstructure:"token"`
	TargetUserID   string `mapstructure:"target_user_id"`
	NotesChannelID string `mapstructure:"notes_channel_id"`
	LogChannelID   string `mapstructure:"log_channel_id"`
	SelfMute       bool   `mapstructure:"self_mute"`
	SelfDeaf       bool   `mapstructure:"self_deaf"`
}

// RecordingConfig controls connection lifecycle timing and working storage.
type RecordingConfig struct {
	WorkDir        string        `mapstructure:"work_dir"`
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout"`
	RecoveryWindow time.Duration `mapstructure:"recovery_window"`
	FlushGrace     time.Duration `mapstructure:"flush_grace"`
	MaxDuration    time.Duration `mapstructure:"max_duration"`
	MinFreeBytes   uint64        `mapstructure:"min_free_bytes"`
	KeepArtifacts  bool          `mapstructure:"keep_artifacts"`
	SampleRate     uint32        `mapstructure:"sample_rate"`
	Channels       uint16        `mapstructure:"channels"`
}

// PipelineConfig controls merge, transcode and size guards.
type PipelineConfig struct {
	FFmpegPath       string        `mapstructure:"ffmpeg_path"`
	MinArtifactBytes int64         `mapstructure:"min_artifact_bytes"`
	NearEmptyBytes   int64         `mapstructure:"near_empty_bytes"`
	MaxSummaryBytes  int64         `mapstructure:"max_summary_bytes"`
	Quality          int           `mapstructure:"quality"`
	Timeout          time.Duration `mapstructure:"timeout"`
	// TranscriptSampleRate is the rate of the speech-to-text rendition.
	TranscriptSampleRate int `mapstructure:"transcript_sample_rate"`
}

// SummaryConfig controls the summarizer and its retry policy.
type SummaryConfig struct {
	Mode        string        `mapstructure:"mode"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MinDuration time.Duration `mapstructure:"min_duration"`
	Attempts    int           `mapstructure:"attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Jitter      float64       `mapstructure:"jitter"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
}

// SpeechConfig configures Google Cloud Speech transcription.
type SpeechConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"api_key"`
	LanguageCode string `mapstructure:"language_code"`
}

// UploadConfig configures Google Drive uploads.
type UploadConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

// CacheConfig holds connection details for the redis session store.
type CacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Summary modes.
const (
	ModeAudio      = "audio"
	ModeTranscript = "transcript"
)
