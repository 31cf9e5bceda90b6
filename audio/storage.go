package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionDir returns the working directory for one recording session.
// Format: {workDir}/{guildID}-{sessionID}
func SessionDir(workDir, guildID, sessionID string) string {
	return filepath.Join(workDir, fmt.Sprintf("%s-%s", guildID, sessionID))
}

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// SpeakerFilePath generates the path of a speaker's artifact.
// Format: {dir}/speaker-{userID}-{unixMillis}.ogg
func SpeakerFilePath(dir, speakerID string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("speaker-%s-%d.ogg", speakerID, at.UnixMilli()))
}
