// Package health formats the status of the service's collaborators.
package health

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Pinger is anything with a liveness check, such as the session cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GetDiscordStatus checks and returns the status of the Discord connection as a formatted string.
func GetDiscordStatus(s *discordgo.Session) string {
	if s == nil {
		return "**ERROR**: `No session`"
	}
	if s.DataReady {
		return "**OK**"
	}
	return "**ERROR**: `Gateway not ready`"
}

// GetCacheStatus checks and returns the status of a cache connection as a formatted string.
func GetCacheStatus(ctx context.Context, c Pinger, addr string) string {
	if addr == "" {
		return "`Not Configured`"
	}
	if c == nil {
		return "**ERROR**: `Initialization failed`"
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return fmt.Sprintf("**ERROR**: `%v`", err)
	}
	return "**OK**"
}

// GetClientStatus reports an API client that has no ping of its own. A client
// that was constructed without error is assumed reachable.
func GetClientStatus(enabled bool, initErr error) string {
	if !enabled {
		return "`Disabled`"
	}
	if initErr != nil {
		return fmt.Sprintf("**ERROR**: `%v`", initErr)
	}
	return "**OK**"
}

// GetFFmpegStatus reports whether the ffmpeg binary can be found.
func GetFFmpegStatus(path string) string {
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return fmt.Sprintf("**ERROR**: `%v`", err)
	}
	return fmt.Sprintf("**OK** (`%s`)", resolved)
}
