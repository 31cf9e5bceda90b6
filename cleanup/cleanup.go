// Package cleanup removes recording artifacts once they are no longer needed.
package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/EasterCompany/dex-scribe-service/guild"
	logger "github.com/EasterCompany/dex-scribe-service/log"
)

// Result holds the outcome of a cleanup task.
type Result struct {
	Name        string
	Count       int
	BytesFreed  int64
	Description string
}

// SnapshotStore is the part of the session cache the boot sweep uses.
type SnapshotStore interface {
	LoadSessions(ctx context.Context) ([]*guild.Snapshot, error)
	DeleteSession(ctx context.Context, guildID string) error
}

// RemoveArtifacts deletes a session directory and everything in it.
func RemoveArtifacts(dir string) Result {
	res := Result{Name: "RemoveArtifacts", Description: dir}
	if dir == "" {
		return res
	}
	res.Count, res.BytesFreed = dirUsage(dir)
	if err := os.RemoveAll(dir); err != nil {
		res.Count, res.BytesFreed = 0, 0
		res.Description = fmt.Sprintf("%s: %v", dir, err)
	}
	return res
}

func dirUsage(dir string) (int, int64) {
	var count int
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			count++
			size += info.Size()
		}
		return nil
	})
	return count, size
}

// SweepOrphans removes the working directories of sessions a previous
// process left behind, then forgets their snapshots. Only directories inside
// workDir are removed. Snapshots for which live reports true belong to this
// process and are kept; live may be nil.
func SweepOrphans(ctx context.Context, store SnapshotStore, workDir string, live func(sessionID string) bool, logger logger.Logger) Result {
	res := Result{Name: "SweepOrphans", Description: workDir}
	if store == nil {
		return res
	}
	snaps, err := store.LoadSessions(ctx)
	if err != nil {
		logger.Error("Could not load session snapshots", err)
		return res
	}
	for _, snap := range snaps {
		if live != nil && live(snap.ID) {
			logger.Info("keeping snapshot of live session", "guild_id", snap.GuildID, "session_id", snap.ID)
			continue
		}
		if within(workDir, snap.WorkDir) {
			removed := RemoveArtifacts(snap.WorkDir)
			res.BytesFreed += removed.BytesFreed
		} else if snap.WorkDir != "" {
			logger.Warn("not removing session directory outside work dir", "dir", snap.WorkDir, "guild_id", snap.GuildID)
		}
		if err := store.DeleteSession(ctx, snap.GuildID); err != nil {
			logger.Error("Could not delete session snapshot", err, "guild_id", snap.GuildID)
			continue
		}
		logger.Info("swept orphaned session", "guild_id", snap.GuildID, "session_id", snap.ID)
		res.Count++
	}
	return res
}

func within(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
