package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/EasterCompany/dex-scribe-service/guild"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	snaps   []*guild.Snapshot
	deleted []string
}

func (f *fakeStore) LoadSessions(context.Context) ([]*guild.Snapshot, error) { return f.snaps, nil }

func (f *fakeStore) DeleteSession(_ context.Context, guildID string) error {
	f.deleted = append(f.deleted, guildID)
	return nil
}

func makeSessionDir(t *testing.T, root, name string) string {
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "speaker-1-1.ogg"), make([]byte, 2048), 0644))
	return dir
}

func TestRemoveArtifacts(t *testing.T) {
	dir := makeSessionDir(t, t.TempDir(), "g1-s1")

	res := RemoveArtifacts(dir)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, int64(2048), res.BytesFreed)
	assert.NoDirExists(t, dir)

	assert.Zero(t, RemoveArtifacts("").Count)
}

func TestSweepOrphans(t *testing.T) {
	root := t.TempDir()
	inside := makeSessionDir(t, root, "g1-s1")
	outside := makeSessionDir(t, t.TempDir(), "elsewhere")

	store := &fakeStore{snaps: []*guild.Snapshot{
		{ID: "s1", GuildID: "g1", WorkDir: inside},
		{ID: "s2", GuildID: "g2", WorkDir: outside},
	}}
	res := SweepOrphans(context.Background(), store, root, nil, logger.NewNop())

	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"g1", "g2"}, store.deleted)
	assert.NoDirExists(t, inside)
	assert.DirExists(t, outside)
}

func TestSweepOrphans_KeepsLiveSessions(t *testing.T) {
	root := t.TempDir()
	live := makeSessionDir(t, root, "g1-s1")
	orphan := makeSessionDir(t, root, "g2-s0")

	store := &fakeStore{snaps: []*guild.Snapshot{
		{ID: "s1", GuildID: "g1", WorkDir: live},
		{ID: "s0", GuildID: "g2", WorkDir: orphan},
	}}
	res := SweepOrphans(context.Background(), store, root, func(id string) bool { return id == "s1" }, logger.NewNop())

	assert.Equal(t, 1, res.Count)
	assert.Equal(t, []string{"g2"}, store.deleted)
	assert.DirExists(t, live)
	assert.NoDirExists(t, orphan)
}

func TestSweepOrphans_NoStore(t *testing.T) {
	assert.Zero(t, SweepOrphans(context.Background(), nil, t.TempDir(), nil, logger.NewNop()).Count)
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/tmp/scribe", "/tmp/scribe/g1-s1"))
	assert.False(t, within("/tmp/scribe", "/tmp/scribe"))
	assert.False(t, within("/tmp/scribe", "/tmp/other"))
	assert.False(t, within("/tmp/scribe", ""))
}
