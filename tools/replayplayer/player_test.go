package replayplayer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raygrid/internal/replay"
)

type scripted struct {
	tick    uint64
	kind    string
	payload string
}

func writeBundle(t *testing.T, root, session string, seed uint64, events []scripted) string {
	t.Helper()
	now := time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)
	writer, _, err := replay.NewWriter(root, session, func() time.Time { return now })
	require.NoError(t, err)
	writer.SetHeaderMetadata(seed, replay.SceneParameters{CellCount: 5, Obstacles: 432, TickHz: 60})
	for _, event := range events {
		require.NoError(t, writer.AppendEvent(event.tick, int64(event.tick)*16, event.kind, json.RawMessage(event.payload)))
	}
	require.NoError(t, writer.Close())
	return writer.Directory()
}

func TestSummarizeCountsTerminalEvents(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "sum", 5, []scripted{
		{10, "hit_obstacle", `{"obstacle_index":4}`},
		{30, "hit_boundary", `{"judged":[0.6,0,0]}`},
		{40, "hit_obstacle", `{"obstacle_index":4}`},
		{70, "hit_obstacle", `{"obstacle_index":1}`},
	})

	summary, err := Summarize(dir, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(5), summary.Seed)
	require.Equal(t, 3, summary.ObstacleHits)
	require.Equal(t, 1, summary.BoundaryExits)
	require.Equal(t, uint64(10), summary.FirstTick)
	require.Equal(t, uint64(70), summary.LastTick)
	require.InDelta(t, 20.0, summary.MeanFlight, 1e-9)
	require.Equal(t, []ObstacleCount{{Index: 4, Hits: 2}}, summary.TopObstacles)
}

func TestListSortsClosedBundlesBySeed(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, filepath.Join(root, "b"), "late", 9, []scripted{
		{12, "hit_obstacle", `{"obstacle_index":0}`},
		{50, "hit_boundary", `{}`},
		{80, "hit_boundary", `{}`},
	})
	writeBundle(t, filepath.Join(root, "a"), "early", 2, nil)
	interrupted := writeBundle(t, filepath.Join(root, "c"), "cut", 1, nil)
	require.NoError(t, os.Remove(filepath.Join(interrupted, "header.json")))

	entries, err := List(root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, uint64(2), entries[0].Header.Seed)
	require.Equal(t, uint64(9), entries[1].Header.Seed)
	require.Equal(t, 1, entries[1].Hits)
	require.Equal(t, 2, entries[1].Exits)
	require.False(t, entries[2].Closed)
	require.Equal(t, interrupted, entries[2].Dir)
	require.Equal(t, "manifest.json", filepath.Base(entries[0].ManifestPath))

	_, err = List("")
	require.Error(t, err)
}
