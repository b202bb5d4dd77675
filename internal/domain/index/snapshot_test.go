package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/fault"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/testutil"
	"github.com/dkourtesis/fusion-semantic-registry-sub001/internal/shared/types"
)

func TestSnapshotFileRoundTrip(t *testing.T) {
	for _, name := range []string{"index.json", "index.json.zst", "index.json.gz"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			source := testutil.NewStaticProfileSource(s1, s2)
			idx := newTestIndex(t, source)

			_, err := idx.AddRFP(ctx, r1)
			require.NoError(t, err)
			_, err = idx.AddRFP(ctx, testutil.CreateTestRFP("R2", "C", []string{"b"}, nil))
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "data", name)
			require.NoError(t, idx.SaveFile(path))

			restored := newTestIndex(t, source)
			require.NoError(t, restored.LoadFile(path))

			assert.Equal(t, idx.Snapshot().Entries, restored.Snapshot().Entries)
			assert.Equal(t, []string{"R1", "R2"}, restored.RFPsFor("S2"))
			require.NoError(t, restored.CheckInvariant())
		})
	}
}

func TestLoadFileSniffsCompression(t *testing.T) {
	ctx := context.Background()
	source := testutil.NewStaticProfileSource(s1, s2)
	idx := newTestIndex(t, source)
	_, err := idx.AddRFP(ctx, r1)
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"index.json.zst", "index.json.gz"} {
		saved := filepath.Join(dir, name)
		require.NoError(t, idx.SaveFile(saved))

		renamed := filepath.Join(dir, "renamed-"+name+".bin")
		require.NoError(t, os.Rename(saved, renamed))

		restored := newTestIndex(t, source)
		require.NoError(t, restored.LoadFile(renamed), name)
		assert.Equal(t, idx.Snapshot().Entries, restored.Snapshot().Entries)
	}
}

func TestLoadFileErrors(t *testing.T) {
	idx := newTestIndex(t, testutil.NewStaticProfileSource())
	dir := t.TempDir()

	err := idx.LoadFile(filepath.Join(dir, "missing.json"))
	testutil.AssertFault(t, err, fault.NoMatchFound)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	err = idx.LoadFile(garbage)
	testutil.AssertFault(t, err, fault.MalformedInput)
}

func TestRestoreValidates(t *testing.T) {
	idx := newTestIndex(t, testutil.NewStaticProfileSource(s1))
	_, err := idx.AddRFP(context.Background(), r1)
	require.NoError(t, err)
	before := idx.Snapshot()

	tests := []struct {
		name string
		snap Snapshot
	}{
		{"wrong version", Snapshot{Version: 99}},
		{
			"duplicate rfp",
			Snapshot{Version: SnapshotVersion, Entries: []SnapshotEntry{{RFP: r1}, {RFP: r1}}},
		},
		{
			"invalid rfp",
			Snapshot{Version: SnapshotVersion, Entries: []SnapshotEntry{{RFP: types.RFPProfile{URI: "R"}}}},
		},
		{
			"empty service key",
			Snapshot{Version: SnapshotVersion, Entries: []SnapshotEntry{{RFP: r1, Services: map[string]string{"": "p"}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := idx.Restore(tt.snap)
			testutil.AssertFault(t, err, fault.MalformedInput)
			assert.Equal(t, before.Entries, idx.Snapshot().Entries)
		})
	}
}
