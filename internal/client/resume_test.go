package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/transit/internal/remote"
)

func sidecarFixture(t *testing.T, st *resumeState) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, st.save(path))
	return path
}

func TestLoadResumeStateMatching(t *testing.T) {
	saved := &resumeState{Key: "obj", ETag: "v1", TotalSize: 4096, ChunkSize: 1024,
		Completed: []int64{0, 2}}
	path := sidecarFixture(t, saved)

	info := remote.ObjectInfo{Key: "obj", ETag: "v1", Size: 4096}
	st, completed := loadResumeState(path, info, 1024)
	assert.Equal(t, map[int64]bool{0: true, 2: true}, completed)
	assert.Len(t, st.Completed, 2)
}

func TestLoadResumeStateMismatchDiscarded(t *testing.T) {
	cases := []struct {
		name string
		info remote.ObjectInfo
		csz  int64
	}{
		{"etag changed", remote.ObjectInfo{Key: "obj", ETag: "v2", Size: 4096}, 1024},
		{"size changed", remote.ObjectInfo{Key: "obj", ETag: "v1", Size: 8192}, 1024},
		{"chunk size changed", remote.ObjectInfo{Key: "obj", ETag: "v1", Size: 4096}, 2048},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			saved := &resumeState{Key: "obj", ETag: "v1", TotalSize: 4096, ChunkSize: 1024,
				Completed: []int64{0, 1}}
			path := sidecarFixture(t, saved)

			st, completed := loadResumeState(path, tc.info, tc.csz)
			assert.Empty(t, completed)
			assert.Empty(t, st.Completed)
			assert.Equal(t, tc.info.ETag, st.ETag)
		})
	}
}

func TestLoadResumeStateStaleDiscarded(t *testing.T) {
	saved := &resumeState{Key: "obj", ETag: "v1", TotalSize: 4096, ChunkSize: 1024,
		Completed: []int64{0}}
	path := sidecarFixture(t, saved)

	// Backdate the sidecar past the expiry window. save() stamps the current
	// time, so rewrite the record directly.
	saved.UpdatedAt = time.Now().Add(-8 * 24 * time.Hour)
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(resumePath(path), data, 0o644))

	_, completed := loadResumeState(path, remote.ObjectInfo{Key: "obj", ETag: "v1", Size: 4096}, 1024)
	assert.Empty(t, completed)
}

func TestLoadResumeStateCorruptSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, os.WriteFile(resumePath(path), []byte("{not json"), 0o644))

	st, completed := loadResumeState(path, remote.ObjectInfo{Key: "obj", ETag: "v1", Size: 4096}, 1024)
	assert.Empty(t, completed)
	assert.Equal(t, "v1", st.ETag)
}

func TestResumeStateRemove(t *testing.T) {
	saved := &resumeState{Key: "obj", ETag: "v1", TotalSize: 4096, ChunkSize: 1024}
	path := sidecarFixture(t, saved)

	saved.remove(path)
	_, err := os.Stat(resumePath(path))
	assert.True(t, os.IsNotExist(err))
}
