package client

import (
	"encoding/json"
	"os"
	"time"

	"github.com/meridian-labs/transit/internal/constants"
	"github.com/meridian-labs/transit/internal/remote"
)

// resumeState is the sidecar record for a partially downloaded file. It is
// only honored when the remote object still matches the version it was
// written for.
type resumeState struct {
	Key       string    `json:"key"`
	ETag      string    `json:"etag"`
	TotalSize int64     `json:"totalSize"`
	ChunkSize int64     `json:"chunkSize"`
	Completed []int64   `json:"completed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func resumePath(path string) string {
	return path + ".transit-resume"
}

// loadResumeState reads the sidecar next to path and returns it with the set
// of completed chunk indexes. A missing, stale, or mismatched sidecar yields
// a fresh state and an empty set.
func loadResumeState(path string, info remote.ObjectInfo, chunkSize int64) (*resumeState, map[int64]bool) {
	fresh := &resumeState{
		Key:       info.Key,
		ETag:      info.ETag,
		TotalSize: info.Size,
		ChunkSize: chunkSize,
	}

	data, err := os.ReadFile(resumePath(path))
	if err != nil {
		return fresh, nil
	}

	var st resumeState
	if err := json.Unmarshal(data, &st); err != nil {
		return fresh, nil
	}
	if time.Since(st.UpdatedAt) > constants.ResumeStateMaxAge {
		return fresh, nil
	}
	// The layout of chunk ranges depends on all three of these; any change
	// invalidates the recorded indexes.
	if st.ETag != info.ETag || st.TotalSize != info.Size || st.ChunkSize != chunkSize {
		return fresh, nil
	}

	completed := make(map[int64]bool, len(st.Completed))
	for _, idx := range st.Completed {
		completed[idx] = true
	}
	return &st, completed
}

func (s *resumeState) markDone(index int64) {
	s.Completed = append(s.Completed, index)
}

// save writes the sidecar atomically so a crash mid-write never leaves a
// truncated record.
func (s *resumeState) save(path string) error {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	tmp := resumePath(path) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, resumePath(path))
}

func (s *resumeState) remove(path string) {
	os.Remove(resumePath(path))
}
