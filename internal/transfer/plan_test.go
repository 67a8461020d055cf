package transfer

import (
	"testing"
)

func TestBuildPlanChunked(t *testing.T) {
	cfg := Config{ChunkSize: 1024, SingleShotThreshold: 512, Concurrency: 4}
	plan, err := BuildPlan(2048, cfg)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(plan.Chunks))
	}
	first, second := plan.Chunks[0], plan.Chunks[1]
	if first.Start != 0 || first.End != 1023 || first.Final {
		t.Errorf("unexpected first chunk: %+v", first)
	}
	if second.Start != 1024 || second.End != 2047 || !second.Final {
		t.Errorf("unexpected second chunk: %+v", second)
	}
}

func TestBuildPlanRemainder(t *testing.T) {
	cfg := Config{ChunkSize: 1024, SingleShotThreshold: 512, Concurrency: 4}
	plan, err := BuildPlan(2500, cfg)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(plan.Chunks))
	}
	last := plan.Chunks[2]
	if last.Start != 2048 || last.End != 2499 || last.Length() != 452 {
		t.Errorf("unexpected final chunk: %+v", last)
	}
	if !last.Final {
		t.Error("final chunk not flagged")
	}

	var covered int64
	for i, d := range plan.Chunks {
		covered += d.Length()
		if int64(i) != d.Index {
			t.Errorf("chunk %d has index %d", i, d.Index)
		}
	}
	if covered != 2500 {
		t.Errorf("chunks cover %d bytes, want 2500", covered)
	}
}

func TestBuildPlanSingleShot(t *testing.T) {
	cfg := Config{ChunkSize: 1024, SingleShotThreshold: 4096, Concurrency: 4}
	plan, err := BuildPlan(2048, cfg)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan.Chunks) != 1 {
		t.Fatalf("expected 1 chunk at or below threshold, got %d", len(plan.Chunks))
	}
	d := plan.Chunks[0]
	if d.Start != 0 || d.End != 2047 || !d.Final {
		t.Errorf("unexpected descriptor: %+v", d)
	}
}

func TestBuildPlanZeroSize(t *testing.T) {
	cfg := Config{ChunkSize: 1024, SingleShotThreshold: 512, Concurrency: 4}
	plan, err := BuildPlan(0, cfg)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if len(plan.Chunks) != 1 {
		t.Fatalf("expected a single zero-length chunk, got %d chunks", len(plan.Chunks))
	}
	d := plan.Chunks[0]
	if d.Length() != 0 || !d.Final {
		t.Errorf("unexpected zero-size descriptor: %+v", d)
	}
}

func TestBuildPlanRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		size int64
	}{
		{"zero chunk size", Config{ChunkSize: 0, Concurrency: 1}, 100},
		{"negative chunk size", Config{ChunkSize: -1, Concurrency: 1}, 100},
		{"zero concurrency", Config{ChunkSize: 1024, Concurrency: 0}, 100},
		{"negative size", Config{ChunkSize: 1024, Concurrency: 1}, -1},
		{"negative threshold", Config{ChunkSize: 1024, SingleShotThreshold: -1, Concurrency: 1}, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildPlan(tc.size, tc.cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsConfiguration(err) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestBuildPlanChunkCountLimit(t *testing.T) {
	cfg := Config{ChunkSize: 1, SingleShotThreshold: 0, Concurrency: 1}
	_, err := BuildPlan(1<<20, cfg)
	if err == nil {
		t.Fatal("expected chunk count limit error")
	}
	if !IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestIncrementalPlanner(t *testing.T) {
	cfg := Config{ChunkSize: 1024, Concurrency: 1}
	p, err := NewIncrementalPlanner(cfg)
	if err != nil {
		t.Fatalf("NewIncrementalPlanner failed: %v", err)
	}

	d0, err := p.Next(1024)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if d0.Index != 0 || d0.Start != 0 || d0.End != 1023 || d0.Final {
		t.Errorf("unexpected first descriptor: %+v", d0)
	}

	d1, err := p.Next(300)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if d1.Index != 1 || d1.Start != 1024 || d1.End != 1323 || !d1.Final {
		t.Errorf("unexpected short descriptor: %+v", d1)
	}
	if !p.Exhausted() {
		t.Error("planner should be exhausted after a short read")
	}

	if _, err := p.Next(100); err == nil {
		t.Error("expected error after exhaustion")
	}
}

func TestIncrementalPlannerEmptySource(t *testing.T) {
	p, err := NewIncrementalPlanner(Config{ChunkSize: 1024, Concurrency: 1})
	if err != nil {
		t.Fatalf("NewIncrementalPlanner failed: %v", err)
	}
	d, err := p.Next(0)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if d.Length() != 0 || !d.Final {
		t.Errorf("unexpected empty descriptor: %+v", d)
	}
}
