package paging

import (
	"context"
	"fmt"
	"strconv"
	"testing"
)

// sliceFetcher pages over a fixed item slice using the numeric start index
// as the continuation token.
func sliceFetcher(items []string) Fetcher[string] {
	return func(ctx context.Context, token string, pageSize int) (Page[string], error) {
		start := 0
		if token != "" {
			var err error
			start, err = strconv.Atoi(token)
			if err != nil {
				return Page[string]{}, fmt.Errorf("bad token %q: %w", token, err)
			}
		}
		end := start + pageSize
		if end > len(items) {
			end = len(items)
		}
		page := Page[string]{Items: items[start:end]}
		if end < len(items) {
			page.Token = strconv.Itoa(end)
		}
		return page, nil
	}
}

func names(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("obj-%03d", i)
	}
	return out
}

func TestCursorWalksAllPages(t *testing.T) {
	items := names(25)
	c := NewCursor(sliceFetcher(items), 10)

	var got []string
	pages := 0
	for {
		page, ok, err := c.NextPage(context.Background())
		if err != nil {
			t.Fatalf("NextPage failed: %v", err)
		}
		if !ok {
			break
		}
		pages++
		got = append(got, page.Items...)
	}
	if pages != 3 {
		t.Errorf("expected 3 pages, got %d", pages)
	}
	if len(got) != len(items) {
		t.Fatalf("got %d items, want %d", len(got), len(items))
	}
	for i := range got {
		if got[i] != items[i] {
			t.Fatalf("item %d = %q, want %q", i, got[i], items[i])
		}
	}
}

func TestCursorExhaustedStaysExhausted(t *testing.T) {
	c := NewCursor(sliceFetcher(names(5)), 10)
	if _, ok, err := c.NextPage(context.Background()); err != nil || !ok {
		t.Fatalf("first page: ok=%v err=%v", ok, err)
	}
	for i := 0; i < 3; i++ {
		page, ok, err := c.NextPage(context.Background())
		if err != nil {
			t.Fatalf("post-exhaustion call errored: %v", err)
		}
		if ok || len(page.Items) != 0 {
			t.Fatal("exhausted cursor must keep returning empty pages")
		}
	}
	if !c.Exhausted() {
		t.Error("cursor should report exhausted")
	}
}

func TestCursorEmptyListing(t *testing.T) {
	c := NewCursor(sliceFetcher(nil), 10)
	page, ok, err := c.NextPage(context.Background())
	if err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	if !ok {
		t.Fatal("an empty listing still yields one terminal page")
	}
	if len(page.Items) != 0 || page.Token != "" {
		t.Errorf("unexpected page: %+v", page)
	}
	if _, ok, _ := c.NextPage(context.Background()); ok {
		t.Error("cursor should be exhausted after the terminal page")
	}
}

func TestCursorResume(t *testing.T) {
	items := names(30)
	first := NewCursor(sliceFetcher(items), 10)
	if _, _, err := first.NextPage(context.Background()); err != nil {
		t.Fatalf("NextPage failed: %v", err)
	}
	token := first.Token()
	if token == "" {
		t.Fatal("expected a continuation token after a partial walk")
	}

	resumed := ResumeCursor(sliceFetcher(items), token, 10)
	rest, err := resumed.All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rest) != 20 {
		t.Fatalf("resumed walk returned %d items, want 20", len(rest))
	}
	if rest[0] != items[10] {
		t.Errorf("resumed walk started at %q, want %q", rest[0], items[10])
	}
}

func TestCursorAll(t *testing.T) {
	items := names(42)
	got, err := NewCursor(sliceFetcher(items), 10).All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 42 {
		t.Fatalf("got %d items, want 42", len(got))
	}
}

func TestCursorFetchError(t *testing.T) {
	calls := 0
	fail := func(ctx context.Context, token string, pageSize int) (Page[string], error) {
		calls++
		return Page[string]{}, fmt.Errorf("listing backend unavailable")
	}
	c := NewCursor(fail, 10)
	if _, _, err := c.NextPage(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if c.Exhausted() {
		t.Error("a failed fetch must not mark the cursor exhausted")
	}
	// The caller may retry the same page.
	if _, _, err := c.NextPage(context.Background()); err == nil {
		t.Fatal("expected error on retry")
	}
	if calls != 2 {
		t.Errorf("expected 2 fetch calls, got %d", calls)
	}
}
