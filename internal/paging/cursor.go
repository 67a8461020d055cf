// Package paging provides a resumable cursor over marker-paginated listing
// APIs.
package paging

import (
	"context"
	"fmt"

	"github.com/meridian-labs/transit/internal/constants"
	"github.com/meridian-labs/transit/internal/transfer"
)

// Page is one fetched listing page. Token is the opaque continuation marker
// for the page after this one; empty means this page is the last.
type Page[T any] struct {
	Items []T
	Token string
}

// Fetcher retrieves one page starting at token (empty for the first page).
// pageSize is a hint only; servers may return fewer or more items.
type Fetcher[T any] func(ctx context.Context, token string, pageSize int) (Page[T], error)

// Cursor walks a paginated listing one page at a time. It is not safe for
// concurrent use. A cursor can be created mid-listing from a previously
// observed continuation token, so long listings survive process restarts.
type Cursor[T any] struct {
	fetch    Fetcher[T]
	token    string
	pageSize int
	pages    int
	done     bool
}

// NewCursor starts a listing from the beginning. pageSize <= 0 uses the
// default page size.
func NewCursor[T any](fetch Fetcher[T], pageSize int) *Cursor[T] {
	if pageSize <= 0 {
		pageSize = constants.DefaultPageSize
	}
	return &Cursor[T]{fetch: fetch, pageSize: pageSize}
}

// ResumeCursor continues a listing from a continuation token captured
// earlier, e.g. by Token after a partial walk. An empty token is equivalent
// to NewCursor.
func ResumeCursor[T any](fetch Fetcher[T], token string, pageSize int) *Cursor[T] {
	c := NewCursor(fetch, pageSize)
	c.token = token
	return c
}

// NextPage fetches the next page. Once the listing is exhausted it returns
// an empty page with ok=false, and keeps doing so on further calls; it never
// errors just because the caller walked past the end.
func (c *Cursor[T]) NextPage(ctx context.Context) (Page[T], bool, error) {
	if c.done {
		return Page[T]{}, false, nil
	}
	if c.pages >= constants.MaxPaginationPages {
		c.done = true
		return Page[T]{}, false, transfer.NewError(transfer.KindConfiguration, "list",
			fmt.Errorf("listing exceeded %d pages, aborting to avoid an unbounded walk", constants.MaxPaginationPages))
	}

	page, err := c.fetch(ctx, c.token, c.pageSize)
	if err != nil {
		return Page[T]{}, false, err
	}
	c.pages++
	c.token = page.Token
	if page.Token == "" {
		c.done = true
	}
	return page, true, nil
}

// Token returns the continuation marker positioned after the last fetched
// page. Persist it to resume the listing later with ResumeCursor.
func (c *Cursor[T]) Token() string {
	return c.token
}

// Exhausted reports whether the listing has been fully consumed.
func (c *Cursor[T]) Exhausted() bool {
	return c.done
}

// All drains the remaining pages into a single slice.
func (c *Cursor[T]) All(ctx context.Context) ([]T, error) {
	var items []T
	for {
		page, ok, err := c.NextPage(ctx)
		if err != nil {
			return items, err
		}
		if !ok {
			return items, nil
		}
		items = append(items, page.Items...)
	}
}
