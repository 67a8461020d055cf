package httpstore

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/meridian-labs/transit/internal/conditional"
	transithttp "github.com/meridian-labs/transit/internal/http"
	"github.com/meridian-labs/transit/internal/paging"
	"github.com/meridian-labs/transit/internal/remote"
	"github.com/meridian-labs/transit/internal/transfer"
)

func newTestStore(t *testing.T, handler nethttp.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New(Options{
		Endpoint: srv.URL,
		Bucket:   "data",
		Token:    "secret",
		Client:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestNewDefaultClientHasRequestCeiling(t *testing.T) {
	s, err := New(Options{Endpoint: "http://store.example", Bucket: "data"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rt, ok := s.client.Transport.(*retryablehttp.RoundTripper)
	if !ok {
		t.Fatalf("default client transport = %T, want retrying round tripper", s.client.Transport)
	}
	if got := rt.Client.HTTPClient.Timeout; got != transithttp.RequestTimeout {
		t.Errorf("per-attempt timeout = %v, want %v", got, transithttp.RequestTimeout)
	}
}

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(Options{Bucket: "b"}); !transfer.IsConfiguration(err) {
		t.Errorf("missing endpoint: got %v", err)
	}
	if _, err := New(Options{Endpoint: "http://x"}); !transfer.IsConfiguration(err) {
		t.Errorf("missing bucket: got %v", err)
	}
}

func TestProps(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/data/reports/q1.bin" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("authorization = %q", auth)
		}
		w.Header().Set("Content-Length", "2048")
		w.Header().Set("ETag", `"v7"`)
		w.Header().Set("Last-Modified", "Fri, 15 Mar 2024 12:30:00 GMT")
		w.Header().Set("Content-Type", "application/octet-stream")
	}))

	info, err := s.Props(context.Background(), "reports/q1.bin")
	if err != nil {
		t.Fatalf("Props failed: %v", err)
	}
	if info.Size != 2048 || info.ETag != `"v7"` {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.LastModified.IsZero() {
		t.Error("last-modified not parsed")
	}
}

func TestReadRange(t *testing.T) {
	payload := []byte("0123456789abcdef")
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if got := r.Header.Get("Range"); got != "bytes=4-7" {
			t.Errorf("Range = %q", got)
		}
		if got := r.Header.Get("If-Match"); got != `"v7"` {
			t.Errorf("If-Match = %q", got)
		}
		body := payload[4:8]
		sum := md5.Sum(body)
		w.Header().Set("Content-MD5", base64.StdEncoding.EncodeToString(sum[:]))
		w.WriteHeader(nethttp.StatusPartialContent)
		w.Write(body)
	}))

	pre := conditional.Preconditions{IfMatch: `"v7"`}
	payload2, err := s.ReadRange(context.Background(), "obj", 4, 7, pre)
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if string(payload2.Data) != "4567" {
		t.Errorf("data = %q", payload2.Data)
	}
	want := md5.Sum(payload2.Data)
	if payload2.MD5 == nil || string(payload2.MD5) != string(want[:]) {
		t.Error("MD5 not decoded from Content-MD5 header")
	}
}

func TestReadRangePreconditionFailed(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusPreconditionFailed)
	}))

	_, err := s.ReadRange(context.Background(), "obj", 0, 1023, conditional.Preconditions{IfMatch: `"stale"`})
	if !transfer.IsConditionNotMet(err) {
		t.Fatalf("expected condition-not-met, got %v", err)
	}
}

func TestReadRangeNotModified(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNotModified)
	}))

	_, err := s.ReadRange(context.Background(), "obj", 0, 1023, conditional.Preconditions{IfNoneMatch: `"v7"`})
	if !transfer.IsConditionNotMet(err) {
		t.Fatalf("expected condition-not-met, got %v", err)
	}
}

func TestReadRangeZeroLengthOmitsRangeHeader(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if _, ok := r.Header["Range"]; ok {
			t.Error("zero-length read must not send a Range header")
		}
		w.WriteHeader(nethttp.StatusOK)
	}))

	payload, err := s.ReadRange(context.Background(), "empty", 0, -1, conditional.Preconditions{})
	if err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if len(payload.Data) != 0 {
		t.Errorf("expected empty body, got %d bytes", len(payload.Data))
	}
}

func TestPut(t *testing.T) {
	payload := []byte("hello world")
	sum := md5.Sum(payload)

	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(payload) {
			t.Errorf("body = %q", body)
		}
		if got := r.Header.Get("Content-MD5"); got != base64.StdEncoding.EncodeToString(sum[:]) {
			t.Errorf("Content-MD5 = %q", got)
		}
		if got := r.Header.Get("If-None-Match"); got != "*" {
			t.Errorf("If-None-Match = %q", got)
		}
		w.Header().Set("ETag", `"new"`)
		w.WriteHeader(nethttp.StatusCreated)
	}))

	pre := conditional.Preconditions{IfNoneMatch: "*"}
	meta, err := s.Put(context.Background(), "obj", payload, sum[:], pre)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if meta.ETag != `"new"` {
		t.Errorf("etag = %q", meta.ETag)
	}
}

func TestMultipartUploadFlow(t *testing.T) {
	var committed struct {
		Parts []completedPart `json:"parts"`
	}
	parts := map[string][]byte{}

	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == nethttp.MethodPost && q.Has("uploads"):
			json.NewEncoder(w).Encode(map[string]string{"uploadId": "up-42"})
		case r.Method == nethttp.MethodPut && q.Get("uploadId") == "up-42":
			body, _ := io.ReadAll(r.Body)
			parts[q.Get("partNumber")] = body
			w.Header().Set("ETag", fmt.Sprintf(`"part-%s"`, q.Get("partNumber")))
		case r.Method == nethttp.MethodPost && q.Get("uploadId") == "up-42":
			json.NewDecoder(r.Body).Decode(&committed)
			w.WriteHeader(nethttp.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
			w.WriteHeader(nethttp.StatusBadRequest)
		}
	}))

	sess, err := s.BeginUpload(context.Background(), "big.bin")
	if err != nil {
		t.Fatalf("BeginUpload failed: %v", err)
	}

	// Upload out of order; the commit list must still be sorted.
	d1 := transfer.ChunkDescriptor{Index: 1, Start: 1024, End: 2047}
	d0 := transfer.ChunkDescriptor{Index: 0, Start: 0, End: 1023}
	if _, err := sess.UploadChunk(context.Background(), d1, []byte("second"), nil); err != nil {
		t.Fatalf("UploadChunk failed: %v", err)
	}
	if _, err := sess.UploadChunk(context.Background(), d0, []byte("first"), nil); err != nil {
		t.Fatalf("UploadChunk failed: %v", err)
	}
	if err := sess.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if string(parts["1"]) != "first" || string(parts["2"]) != "second" {
		t.Errorf("parts stored wrong: %v", parts)
	}
	if len(committed.Parts) != 2 {
		t.Fatalf("committed %d parts, want 2", len(committed.Parts))
	}
	if committed.Parts[0].PartNumber != 1 || committed.Parts[1].PartNumber != 2 {
		t.Errorf("commit list not sorted: %+v", committed.Parts)
	}
}

func TestAbortTolerates404(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodPost {
			json.NewEncoder(w).Encode(map[string]string{"uploadId": "gone"})
			return
		}
		w.WriteHeader(nethttp.StatusNotFound)
	}))

	sess, err := s.BeginUpload(context.Background(), "obj")
	if err != nil {
		t.Fatalf("BeginUpload failed: %v", err)
	}
	if err := sess.Abort(context.Background()); err != nil {
		t.Errorf("Abort should tolerate 404, got %v", err)
	}
}

func TestListPageWithCursor(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		q := r.URL.Query()
		if q.Get("list-type") != "2" || q.Get("prefix") != "logs/" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		start := 0
		if tok := q.Get("continuation-token"); tok != "" {
			start, _ = strconv.Atoi(tok)
		}
		type item struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		}
		var out struct {
			Items     []item `json:"items"`
			NextToken string `json:"nextToken"`
		}
		for i := start; i < start+2 && i < 5; i++ {
			out.Items = append(out.Items, item{Key: fmt.Sprintf("logs/%d", i), Size: int64(i)})
		}
		if start+2 < 5 {
			out.NextToken = strconv.Itoa(start + 2)
		}
		json.NewEncoder(w).Encode(out)
	}))

	fetch := func(ctx context.Context, token string, pageSize int) (paging.Page[remote.ObjectItem], error) {
		return s.ListPage(ctx, "logs/", token, pageSize)
	}
	items, err := paging.NewCursor(fetch, 2).All(context.Background())
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}
	if items[4].Key != "logs/4" {
		t.Errorf("last key = %s", items[4].Key)
	}
}

func TestDeleteMissingObject(t *testing.T) {
	s := newTestStore(t, nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusNotFound)
	}))
	if err := s.Delete(context.Background(), "nope"); err != nil {
		t.Errorf("Delete of missing object should succeed, got %v", err)
	}
}
