// Package httpstore implements the object store over a plain S3-compatible
// JSON/REST endpoint. It is the reference backend: everything goes through
// ordinary HTTP requests, which also makes it the backend of choice for
// tests against httptest servers.
package httpstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/meridian-labs/transit/internal/conditional"
	transithttp "github.com/meridian-labs/transit/internal/http"
	"github.com/meridian-labs/transit/internal/logging"
	"github.com/meridian-labs/transit/internal/paging"
	"github.com/meridian-labs/transit/internal/remote"
	"github.com/meridian-labs/transit/internal/transfer"
)

// Options configures a Store.
type Options struct {
	// Endpoint is the service base URL, e.g. "https://storage.example.com".
	Endpoint string
	// Bucket is the container all keys resolve under.
	Bucket string
	// Token is an optional bearer token sent on every request.
	Token string
	// Proxy selects the outbound proxy mode.
	Proxy transithttp.ProxyOptions
	// Client overrides the HTTP client, used by tests. When nil a retrying
	// client is built from Proxy.
	Client *nethttp.Client
}

// Store talks to one bucket on an S3-compatible HTTP endpoint.
type Store struct {
	base   *url.URL
	bucket string
	token  string
	client *nethttp.Client
	log    *logging.Logger
}

// New validates the endpoint and builds the retrying HTTP client.
func New(opts Options) (*Store, error) {
	if opts.Endpoint == "" {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			errors.New("endpoint is required"))
	}
	if opts.Bucket == "" {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			errors.New("bucket is required"))
	}
	base, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			fmt.Errorf("parsing endpoint %q: %w", opts.Endpoint, err))
	}

	client := opts.Client
	if client == nil {
		plain, err := transithttp.NewClient(opts.Proxy)
		if err != nil {
			return nil, err
		}
		// Per-attempt ceiling; the retry layer above issues fresh attempts.
		plain.Timeout = transithttp.RequestTimeout
		client = transithttp.NewRetryingClient(plain)
	}

	log := logging.NewDefault().WithField("backend", "http")
	return &Store{base: base, bucket: opts.Bucket, token: opts.Token, client: client, log: log}, nil
}

func (s *Store) objectURL(key string, query url.Values) string {
	u := *s.base
	u.Path, _ = url.JoinPath(u.Path, s.bucket, key)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (s *Store) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			fmt.Errorf("building %s request: %w", method, err))
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

// wrapErr classifies a transport-level failure from the HTTP client.
func wrapErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return transfer.NewError(transfer.KindTimeout, op, err)
	}
	return transfer.NewError(transfer.KindTransport, op, err)
}

// Props issues a HEAD and decodes the standard metadata headers.
func (s *Store) Props(ctx context.Context, key string) (remote.ObjectInfo, error) {
	req, err := s.newRequest(ctx, nethttp.MethodHead, s.objectURL(key, nil), nil)
	if err != nil {
		return remote.ObjectInfo{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return remote.ObjectInfo{}, wrapErr("props", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return remote.ObjectInfo{}, conditional.StatusError("props", resp.StatusCode)
	}

	info := remote.ObjectInfo{
		Key:         key,
		ETag:        resp.Header.Get("ETag"),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		info.Size, _ = strconv.ParseInt(cl, 10, 64)
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		info.LastModified, _ = time.Parse(nethttp.TimeFormat, lm)
	}
	return info, nil
}

// ReadRange issues one ranged GET. A full-object read of a zero-length
// object arrives as start 0, end -1 and is sent without a Range header.
func (s *Store) ReadRange(ctx context.Context, key string, start, end int64, pre conditional.Preconditions) (*transfer.ChunkPayload, error) {
	req, err := s.newRequest(ctx, nethttp.MethodGet, s.objectURL(key, nil), nil)
	if err != nil {
		return nil, err
	}
	if end >= start {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	}
	pre.Apply(req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapErr("download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusPartialContent {
		io.Copy(io.Discard, resp.Body)
		return nil, conditional.StatusError("download", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapErr("download", err)
	}
	payload := &transfer.ChunkPayload{Data: body, Meta: metaFromHeader(resp.Header)}
	if h := resp.Header.Get("Content-MD5"); h != "" {
		if decoded, err := base64.StdEncoding.DecodeString(h); err == nil {
			payload.MD5 = decoded
		}
	}
	return payload, nil
}

// metaFromHeader pulls the object metadata out of standard response headers.
func metaFromHeader(h nethttp.Header) transfer.ChunkMeta {
	meta := transfer.ChunkMeta{ETag: h.Get("ETag")}
	if lm := h.Get("Last-Modified"); lm != "" {
		meta.LastModified, _ = time.Parse(nethttp.TimeFormat, lm)
	}
	return meta
}

// Put writes the whole object in one request.
func (s *Store) Put(ctx context.Context, key string, data []byte, sum []byte, pre conditional.Preconditions) (transfer.ChunkMeta, error) {
	req, err := s.newRequest(ctx, nethttp.MethodPut, s.objectURL(key, nil), bytes.NewReader(data))
	if err != nil {
		return transfer.ChunkMeta{}, err
	}
	req.ContentLength = int64(len(data))
	if sum != nil {
		req.Header.Set("Content-MD5", base64.StdEncoding.EncodeToString(sum))
	}
	pre.Apply(req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return transfer.ChunkMeta{}, wrapErr("upload", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusOK, nethttp.StatusCreated, nethttp.StatusNoContent:
		return metaFromHeader(resp.Header), nil
	default:
		return transfer.ChunkMeta{}, conditional.StatusError("upload", resp.StatusCode)
	}
}

// uploadSession is a server-side multipart upload identified by uploadId.
type uploadSession struct {
	store    *Store
	key      string
	uploadID string

	mu    sync.Mutex
	parts []completedPart
}

type completedPart struct {
	PartNumber int64  `json:"partNumber"`
	ETag       string `json:"etag"`
}

// BeginUpload opens a multipart upload and returns the session.
func (s *Store) BeginUpload(ctx context.Context, key string) (remote.UploadSession, error) {
	q := url.Values{"uploads": {""}}
	req, err := s.newRequest(ctx, nethttp.MethodPost, s.objectURL(key, q), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, wrapErr("upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusCreated {
		return nil, conditional.StatusError("upload", resp.StatusCode)
	}
	var initiated struct {
		UploadID string `json:"uploadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&initiated); err != nil {
		return nil, transfer.NewError(transfer.KindTransport, "upload",
			fmt.Errorf("decoding upload initiation: %w", err))
	}
	if initiated.UploadID == "" {
		return nil, transfer.NewError(transfer.KindTransport, "upload",
			errors.New("server returned an empty upload id"))
	}

	s.log.Debugf("opened multipart upload %s for %s", initiated.UploadID, key)
	return &uploadSession{store: s, key: key, uploadID: initiated.UploadID}, nil
}

// UploadChunk stores one part. Part numbers are 1-based, derived from the
// chunk index.
func (u *uploadSession) UploadChunk(ctx context.Context, d transfer.ChunkDescriptor, data []byte, sum []byte) (transfer.ChunkMeta, error) {
	part := d.Index + 1
	q := url.Values{
		"uploadId":   {u.uploadID},
		"partNumber": {strconv.FormatInt(part, 10)},
	}
	req, err := u.store.newRequest(ctx, nethttp.MethodPut, u.store.objectURL(u.key, q), bytes.NewReader(data))
	if err != nil {
		return transfer.ChunkMeta{}, err
	}
	req.ContentLength = int64(len(data))
	if sum != nil {
		req.Header.Set("Content-MD5", base64.StdEncoding.EncodeToString(sum))
	}

	resp, err := u.store.client.Do(req)
	if err != nil {
		return transfer.ChunkMeta{}, wrapErr("upload", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusCreated {
		return transfer.ChunkMeta{}, conditional.StatusError("upload", resp.StatusCode)
	}

	u.mu.Lock()
	u.parts = append(u.parts, completedPart{PartNumber: part, ETag: resp.Header.Get("ETag")})
	u.mu.Unlock()
	return metaFromHeader(resp.Header), nil
}

// Commit completes the upload with the part list sorted by part number.
func (u *uploadSession) Commit(ctx context.Context) error {
	u.mu.Lock()
	parts := make([]completedPart, len(u.parts))
	copy(parts, u.parts)
	u.mu.Unlock()
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	payload, err := json.Marshal(struct {
		Parts []completedPart `json:"parts"`
	}{Parts: parts})
	if err != nil {
		return transfer.NewError(transfer.KindConfiguration, "upload",
			fmt.Errorf("encoding part list: %w", err))
	}

	q := url.Values{"uploadId": {u.uploadID}}
	req, err := u.store.newRequest(ctx, nethttp.MethodPost, u.store.objectURL(u.key, q), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.store.client.Do(req)
	if err != nil {
		return wrapErr("upload", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusCreated {
		return conditional.StatusError("upload", resp.StatusCode)
	}
	return nil
}

// Abort discards the upload. Best effort: a 404 means the server already
// cleaned it up.
func (u *uploadSession) Abort(ctx context.Context) error {
	q := url.Values{"uploadId": {u.uploadID}}
	req, err := u.store.newRequest(ctx, nethttp.MethodDelete, u.store.objectURL(u.key, q), nil)
	if err != nil {
		return err
	}
	resp, err := u.store.client.Do(req)
	if err != nil {
		return wrapErr("upload", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusOK, nethttp.StatusNoContent, nethttp.StatusNotFound:
		return nil
	default:
		return conditional.StatusError("upload", resp.StatusCode)
	}
}

// ListPage fetches one listing page.
func (s *Store) ListPage(ctx context.Context, prefix, token string, pageSize int) (paging.Page[remote.ObjectItem], error) {
	u := *s.base
	u.Path, _ = url.JoinPath(u.Path, s.bucket)
	q := url.Values{"list-type": {"2"}}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if token != "" {
		q.Set("continuation-token", token)
	}
	if pageSize > 0 {
		q.Set("max-keys", strconv.Itoa(pageSize))
	}
	u.RawQuery = q.Encode()

	req, err := s.newRequest(ctx, nethttp.MethodGet, u.String(), nil)
	if err != nil {
		return paging.Page[remote.ObjectItem]{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return paging.Page[remote.ObjectItem]{}, wrapErr("list", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return paging.Page[remote.ObjectItem]{}, conditional.StatusError("list", resp.StatusCode)
	}

	var listing struct {
		Items []struct {
			Key          string    `json:"key"`
			Size         int64     `json:"size"`
			ETag         string    `json:"etag"`
			LastModified time.Time `json:"lastModified"`
		} `json:"items"`
		NextToken string `json:"nextToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return paging.Page[remote.ObjectItem]{}, transfer.NewError(transfer.KindTransport, "list",
			fmt.Errorf("decoding listing: %w", err))
	}

	page := paging.Page[remote.ObjectItem]{Token: listing.NextToken}
	for _, it := range listing.Items {
		page.Items = append(page.Items, remote.ObjectItem{
			Key:          it.Key,
			Size:         it.Size,
			ETag:         it.ETag,
			LastModified: it.LastModified,
		})
	}
	return page, nil
}

// Delete removes an object; a 404 is treated as success.
func (s *Store) Delete(ctx context.Context, key string) error {
	req, err := s.newRequest(ctx, nethttp.MethodDelete, s.objectURL(key, nil), nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return wrapErr("delete", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusOK, nethttp.StatusNoContent, nethttp.StatusNotFound:
		return nil
	default:
		return conditional.StatusError("delete", resp.StatusCode)
	}
}
