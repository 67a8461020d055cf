package transfer

import (
	"bytes"
	"fmt"
	"io"
)

// Source supplies upload payload bytes. Seekable sources can serve any chunk
// range on demand, so chunks may be read concurrently and out of order.
// Forward-only sources can only be consumed front to back, which restricts
// the transfer to sequential execution.
type Source struct {
	readerAt io.ReaderAt
	stream   io.Reader
	size     int64
	sized    bool
}

// NewBytesSource wraps an in-memory payload. Size is always known.
func NewBytesSource(data []byte) *Source {
	return &Source{
		readerAt: bytes.NewReader(data),
		size:     int64(len(data)),
		sized:    true,
	}
}

// NewReaderAtSource wraps a random-access payload of known size, such as an
// open file.
func NewReaderAtSource(r io.ReaderAt, size int64) *Source {
	return &Source{readerAt: r, size: size, sized: true}
}

// NewStreamSource wraps a forward-only payload of unknown length. Chunks are
// carved off as the stream is consumed; the transfer runs sequentially.
func NewStreamSource(r io.Reader) *Source {
	return &Source{stream: r}
}

// Seekable reports whether arbitrary ranges can be read on demand.
func (s *Source) Seekable() bool {
	return s.readerAt != nil
}

// Size returns the payload size and whether it is known up front.
func (s *Source) Size() (int64, bool) {
	return s.size, s.sized
}

// ReadChunk fills buf with the bytes covered by d. For seekable sources this
// reads at d.Start directly; chunks never overlap so concurrent calls are
// safe. len(buf) must equal d.Length().
func (s *Source) ReadChunk(d ChunkDescriptor, buf []byte) error {
	if int64(len(buf)) != d.Length() {
		return NewChunkError(KindConfiguration, d.Index, "read",
			fmt.Errorf("buffer length %d does not match chunk length %d", len(buf), d.Length()))
	}
	if d.Length() == 0 {
		return nil
	}
	if s.readerAt == nil {
		return NewChunkError(KindConfiguration, d.Index, "read",
			fmt.Errorf("forward-only source cannot serve ranged reads"))
	}
	if _, err := s.readerAt.ReadAt(buf, d.Start); err != nil {
		return NewChunkError(KindTransport, d.Index, "read",
			fmt.Errorf("reading bytes %d-%d: %w", d.Start, d.End, err))
	}
	return nil
}

// ReadNext consumes up to len(buf) bytes from a forward-only source. It
// returns the number of bytes read; a short count means the stream is
// exhausted. Only valid for stream sources.
func (s *Source) ReadNext(buf []byte) (int64, error) {
	if s.stream == nil {
		return 0, NewError(KindConfiguration, "read",
			fmt.Errorf("source is not a forward-only stream"))
	}
	n, err := io.ReadFull(s.stream, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return int64(n), nil
	}
	if err != nil {
		return int64(n), NewError(KindTransport, "read",
			fmt.Errorf("reading stream: %w", err))
	}
	return int64(n), nil
}

// Sink receives download payload bytes. Random-access sinks accept chunks in
// any order; forward-only sinks require in-order delivery, so the coordinator
// restricts them to a single worker.
type Sink struct {
	writerAt io.WriterAt
	stream   io.Writer
}

// NewWriterAtSink wraps a random-access destination, such as a preallocated
// file. Chunks are written at their own offsets as they complete.
func NewWriterAtSink(w io.WriterAt) *Sink {
	return &Sink{writerAt: w}
}

// NewStreamSink wraps a forward-only destination. Bytes must arrive in
// ascending chunk order.
func NewStreamSink(w io.Writer) *Sink {
	return &Sink{stream: w}
}

// Seekable reports whether chunks may be written out of order.
func (s *Sink) Seekable() bool {
	return s.writerAt != nil
}

// WriteChunk stores the bytes covered by d. Seekable sinks write at d.Start;
// stream sinks append, so the caller is responsible for ordering.
func (s *Sink) WriteChunk(d ChunkDescriptor, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if s.writerAt != nil {
		if _, err := s.writerAt.WriteAt(data, d.Start); err != nil {
			return NewChunkError(KindTransport, d.Index, "write",
				fmt.Errorf("writing bytes %d-%d: %w", d.Start, d.End, err))
		}
		return nil
	}
	if _, err := s.stream.Write(data); err != nil {
		return NewChunkError(KindTransport, d.Index, "write",
			fmt.Errorf("writing bytes %d-%d: %w", d.Start, d.End, err))
	}
	return nil
}
