package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// StreamReader consumes a request stream strictly: one header, non-empty data
// chunks, one trailer, then end of stream. Data is exposed as an io.Reader so
// it can be copied straight into a file.
type StreamReader struct {
	src     ChunkSource
	header  *Header
	trailer *Trailer
	pending []byte
	hasher  hash.Hash
	read    int64
	err     error
}

func NewStreamReader(src ChunkSource) *StreamReader {
	return &StreamReader{src: src, hasher: sha256.New()}
}

// Header receives the opening chunk if needed and returns its header.
func (r *StreamReader) Header() (*Header, error) {
	if r.header != nil {
		return r.header, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	chunk, err := r.src.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: stream ended before the header", ErrMalformedStream)
		}
		return nil, r.fail(err)
	}
	if err := chunk.Validate(); err != nil {
		return nil, r.fail(err)
	}
	if chunk.Kind != KindHeader {
		return nil, r.fail(fmt.Errorf("%w: expected header, got %s", ErrMalformedStream, chunk.Kind))
	}
	r.header = chunk.Header
	return r.header, nil
}

// Read implements io.Reader over the data chunks. It returns io.EOF only after
// a verified trailer and a clean end of stream.
func (r *StreamReader) Read(p []byte) (int, error) {
	if _, err := r.Header(); err != nil {
		return 0, err
	}
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if err := r.advance(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *StreamReader) advance() error {
	chunk, err := r.src.Recv()
	if errors.Is(err, io.EOF) {
		if r.trailer == nil {
			return r.fail(fmt.Errorf("%w: stream ended without a trailer", ErrMalformedStream))
		}
		return r.fail(io.EOF)
	}
	if err != nil {
		return r.fail(err)
	}
	if err := chunk.Validate(); err != nil {
		return r.fail(err)
	}
	if r.trailer != nil {
		return r.fail(fmt.Errorf("%w: %s chunk after trailer", ErrMalformedStream, chunk.Kind))
	}

	switch chunk.Kind {
	case KindData:
		r.hasher.Write(chunk.Data)
		r.read += int64(len(chunk.Data))
		r.pending = chunk.Data
	case KindTrailer:
		r.trailer = chunk.Trailer
		if r.trailer.Size != r.read {
			return r.fail(fmt.Errorf("%w: trailer announces %d bytes, received %d", ErrChecksumMismatch, r.trailer.Size, r.read))
		}
		if r.trailer.SHA256 != "" {
			if sum := hex.EncodeToString(r.hasher.Sum(nil)); sum != r.trailer.SHA256 {
				return r.fail(fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, r.trailer.SHA256, sum))
			}
		}
	default:
		return r.fail(fmt.Errorf("%w: unexpected %s chunk", ErrMalformedStream, chunk.Kind))
	}
	return nil
}

func (r *StreamReader) fail(err error) error {
	r.err = err
	return err
}

// Trailer returns the trailer once it has been received.
func (r *StreamReader) Trailer() *Trailer {
	return r.trailer
}

// BytesRead reports how many data bytes have been received.
func (r *StreamReader) BytesRead() int64 {
	return r.read
}
