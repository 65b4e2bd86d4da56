package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// ChunkSource yields the chunks of a response stream in arrival order.
// Recv returns io.EOF once the stream ended cleanly.
type ChunkSource interface {
	Recv() (*Chunk, error)
}

// UnaryResult is the whole-file response of a single-shot call.
type UnaryResult interface {
	GetSuccess() bool
	GetFileContent() []byte
	GetStatusMessage() string
}

// Decoder reassembles a response into a sink. It owns the sink: every Decode
// or DecodeUnary call closes it before returning, whatever the outcome.
type Decoder struct {
	sink     io.WriteCloser
	verify   bool
	progress func(written int64)

	hasher  hash.Hash
	written int64
	chunks  int
	header  *Header
	trailer *Trailer
	closed  bool
}

type DecoderOption func(*Decoder)

// WithChecksumVerification toggles trailer verification (on by default).
func WithChecksumVerification(verify bool) DecoderOption {
	return func(d *Decoder) { d.verify = verify }
}

// WithWriteProgress registers a callback invoked after every successful write.
func WithWriteProgress(fn func(written int64)) DecoderOption {
	return func(d *Decoder) { d.progress = fn }
}

func NewDecoder(sink io.WriteCloser, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		sink:   sink,
		verify: true,
		hasher: sha256.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode drains src into the sink. The stream must be one header, data and one
// trailer, in that order; a stream that ends early is malformed even when the
// source reports a clean end. Decode stops at the first receive, write or
// verification failure and nothing is written after that point.
func (d *Decoder) Decode(src ChunkSource) (err error) {
	defer func() {
		if cerr := d.closeSink(); cerr != nil && err == nil {
			err = &Error{Category: CategoryIO, Op: "close output", Err: cerr}
		}
	}()

	for {
		chunk, err := src.Recv()
		if errors.Is(err, io.EOF) {
			switch {
			case d.header == nil:
				return malformed("stream ended before the header")
			case d.trailer == nil:
				return malformed("stream ended without a trailer")
			}
			return nil
		}
		if err != nil {
			return err
		}
		if err := chunk.Validate(); err != nil {
			return &Error{Category: CategoryRemote, Op: "decode", Err: err}
		}
		if d.trailer != nil {
			return malformed("%s chunk after trailer", chunk.Kind)
		}
		if d.header == nil && chunk.Kind != KindHeader {
			return malformed("expected header, got %s", chunk.Kind)
		}

		switch chunk.Kind {
		case KindHeader:
			if d.header != nil {
				return malformed("duplicate header")
			}
			d.header = chunk.Header
		case KindData:
			if err := d.write(chunk.Data); err != nil {
				return err
			}
		case KindTrailer:
			d.trailer = chunk.Trailer
			if err := d.checkTrailer(); err != nil {
				return err
			}
		}
	}
}

func malformed(format string, args ...any) error {
	return &Error{Category: CategoryRemote, Op: "decode", Err: fmt.Errorf("%w: "+format, append([]any{ErrMalformedStream}, args...)...)}
}

// DecodeUnary writes a single-shot response. A response reporting failure
// writes nothing and is returned as a remote error carrying its message.
func (d *Decoder) DecodeUnary(resp UnaryResult) (err error) {
	defer func() {
		if cerr := d.closeSink(); cerr != nil && err == nil {
			err = &Error{Category: CategoryIO, Op: "close output", Err: cerr}
		}
	}()

	if resp == nil {
		return &Error{Category: CategoryRemote, Op: "decode", Err: errors.New("empty response")}
	}
	if !resp.GetSuccess() {
		msg := resp.GetStatusMessage()
		if msg == "" {
			msg = "remote reported failure"
		}
		return &Error{Category: CategoryRemote, Op: "decode", Err: errors.New(msg)}
	}
	content := resp.GetFileContent()
	if len(content) == 0 {
		return nil
	}
	return d.write(content)
}

func (d *Decoder) write(p []byte) error {
	n, err := d.sink.Write(p)
	if err != nil {
		return &Error{Category: CategoryIO, Op: "write output", Err: err}
	}
	if n != len(p) {
		return &Error{Category: CategoryIO, Op: "write output", Err: io.ErrShortWrite}
	}
	d.hasher.Write(p)
	d.written += int64(n)
	d.chunks++
	if d.progress != nil {
		d.progress(d.written)
	}
	return nil
}

func (d *Decoder) checkTrailer() error {
	if !d.verify || d.trailer.SHA256 == "" {
		return nil
	}
	if d.trailer.Size != d.written {
		return &Error{Category: CategoryTransport, Op: "verify", Err: fmt.Errorf("%w: trailer announces %d bytes, received %d", ErrChecksumMismatch, d.trailer.Size, d.written)}
	}
	if sum := hex.EncodeToString(d.hasher.Sum(nil)); sum != d.trailer.SHA256 {
		return &Error{Category: CategoryTransport, Op: "verify", Err: fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, d.trailer.SHA256, sum)}
	}
	return nil
}

func (d *Decoder) closeSink() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.sink.Close()
}

// Written reports the number of bytes written to the sink.
func (d *Decoder) Written() int64 {
	return d.written
}

// DataChunks reports the number of payloads written to the sink.
func (d *Decoder) DataChunks() int {
	return d.chunks
}

// Header returns the response header, if the remote sent one.
func (d *Decoder) Header() *Header {
	return d.header
}

// Trailer returns the response trailer, if the remote sent one.
func (d *Decoder) Trailer() *Trailer {
	return d.trailer
}
