package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

var ErrIsDir = errors.New("cannot chunk a directory")

type encoderStage int

const (
	stageHeader encoderStage = iota
	stageData
	stageDone
)

// Encoder turns a byte source into header, data..., trailer. It is lazy:
// nothing is read until Next asks for a data chunk, and only one block is
// held at a time.
type Encoder struct {
	src       io.Reader
	closer    io.Closer
	header    Header
	chunkSize int
	buffer    []byte
	hasher    hash.Hash
	bytesRead int64
	chunks    int
	stage     encoderStage
	err       error
}

// NewEncoder wraps r. The caller keeps ownership of r.
func NewEncoder(r io.Reader, header Header, chunkSize int) (*Encoder, error) {
	if !IsValidChunkSize(chunkSize) {
		return nil, fmt.Errorf("chunk size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{
		src:       r,
		header:    header,
		chunkSize: chunkSize,
		buffer:    make([]byte, chunkSize),
		hasher:    sha256.New(),
	}, nil
}

// OpenEncoder opens path and encodes it under its base name. The encoder owns
// the file; call Close when done.
func OpenEncoder(path string, params []string, chunkSize int) (*Encoder, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrIsDir
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	enc, err := NewEncoder(file, Header{Name: filepath.Base(path), Params: params}, chunkSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	enc.closer = file
	return enc, nil
}

// Next returns the next chunk of the stream, or io.EOF once the trailer has
// been returned. A read failure ends the sequence: the same error is returned
// from then on.
func (e *Encoder) Next() (*Chunk, error) {
	if e.err != nil {
		return nil, e.err
	}

	switch e.stage {
	case stageHeader:
		e.stage = stageData
		params := append([]string(nil), e.header.Params...)
		return NewHeaderChunk(e.header.Name, params...), nil

	case stageData:
		n, err := io.ReadFull(e.src, e.buffer)
		if n > 0 {
			e.bytesRead += int64(n)
			e.chunks++
			e.hasher.Write(e.buffer[:n])

			// The buffer is reused for the next block, so hand out a copy.
			data := make([]byte, n)
			copy(data, e.buffer[:n])
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				// Surface the failure on the following call; this block is good.
				e.err = fmt.Errorf("reading %s: %w", e.header.Name, err)
			}
			return NewDataChunk(data), nil
		}
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			e.err = fmt.Errorf("reading %s: %w", e.header.Name, err)
			return nil, e.err
		}
		e.stage = stageDone
		return NewTrailerChunk(e.bytesRead, hex.EncodeToString(e.hasher.Sum(nil))), nil

	default:
		return nil, io.EOF
	}
}

// Header returns the header the stream opens with.
func (e *Encoder) Header() Header {
	return e.header
}

// BytesRead reports how many source bytes have been emitted as data chunks.
func (e *Encoder) BytesRead() int64 {
	return e.bytesRead
}

// DataChunks reports how many data chunks have been emitted.
func (e *Encoder) DataChunks() int {
	return e.chunks
}

// Close releases the source when the encoder opened it itself.
func (e *Encoder) Close() error {
	if e.closer == nil {
		return nil
	}
	err := e.closer.Close()
	e.closer = nil
	return err
}
