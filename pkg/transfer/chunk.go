package transfer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies which member of the chunk union is populated.
type Kind uint8

const (
	KindHeader Kind = iota + 1
	KindData
	KindTrailer
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindData:
		return "data"
	case KindTrailer:
		return "trailer"
	default:
		return "unknown"
	}
}

// Header opens every chunk stream. Params are ordered as the operation defines them.
type Header struct {
	Name   string   `cbor:"name" json:"name"`
	Params []string `cbor:"params,omitempty" json:"params,omitempty"`
}

// Trailer closes every chunk stream. Size and SHA256 describe the data
// payloads that preceded it; an empty SHA256 means the sender did not hash.
type Trailer struct {
	Size   int64  `cbor:"size" json:"size"`
	SHA256 string `cbor:"sha256,omitempty" json:"sha256,omitempty"`
}

// Chunk is one record of a transfer stream. Exactly one of Header, Data or
// Trailer is set, as selected by Kind.
type Chunk struct {
	Kind    Kind     `cbor:"kind" json:"kind"`
	Header  *Header  `cbor:"header,omitempty" json:"header,omitempty"`
	Data    []byte   `cbor:"data,omitempty" json:"data,omitempty"`
	Trailer *Trailer `cbor:"trailer,omitempty" json:"trailer,omitempty"`
}

var (
	// ErrMalformedStream is returned when a chunk sequence breaks the
	// header, data..., trailer ordering or a chunk is internally inconsistent.
	ErrMalformedStream = errors.New("malformed chunk stream")

	// ErrChecksumMismatch is returned when the reassembled bytes do not match the trailer.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

func NewHeaderChunk(name string, params ...string) *Chunk {
	return &Chunk{Kind: KindHeader, Header: &Header{Name: name, Params: params}}
}

func NewDataChunk(data []byte) *Chunk {
	return &Chunk{Kind: KindData, Data: data}
}

func NewTrailerChunk(size int64, sum string) *Chunk {
	return &Chunk{Kind: KindTrailer, Trailer: &Trailer{Size: size, SHA256: sum}}
}

// Validate checks that the chunk is a well-formed member of the union.
func (c *Chunk) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil chunk", ErrMalformedStream)
	}
	switch c.Kind {
	case KindHeader:
		if c.Header == nil || len(c.Data) > 0 || c.Trailer != nil {
			return fmt.Errorf("%w: header chunk must carry only a header", ErrMalformedStream)
		}
		return c.Header.Validate()
	case KindData:
		if len(c.Data) == 0 {
			return fmt.Errorf("%w: empty data chunk", ErrMalformedStream)
		}
		if c.Header != nil || c.Trailer != nil {
			return fmt.Errorf("%w: data chunk must carry only data", ErrMalformedStream)
		}
	case KindTrailer:
		if c.Trailer == nil || len(c.Data) > 0 || c.Header != nil {
			return fmt.Errorf("%w: trailer chunk must carry only a trailer", ErrMalformedStream)
		}
		if c.Trailer.Size < 0 {
			return fmt.Errorf("%w: negative trailer size", ErrMalformedStream)
		}
	default:
		return fmt.Errorf("%w: unknown chunk kind %d", ErrMalformedStream, c.Kind)
	}
	return nil
}

// Validate rejects names that are empty or carry directory components, so a
// receiver can use Name as a file name without sanitising it again.
func (h *Header) Validate() error {
	if h.Name == "" {
		return fmt.Errorf("%w: header has no file name", ErrMalformedStream)
	}
	if h.Name != filepath.Base(h.Name) || strings.ContainsAny(h.Name, `/\`) || h.Name == "." || h.Name == ".." {
		return fmt.Errorf("%w: header file name %q is not a base name", ErrMalformedStream, h.Name)
	}
	return nil
}

// Label renders the header in the legacy "name|param|param" form. It is only
// meant for logs; a name containing the delimiter is rendered verbatim.
func (h *Header) Label() string {
	if h == nil {
		return ""
	}
	return strings.Join(append([]string{h.Name}, h.Params...), LabelDelimiter)
}
