package transfer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink is an io.WriteCloser that remembers how it was used.
type recordingSink struct {
	buf              bytes.Buffer
	writes           int
	closed           bool
	writesAfterClose int
	failAfter        int // fail the write with this 1-based index; 0 never fails
}

func (s *recordingSink) Write(p []byte) (int, error) {
	if s.closed {
		s.writesAfterClose++
	}
	s.writes++
	if s.failAfter > 0 && s.writes == s.failAfter {
		return 0, errors.New("no space left on device")
	}
	return s.buf.Write(p)
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

// sliceSource replays chunks and then fails with err, or ends with io.EOF.
type sliceSource struct {
	chunks []*Chunk
	err    error
	pos    int
}

func (s *sliceSource) Recv() (*Chunk, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

type unaryResponse struct {
	success bool
	content []byte
	message string
}

func (r unaryResponse) GetSuccess() bool         { return r.success }
func (r unaryResponse) GetFileContent() []byte   { return r.content }
func (r unaryResponse) GetStatusMessage() string { return r.message }

func TestRoundTrip_IdentityCollaborator(t *testing.T) {
	for _, tc := range streamSizes {
		t.Run(tc.name, func(t *testing.T) {
			content := randomBytes(tc.size)
			enc, err := NewEncoder(bytes.NewReader(content), Header{Name: "file.bin"}, DefaultChunkSize)
			require.NoError(t, err)

			// The identity collaborator echoes the request chunks unchanged.
			echo := &sliceSource{chunks: drain(t, enc)}
			sink := &recordingSink{}
			dec := NewDecoder(sink)

			require.NoError(t, dec.Decode(echo))
			assert.True(t, bytes.Equal(content, sink.buf.Bytes()))
			assert.True(t, sink.closed)
			assert.Equal(t, int64(tc.size), dec.Written())
			require.NotNil(t, dec.Trailer())
			require.NotNil(t, dec.Header())
			assert.Equal(t, "file.bin", dec.Header().Name)
		})
	}
}

func TestDecoder_MidStreamFailure(t *testing.T) {
	content := randomBytes(10 * DefaultChunkSize)
	enc, err := NewEncoder(bytes.NewReader(content), Header{Name: "big.bin"}, DefaultChunkSize)
	require.NoError(t, err)
	chunks := drain(t, enc)
	require.Len(t, chunks, 12)

	disconnect := errors.New("connection reset by peer")
	// Header plus three data chunks arrive, then the stream breaks.
	src := &sliceSource{chunks: chunks[:4], err: disconnect}
	sink := &recordingSink{}

	err = NewDecoder(sink).Decode(src)
	require.ErrorIs(t, err, disconnect)
	assert.Equal(t, 3, sink.writes, "no writes after the point of failure")
	assert.Equal(t, 3*DefaultChunkSize, sink.buf.Len())
	assert.True(t, sink.closed, "sink is closed on failure")
	assert.Zero(t, sink.writesAfterClose)
}

func TestDecoder_SinkWriteFailure(t *testing.T) {
	enc, err := NewEncoder(bytes.NewReader(randomBytes(3*DefaultChunkSize)), Header{Name: "x.bin"}, DefaultChunkSize)
	require.NoError(t, err)
	sink := &recordingSink{failAfter: 2}

	err = NewDecoder(sink).Decode(&sliceSource{chunks: drain(t, enc)})
	require.Error(t, err)
	assert.Equal(t, CategoryIO, CategoryOf(err))
	assert.Equal(t, 2, sink.writes)
	assert.True(t, sink.closed)
}

func TestDecoder_ChecksumMismatch(t *testing.T) {
	src := &sliceSource{chunks: []*Chunk{
		NewHeaderChunk("out.txt"),
		NewDataChunk([]byte("hello")),
		NewTrailerChunk(5, "0000"),
	}}
	sink := &recordingSink{}

	err := NewDecoder(sink).Decode(src)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.True(t, sink.closed)

	sink = &recordingSink{}
	src.pos = 0
	err = NewDecoder(sink, WithChecksumVerification(false)).Decode(src)
	assert.NoError(t, err)
	assert.Equal(t, "hello", sink.buf.String())
}

func TestDecoder_RejectsIncompleteStreams(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []*Chunk
		message string
		writes  int
	}{
		{"Empty stream", nil, "before the header", 0},
		{"Data without header", []*Chunk{NewDataChunk([]byte("abc"))}, "expected header", 0},
		{"Trailer without header", []*Chunk{NewTrailerChunk(0, "")}, "expected header", 0},
		{"Duplicate header", []*Chunk{NewHeaderChunk("a.txt"), NewHeaderChunk("b.txt")}, "duplicate header", 0},
		{
			"Missing trailer",
			[]*Chunk{NewHeaderChunk("out.txt"), NewDataChunk([]byte("abc")), NewDataChunk([]byte("def"))},
			"without a trailer",
			2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			err := NewDecoder(sink).Decode(&sliceSource{chunks: tt.chunks})

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedStream)
			assert.Equal(t, CategoryRemote, CategoryOf(err))
			assert.Contains(t, err.Error(), tt.message)
			assert.Equal(t, tt.writes, sink.writes)
			assert.True(t, sink.closed)
		})
	}
}

func TestDecoder_TrailerRequiredWithoutVerification(t *testing.T) {
	src := &sliceSource{chunks: []*Chunk{NewHeaderChunk("out.txt"), NewDataChunk([]byte("abc"))}}
	err := NewDecoder(&recordingSink{}, WithChecksumVerification(false)).Decode(src)
	assert.ErrorIs(t, err, ErrMalformedStream)
}

func TestDecoder_RejectsDataAfterTrailer(t *testing.T) {
	src := &sliceSource{chunks: []*Chunk{
		NewHeaderChunk("out.txt"),
		NewTrailerChunk(0, ""),
		NewDataChunk([]byte("late")),
	}}
	sink := &recordingSink{}

	err := NewDecoder(sink).Decode(src)
	assert.ErrorIs(t, err, ErrMalformedStream)
	assert.Zero(t, sink.buf.Len())
	assert.True(t, sink.closed)
}

func TestDecoder_Progress(t *testing.T) {
	enc, err := NewEncoder(bytes.NewReader(randomBytes(2*DefaultChunkSize+5)), Header{Name: "x.bin"}, DefaultChunkSize)
	require.NoError(t, err)

	var seen []int64
	dec := NewDecoder(&recordingSink{}, WithWriteProgress(func(written int64) {
		seen = append(seen, written)
	}))
	require.NoError(t, dec.Decode(&sliceSource{chunks: drain(t, enc)}))
	assert.Equal(t, []int64{DefaultChunkSize, 2 * DefaultChunkSize, 2*DefaultChunkSize + 5}, seen)
}

func TestDecodeUnary(t *testing.T) {
	t.Run("Failure writes nothing", func(t *testing.T) {
		sink := &recordingSink{}
		err := NewDecoder(sink).DecodeUnary(unaryResponse{success: false, content: []byte("junk"), message: "ghostscript exited with status 1"})

		require.Error(t, err)
		assert.Equal(t, CategoryRemote, CategoryOf(err))
		assert.Contains(t, err.Error(), "ghostscript exited with status 1")
		assert.Zero(t, sink.writes)
		assert.True(t, sink.closed)
	})

	t.Run("Success writes the payload once", func(t *testing.T) {
		sink := &recordingSink{}
		payload := randomBytes(3 * DefaultChunkSize)
		dec := NewDecoder(sink)

		require.NoError(t, dec.DecodeUnary(unaryResponse{success: true, content: payload}))
		assert.Equal(t, 1, sink.writes)
		assert.True(t, bytes.Equal(payload, sink.buf.Bytes()))
		assert.Equal(t, int64(len(payload)), dec.Written())
		assert.True(t, sink.closed)
	})

	t.Run("Nil response", func(t *testing.T) {
		sink := &recordingSink{}
		err := NewDecoder(sink).DecodeUnary(nil)
		assert.Equal(t, CategoryRemote, CategoryOf(err))
		assert.True(t, sink.closed)
	})
}
