package transfer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		params   []string
		expected string
		wantErr  error
	}{
		{"Bare file name", "document.pdf", nil, "document.pdf", nil},
		{"Resize", "photo.jpg", []string{"300", "200"}, "photo.jpg|300|200", nil},
		{"Convert", "photo.jpg", []string{"png"}, "photo.jpg|png", nil},
		{"Delimiter in name", "a|b.jpg", []string{"png"}, "", ErrDelimiterInLabel},
		{"Delimiter in param", "a.jpg", []string{"p|ng"}, "", ErrDelimiterInLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := FormatLabel(tt.file, tt.params...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, label)

			name, params, err := ParseLabel(label)
			require.NoError(t, err)
			assert.Equal(t, tt.file, name)
			assert.Equal(t, tt.params, params)
		})
	}
}

func TestHeaderFromLabel(t *testing.T) {
	h, err := HeaderFromLabel("photo.jpg|300|200")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", h.Name)
	assert.Equal(t, []string{"300", "200"}, h.Params)
	assert.Equal(t, "photo.jpg|300|200", h.Label())

	_, err = HeaderFromLabel("|300")
	assert.Error(t, err)
	_, err = HeaderFromLabel("")
	assert.Error(t, err)
}

func TestChunkValidate(t *testing.T) {
	tests := []struct {
		name  string
		chunk *Chunk
		valid bool
	}{
		{"Header", NewHeaderChunk("a.pdf"), true},
		{"Data", NewDataChunk([]byte{1}), true},
		{"Trailer", NewTrailerChunk(0, ""), true},
		{"Nil", nil, false},
		{"Empty data", NewDataChunk(nil), false},
		{"Header with payload", &Chunk{Kind: KindHeader, Header: &Header{Name: "a"}, Data: []byte{1}}, false},
		{"Header without name", NewHeaderChunk(""), false},
		{"Trailer with payload", &Chunk{Kind: KindTrailer, Trailer: &Trailer{}, Data: []byte{1}}, false},
		{"Negative trailer size", NewTrailerChunk(-1, ""), false},
		{"Unknown kind", &Chunk{Kind: 42}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrMalformedStream)
			}
		})
	}
}

func TestStreamReader_ReadsWellFormedStream(t *testing.T) {
	content := randomBytes(3*DefaultChunkSize + 17)
	enc, err := NewEncoder(bytes.NewReader(content), Header{Name: "photo.jpg", Params: []string{"png"}}, DefaultChunkSize)
	require.NoError(t, err)

	r := NewStreamReader(&sliceSource{chunks: drain(t, enc)})
	h, err := r.Header()
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", h.Name)
	assert.Equal(t, []string{"png"}, h.Params)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	require.NotNil(t, r.Trailer())
	assert.Equal(t, int64(len(content)), r.BytesRead())
}

func TestStreamReader_RejectsMalformedStreams(t *testing.T) {
	hdr := NewHeaderChunk("a.pdf")
	data := NewDataChunk([]byte("abc"))
	trailer := NewTrailerChunk(3, "")

	tests := []struct {
		name    string
		chunks  []*Chunk
		wantErr error
	}{
		{"Empty stream", nil, ErrMalformedStream},
		{"Data before header", []*Chunk{data, trailer}, ErrMalformedStream},
		{"Two headers", []*Chunk{hdr, hdr, trailer}, ErrMalformedStream},
		{"No trailer", []*Chunk{hdr, data}, ErrMalformedStream},
		{"Data after trailer", []*Chunk{hdr, data, trailer, data}, ErrMalformedStream},
		{"Size mismatch", []*Chunk{hdr, data, NewTrailerChunk(4, "")}, ErrChecksumMismatch},
		{"Hash mismatch", []*Chunk{hdr, data, NewTrailerChunk(3, "beef")}, ErrChecksumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewStreamReader(&sliceSource{chunks: tt.chunks})
			_, err := io.ReadAll(r)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStreamReader_PropagatesTransportError(t *testing.T) {
	broken := errors.New("stream reset")
	r := NewStreamReader(&sliceSource{chunks: []*Chunk{NewHeaderChunk("a.pdf"), NewDataChunk([]byte("x"))}, err: broken})
	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, broken)
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		valid    bool
	}{
		{StateIdle, StateValidating, true},
		{StateIdle, StateStreaming, false},
		{StateValidating, StateStreaming, true},
		{StateValidating, StateFailed, true},
		{StateValidating, StateCompleted, false},
		{StateStreaming, StateCompleted, true},
		{StateStreaming, StateFailed, true},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Lifecycle(t *testing.T) {
	s := NewStatus()
	require.NoError(t, s.TransitionTo(StateValidating))
	require.NoError(t, s.TransitionTo(StateStreaming))

	boom := errors.New("boom")
	require.NoError(t, s.Fail(boom))
	assert.Equal(t, StateFailed, s.State)
	assert.Equal(t, boom, s.LastError)
	assert.NotNil(t, s.CompletionTime)
	assert.True(t, s.State.IsTerminal())

	assert.ErrorIs(t, s.TransitionTo(StateStreaming), ErrInvalidStateTransition)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryUnknown, CategoryOf(nil))
	assert.Equal(t, CategoryValidation, CategoryOf(Validationf("select", "unknown operation %q", "zip")))
	assert.Equal(t, CategoryUnknown, CategoryOf(errors.New("plain")))
	assert.Equal(t, "validation", CategoryValidation.String())
	assert.Equal(t, "io", CategoryIO.String())
}
