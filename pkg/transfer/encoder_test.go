package transfer

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestFile creates a temporary file with specified content for testing
// Works with both *testing.T and *testing.B using the common testing.TB interface
func setupTestFile(tb testing.TB, name string, content []byte) string {
	tb.Helper()

	filePath := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		tb.Fatalf("Failed to create test file: %v", err)
	}
	return filePath
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(int64(n) + 1)).Read(buf)
	return buf
}

// drain collects every chunk up to and including the trailer.
func drain(tb testing.TB, enc *Encoder) []*Chunk {
	tb.Helper()

	var chunks []*Chunk
	for {
		chunk, err := enc.Next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(tb, err)
		chunks = append(chunks, chunk)
	}
}

var streamSizes = []struct {
	name string
	size int
}{
	{"Empty", 0},
	{"One byte", 1},
	{"Exactly one chunk", DefaultChunkSize},
	{"One chunk plus one", DefaultChunkSize + 1},
	{"Ten chunks", 10 * DefaultChunkSize},
}

func TestEncoder_StreamShape(t *testing.T) {
	for _, tc := range streamSizes {
		t.Run(tc.name, func(t *testing.T) {
			content := randomBytes(tc.size)
			enc, err := NewEncoder(bytes.NewReader(content), Header{Name: "document.pdf"}, DefaultChunkSize)
			require.NoError(t, err)

			chunks := drain(t, enc)
			require.GreaterOrEqual(t, len(chunks), 2)

			first, last := chunks[0], chunks[len(chunks)-1]
			assert.Equal(t, KindHeader, first.Kind)
			assert.Equal(t, "document.pdf", first.Header.Name)
			assert.Empty(t, first.Data)
			assert.Equal(t, KindTrailer, last.Kind)
			assert.Empty(t, last.Data)
			assert.Equal(t, int64(tc.size), last.Trailer.Size)
			assert.NotEmpty(t, last.Trailer.SHA256)

			expectedData := (tc.size + DefaultChunkSize - 1) / DefaultChunkSize
			trailers := 0
			var joined []byte
			for _, c := range chunks[1 : len(chunks)-1] {
				require.NoError(t, c.Validate())
				assert.Equal(t, KindData, c.Kind)
				assert.LessOrEqual(t, len(c.Data), DefaultChunkSize)
				joined = append(joined, c.Data...)
			}
			for _, c := range chunks {
				if c.Kind == KindTrailer {
					trailers++
				}
			}
			assert.Equal(t, 1, trailers, "exactly one trailer")
			assert.Len(t, chunks, expectedData+2)
			assert.True(t, bytes.Equal(content, joined), "data payloads must reproduce the source")
			assert.Equal(t, int64(tc.size), enc.BytesRead())
			assert.Equal(t, expectedData, enc.DataChunks())

			// The sequence is finished and cannot restart.
			_, err = enc.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestEncoder_ZeroByteFile(t *testing.T) {
	path := setupTestFile(t, "empty.pdf", nil)
	enc, err := OpenEncoder(path, nil, DefaultChunkSize)
	require.NoError(t, err)
	defer enc.Close()

	chunks := drain(t, enc)
	require.Len(t, chunks, 2)
	assert.Equal(t, KindHeader, chunks[0].Kind)
	assert.Equal(t, KindTrailer, chunks[1].Kind)
	assert.Equal(t, int64(0), chunks[1].Trailer.Size)
}

func TestEncoder_HeaderCarriesParams(t *testing.T) {
	path := setupTestFile(t, "photo.jpg", []byte("not really a jpeg"))
	enc, err := OpenEncoder(path, []string{"300", "200"}, DefaultChunkSize)
	require.NoError(t, err)
	defer enc.Close()

	first, err := enc.Next()
	require.NoError(t, err)
	require.Equal(t, KindHeader, first.Kind)
	assert.Equal(t, "photo.jpg", first.Header.Name)
	assert.Equal(t, []string{"300", "200"}, first.Header.Params)
	assert.Equal(t, "photo.jpg|300|200", first.Header.Label())
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestEncoder_ReadErrorPropagates(t *testing.T) {
	readErr := errors.New("disk went away")
	src := &failingReader{data: randomBytes(DefaultChunkSize + 10), err: readErr}
	enc, err := NewEncoder(src, Header{Name: "a.bin"}, DefaultChunkSize)
	require.NoError(t, err)

	var kinds []Kind
	var gotErr error
	for {
		chunk, err := enc.Next()
		if err != nil {
			gotErr = err
			break
		}
		kinds = append(kinds, chunk.Kind)
	}

	assert.ErrorIs(t, gotErr, readErr)
	assert.NotContains(t, kinds, KindTrailer, "a failed source must not be terminated as if complete")

	// The failure is sticky.
	_, err = enc.Next()
	assert.ErrorIs(t, err, readErr)
}

func TestOpenEncoder_Errors(t *testing.T) {
	t.Run("Missing file", func(t *testing.T) {
		_, err := OpenEncoder(filepath.Join(t.TempDir(), "nope.pdf"), nil, DefaultChunkSize)
		require.Error(t, err)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := OpenEncoder(t.TempDir(), nil, DefaultChunkSize)
		assert.ErrorIs(t, err, ErrIsDir)
	})
}

func TestNewEncoder_InvalidChunkSize(t *testing.T) {
	testCases := []struct {
		name      string
		chunkSize int
		wantError bool
	}{
		{"Too small", MinChunkSize - 1, true},
		{"Too large", MaxChunkSize + 1, true},
		{"Minimum valid", MinChunkSize, false},
		{"Maximum valid", MaxChunkSize, false},
		{"Default", DefaultChunkSize, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEncoder(bytes.NewReader(nil), Header{Name: "x"}, tc.chunkSize)
			if tc.wantError {
				assert.Error(t, err, "Expected error for chunk size %d", tc.chunkSize)
			} else {
				assert.NoError(t, err, "Unexpected error for chunk size %d", tc.chunkSize)
			}
		})
	}
}

func TestNewEncoder_RejectsPathNames(t *testing.T) {
	_, err := NewEncoder(bytes.NewReader(nil), Header{Name: "../etc/passwd"}, DefaultChunkSize)
	assert.ErrorIs(t, err, ErrMalformedStream)
}
