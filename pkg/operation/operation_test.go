package operation

import (
	"testing"

	"github.com/rescp17/fileproc/api"
	"github.com/rescp17/fileproc/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		op         string
		args       []string
		wantMethod string
		wantUnary  bool
		wantParams []string
		wantErr    bool
	}{
		{"Compress", "compress", nil, api.MethodCompressPDF, true, nil, false},
		{"To text", "totxt", nil, api.MethodConvertToTXT, false, nil, false},
		{"Convert", "convertimg", []string{"PNG"}, api.MethodConvertImageFormat, false, []string{"png"}, false},
		{"Resize", "resize", []string{"300", "200"}, api.MethodResizeImage, false, []string{"300", "200"}, false},
		{"Resize canonicalises", "resize", []string{" 0300", "200"}, api.MethodResizeImage, false, []string{"300", "200"}, false},
		{"Unknown operation", "zip", nil, "", false, nil, true},
		{"Compress with params", "compress", []string{"x"}, "", false, nil, true},
		{"Convert missing format", "convertimg", nil, "", false, nil, true},
		{"Convert unknown format", "convertimg", []string{"psd"}, "", false, nil, true},
		{"Resize missing height", "resize", []string{"300"}, "", false, nil, true},
		{"Resize not a number", "resize", []string{"wide", "200"}, "", false, nil, true},
		{"Resize zero", "resize", []string{"0", "200"}, "", false, nil, true},
		{"Resize negative", "resize", []string{"300", "-2"}, "", false, nil, true},
		{"Resize largest side", "resize", []string{"16384", "1"}, api.MethodResizeImage, false, []string{"16384", "1"}, false},
		{"Resize side too large", "resize", []string{"100000", "100000"}, "", false, nil, true},
		{"Resize overflowing side", "resize", []string{"2305843009213693952", "10"}, "", false, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := Select(tt.op, tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, transfer.CategoryValidation, transfer.CategoryOf(err))
				assert.Nil(t, call)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, call.Operation.Method)
			assert.Equal(t, tt.wantUnary, call.Operation.Unary)
			assert.Equal(t, tt.wantParams, call.Params)
		})
	}
}

func TestSelect_UnknownOperationSentinel(t *testing.T) {
	_, err := Select("sharpen", nil)
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Contains(t, err.Error(), "sharpen")
}

func TestResizeLabelRoundTrip(t *testing.T) {
	call, err := Select("resize", []string{"300", "200"})
	require.NoError(t, err)

	label, err := transfer.FormatLabel("photo.jpg", call.Params...)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg|300|200", label)

	name, params, err := transfer.ParseLabel(label)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", name)

	values, err := call.Operation.DecodeParams(params)
	require.NoError(t, err)
	assert.Equal(t, 300, values.Int("width"))
	assert.Equal(t, 200, values.Int("height"))
}

func TestDecodeParams(t *testing.T) {
	op, ok := Lookup("convertimg")
	require.True(t, ok)

	values, err := op.DecodeParams([]string{"bmp"})
	require.NoError(t, err)
	assert.Equal(t, "bmp", values.String("format"))
	assert.Equal(t, 0, values.Int("format"))

	_, err = op.DecodeParams(nil)
	assert.Error(t, err)
	_, err = op.DecodeParams([]string{"png", "extra"})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"compress", "convertimg", "resize", "totxt"}, Names())

	for _, op := range All() {
		byMethod, ok := ForMethod(op.Method)
		require.True(t, ok, op.Method)
		assert.Same(t, op, byMethod)
	}

	_, ok := ForMethod("Nope")
	assert.False(t, ok)

	resize, _ := Lookup("resize")
	assert.Equal(t, "<width> <height>", resize.Usage())
}
