package processor

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/jsummers/gobmp"
	"github.com/nfnt/resize"
	"github.com/rescp17/fileproc/pkg/operation"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

type imageCodec struct {
	format string
	ext    string
	decode func(io.Reader) (image.Image, error)
	// encode is nil for formats that can only be read.
	encode func(io.Writer, image.Image) error
}

var (
	pngCodec  = imageCodec{"png", ".png", png.Decode, png.Encode}
	jpegCodec = imageCodec{"jpeg", ".jpg", jpeg.Decode, func(w io.Writer, m image.Image) error {
		return jpeg.Encode(w, m, &jpeg.Options{Quality: 90})
	}}
	gifCodec = imageCodec{"gif", ".gif", gif.Decode, func(w io.Writer, m image.Image) error {
		return gif.Encode(w, m, nil)
	}}
	bmpCodec  = imageCodec{"bmp", ".bmp", gobmp.Decode, gobmp.Encode}
	tiffCodec = imageCodec{"tiff", ".tiff", tiff.Decode, func(w io.Writer, m image.Image) error {
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate})
	}}
	webpCodec = imageCodec{"webp", ".webp", webp.Decode, nil}
)

// codecsByMime selects the decoder from the sniffed content type, never from
// the file name.
var codecsByMime = map[string]imageCodec{
	"image/png":  pngCodec,
	"image/jpeg": jpegCodec,
	"image/gif":  gifCodec,
	"image/bmp":  bmpCodec,
	"image/tiff": tiffCodec,
	"image/webp": webpCodec,
}

var codecsByFormat = map[string]imageCodec{
	"png":  pngCodec,
	"jpeg": jpegCodec,
	"jpg":  jpegCodec,
	"gif":  gifCodec,
	"bmp":  bmpCodec,
	"tiff": tiffCodec,
}

func decodeImage(in Input) (image.Image, imageCodec, error) {
	codec, ok := codecsByMime[in.MimeType]
	if !ok {
		return nil, imageCodec{}, invalidInput("%s is not a supported image (%s)", in.Name, in.MimeType)
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, imageCodec{}, err
	}
	defer f.Close()

	img, err := codec.decode(bufio.NewReader(f))
	if err != nil {
		return nil, imageCodec{}, invalidInput("decoding %s image: %v", codec.format, err)
	}
	return img, codec, nil
}

func encodeImage(img image.Image, codec imageCodec, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	if err := codec.encode(w, img); err != nil {
		return fmt.Errorf("encoding %s image: %w", codec.format, err)
	}
	return w.Flush()
}

// ImageConverter re-encodes an image in the format given by the "format"
// parameter.
type ImageConverter struct{}

func (ImageConverter) Process(ctx context.Context, in Input) (Output, error) {
	format := in.Params.String("format")
	target, ok := codecsByFormat[format]
	if !ok || target.encode == nil {
		return Output{}, invalidInput("cannot encode %q images", format)
	}
	img, _, err := decodeImage(in)
	if err != nil {
		return Output{}, err
	}

	out := filepath.Join(in.OutDir, trimExt(in.Name)+"."+format)
	if err := encodeImage(img, target, out); err != nil {
		return Output{}, err
	}
	return Output{Path: out}, nil
}

// ImageResizer scales an image to fit within "width" x "height", keeping its
// aspect ratio. The result keeps the source format when it can be encoded and
// falls back to PNG otherwise.
type ImageResizer struct {
	Interpolation resize.InterpolationFunction
}

func (r ImageResizer) Process(ctx context.Context, in Input) (Output, error) {
	width, height := in.Params.Int("width"), in.Params.Int("height")
	if width <= 0 || height <= 0 {
		return Output{}, invalidInput("width and height must be positive, got %dx%d", width, height)
	}
	if width > operation.MaxImageSide || height > operation.MaxImageSide {
		return Output{}, invalidInput("width and height must be at most %d, got %dx%d", operation.MaxImageSide, width, height)
	}
	img, codec, err := decodeImage(in)
	if err != nil {
		return Output{}, err
	}

	w, h := fitWithin(img.Bounds().Dx(), img.Bounds().Dy(), width, height)
	if int64(w)*int64(h) > MaxResizePixels {
		return Output{}, invalidInput("resized image would be %dx%d, more than %d pixels", w, h, MaxResizePixels)
	}
	resized := resize.Resize(uint(w), uint(h), img, r.Interpolation)

	name := "resized_" + in.Name
	if codec.encode == nil {
		codec = pngCodec
		name = "resized_" + trimExt(in.Name) + codec.ext
	}
	out := filepath.Join(in.OutDir, name)
	if err := encodeImage(resized, codec, out); err != nil {
		return Output{}, err
	}
	return Output{Path: out}, nil
}

// MaxResizePixels bounds the area of a resized image.
const MaxResizePixels = 1 << 26

// fitWithin returns the largest size with the aspect ratio of w x h that fits
// in maxW x maxH. Neither side is ever rounded down to zero.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	fw, fh, fmaxW, fmaxH := float64(w), float64(h), float64(maxW), float64(maxH)
	if fw/fh >= fmaxW/fmaxH {
		nh := int(math.Round(fh * fmaxW / fw))
		return maxW, max(min(nh, maxH), 1)
	}
	nw := int(math.Round(fw * fmaxH / fh))
	return max(min(nw, maxW), 1), maxH
}
