// Package processor is the reference FileProcessor daemon: it spools each
// request to disk, runs the processor registered for the method and streams
// the result back.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rescp17/fileproc/pkg/operation"
)

// ErrInvalidInput marks failures caused by the request content rather than
// by the processor; they are reported as InvalidArgument.
var ErrInvalidInput = errors.New("invalid input")

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Input is one spooled request.
type Input struct {
	// Path is the spooled request file.
	Path string
	// Name is the file name the client sent.
	Name     string
	MimeType string
	Params   operation.Values
	// OutDir is where the processor must create its output.
	OutDir string
}

// Output is a processor result. The base name of Path is returned to the
// client as the output file name.
type Output struct {
	Path string
}

type Processor interface {
	Process(ctx context.Context, in Input) (Output, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, in Input) (Output, error)

func (f ProcessorFunc) Process(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// Echo returns its input unchanged under the same name.
var Echo = ProcessorFunc(func(ctx context.Context, in Input) (Output, error) {
	out := filepath.Join(in.OutDir, in.Name)
	if err := copyFile(in.Path, out); err != nil {
		return Output{}, err
	}
	return Output{Path: out}, nil
})

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
