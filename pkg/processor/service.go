package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/rescp17/fileproc/api"
	"github.com/rescp17/fileproc/pkg/concurrency"
	"github.com/rescp17/fileproc/pkg/fileInfo"
	"github.com/rescp17/fileproc/pkg/operation"
	"github.com/rescp17/fileproc/pkg/rpc"
	"github.com/rescp17/fileproc/pkg/transfer"
)

type Options struct {
	// WorkDir holds one temporary directory per job; the system temp dir
	// when empty.
	WorkDir     string
	Ghostscript string
	MaxJobs     int
	ChunkSize   int
	// Echo serves every method with the Echo processor.
	Echo   bool
	Logger *slog.Logger
}

// Service implements api.FileProcessorServer.
type Service struct {
	workDir    string
	chunkSize  int
	guard      *concurrency.JobGuard
	processors map[string]Processor
	logger     *slog.Logger
}

var _ api.FileProcessorServer = (*Service)(nil)

func NewService(opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	if !transfer.IsValidChunkSize(opts.ChunkSize) {
		return nil, fmt.Errorf("chunk size must be between %d and %d", transfer.MinChunkSize, transfer.MaxChunkSize)
	}
	if opts.Ghostscript == "" {
		opts.Ghostscript = "gs"
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}

	s := &Service{
		workDir:   opts.WorkDir,
		chunkSize: opts.ChunkSize,
		guard:     concurrency.NewJobGuard(opts.MaxJobs),
		logger:    opts.Logger,
		processors: map[string]Processor{
			api.MethodCompressPDF:        Ghostscript{Path: opts.Ghostscript},
			api.MethodConvertToTXT:       PDFText{},
			api.MethodConvertImageFormat: ImageConverter{},
			api.MethodResizeImage:        ImageResizer{Interpolation: resize.Lanczos3},
		},
	}
	if opts.Echo {
		for method := range s.processors {
			s.processors[method] = Echo
		}
	}
	return s, nil
}

// Handle replaces the processor serving method.
func (s *Service) Handle(method string, p Processor) {
	s.processors[method] = p
}

// CompressPDF reports processing failures in the response rather than as an
// RPC error, so the client can show the message.
func (s *Service) CompressPDF(ctx context.Context, in *api.FileRequest) (*api.FileResponse, error) {
	method := api.MethodCompressPDF
	name := in.GetFileName()
	log := s.logger.With("service", method, "job", uuid.NewString())

	if err := (&transfer.Header{Name: name}).Validate(); err != nil {
		log.Error("ERROR", "file", name, "error", err)
		return nil, rpc.Errorf(rpc.InvalidArgument, "%v", err)
	}

	var resp *api.FileResponse
	err := s.run(ctx, log, func() error {
		return s.withJobDir(func(inDir, outDir string) error {
			path := filepath.Join(inDir, name)
			if err := os.WriteFile(path, in.GetFileContent(), 0o600); err != nil {
				return rpc.Errorf(rpc.Internal, "spooling request: %v", err)
			}
			out, err := s.process(ctx, method, path, name, nil, outDir)
			if err != nil {
				log.Error("ERROR", "file", name, "error", err)
				resp = &api.FileResponse{Success: false, FileName: name, StatusMessage: err.Error()}
				return nil
			}
			data, err := os.ReadFile(out.Path)
			if err != nil {
				return rpc.Errorf(rpc.Internal, "reading result: %v", err)
			}
			log.Info("SUCCESS", "file", name, "inBytes", len(in.GetFileContent()), "outBytes", len(data))
			resp = &api.FileResponse{Success: true, FileName: filepath.Base(out.Path), FileContent: data}
			return nil
		})
	})
	if err != nil {
		return nil, s.statusOf(err)
	}
	return resp, nil
}

func (s *Service) ConvertToTXT(stream api.ChunkServerStream) error {
	return s.serveStream(api.MethodConvertToTXT, stream)
}

func (s *Service) ConvertImageFormat(stream api.ChunkServerStream) error {
	return s.serveStream(api.MethodConvertImageFormat, stream)
}

func (s *Service) ResizeImage(stream api.ChunkServerStream) error {
	return s.serveStream(api.MethodResizeImage, stream)
}

func (s *Service) serveStream(method string, stream api.ChunkServerStream) error {
	ctx := stream.Context()
	log := s.logger.With("service", method, "job", uuid.NewString())
	start := time.Now()

	var request string
	err := s.run(ctx, log, func() error {
		var err error
		request, err = s.runStream(ctx, method, stream)
		return err
	})
	if err != nil {
		log.Error("ERROR", "request", request, "error", err)
		return s.statusOf(err)
	}
	log.Info("SUCCESS", "request", request, "duration", time.Since(start))
	return nil
}

// run executes task in a job slot, waiting for one when all are taken.
func (s *Service) run(ctx context.Context, log *slog.Logger, task func() error) error {
	err := s.guard.TryExecute(task)
	if !errors.Is(err, concurrency.ErrBusy) {
		return err
	}
	log.Info("Waiting for a free job slot", "slots", s.guard.Slots())
	return s.guard.Execute(ctx, task)
}

// runStream spools the request, processes it and streams the result back. It
// returns the request header's label once known.
func (s *Service) runStream(ctx context.Context, method string, stream api.ChunkServerStream) (string, error) {
	op, ok := operation.ForMethod(method)
	if !ok {
		return "", rpc.Errorf(rpc.Unimplemented, "no operation for %s", method)
	}

	reader := transfer.NewStreamReader(stream)
	hdr, err := reader.Header()
	if err != nil {
		return "", err
	}
	values, err := op.DecodeParams(hdr.Params)
	if err != nil {
		return hdr.Label(), rpc.Errorf(rpc.InvalidArgument, "%v", err)
	}

	return hdr.Label(), s.withJobDir(func(inDir, outDir string) error {
		path := filepath.Join(inDir, hdr.Name)
		if err := spool(path, reader); err != nil {
			return err
		}
		out, err := s.process(ctx, method, path, hdr.Name, values, outDir)
		if err != nil {
			return err
		}
		return s.sendFile(stream, out.Path)
	})
}

func spool(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *Service) process(ctx context.Context, method, path, name string, values operation.Values, outDir string) (Output, error) {
	p, ok := s.processors[method]
	if !ok {
		return Output{}, rpc.Errorf(rpc.Unimplemented, "no processor for %s", method)
	}
	return p.Process(ctx, Input{
		Path:     path,
		Name:     name,
		MimeType: fileInfo.DetectMime(path),
		Params:   values,
		OutDir:   outDir,
	})
}

func (s *Service) sendFile(stream api.ChunkServerStream, path string) error {
	enc, err := transfer.OpenEncoder(path, nil, s.chunkSize)
	if err != nil {
		return err
	}
	defer enc.Close()

	for {
		chunk, err := enc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := stream.Send(chunk); err != nil {
			return err
		}
	}
}

// withJobDir runs fn with fresh input and output directories and removes
// both afterwards, whatever fn returns.
func (s *Service) withJobDir(fn func(inDir, outDir string) error) error {
	dir, err := os.MkdirTemp(s.workDir, "job-*")
	if err != nil {
		return rpc.Errorf(rpc.Internal, "creating job dir: %v", err)
	}
	defer os.RemoveAll(dir)

	inDir, outDir := filepath.Join(dir, "in"), filepath.Join(dir, "out")
	for _, d := range []string{inDir, outDir} {
		if err := os.Mkdir(d, 0o700); err != nil {
			return rpc.Errorf(rpc.Internal, "creating job dir: %v", err)
		}
	}
	return fn(inDir, outDir)
}

// statusOf maps a job failure to the status sent to the client.
func (s *Service) statusOf(err error) error {
	var st *rpc.Status
	switch {
	case errors.As(err, &st):
		return st
	case errors.Is(err, transfer.ErrMalformedStream), errors.Is(err, transfer.ErrChecksumMismatch),
		errors.Is(err, ErrInvalidInput):
		return rpc.Errorf(rpc.InvalidArgument, "%v", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return rpc.FromError(err)
	default:
		return rpc.Errorf(rpc.Internal, "processing failed: %v", err)
	}
}
