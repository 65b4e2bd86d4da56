// Package client drives one file through a remote operation: it validates the
// request locally, streams the source to the service and reassembles the
// response into the destination file.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rescp17/fileproc/api"
	"github.com/rescp17/fileproc/internal/util"
	"github.com/rescp17/fileproc/pkg/fileInfo"
	"github.com/rescp17/fileproc/pkg/operation"
	"github.com/rescp17/fileproc/pkg/rpc"
	"github.com/rescp17/fileproc/pkg/transfer"
	"golang.org/x/sync/errgroup"
)

// Request describes one transfer. Args are the raw operation arguments.
type Request struct {
	Source      string
	Destination string
	Operation   string
	Args        []string
}

// Result reports how a transfer ended. It is returned for failed transfers
// too, with State set to transfer.StateFailed and Err set.
type Result struct {
	TransferID   uuid.UUID
	Operation    string
	State        transfer.State
	Success      bool
	OriginalSize int64
	ResultSize   int64
	// ResultName is the file name the service gave its output.
	ResultName string
	MimeType   string
	// Checksum is the hex SHA-256 of the destination file.
	Checksum string
	Duration time.Duration
	Err      error
}

// Progress is a snapshot of a running transfer.
type Progress struct {
	Sent     int64
	Total    int64
	Received int64
}

// ProgressFunc is called from the sending and the receiving goroutine, so it
// must be safe for concurrent use. Unary calls report Sent once, with the
// whole file, before the call is made.
type ProgressFunc func(Progress)

type Client struct {
	svc      api.FileProcessorClient
	cfg      *transfer.Config
	logger   *slog.Logger
	progress ProgressFunc
}

type Option func(*Client)

func WithConfig(cfg *transfer.Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) { c.progress = fn }
}

// New returns a Client that sends every call through svc.
func New(svc api.FileProcessorClient, opts ...Option) (*Client, error) {
	if svc == nil {
		return nil, errors.New("client: nil service handle")
	}
	c := &Client{
		svc:    svc,
		cfg:    transfer.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return c, nil
}

// Transfer runs req to completion. On any failure the destination is left
// untouched and no partial file remains; the returned error is also stored
// in Result.Err.
func (c *Client) Transfer(ctx context.Context, req Request) (*Result, error) {
	status := transfer.NewStatus()
	res := &Result{TransferID: uuid.New(), Operation: req.Operation, State: status.State}
	log := c.logger.With("transferID", res.TransferID.String(), "operation", req.Operation)

	fail := func(err error) (*Result, error) {
		if ferr := status.Fail(err); ferr != nil {
			log.Debug("status already terminal", "state", status.State.String())
		}
		res.State = status.State
		res.Err = err
		res.Duration = status.Duration()
		log.Error("Transfer failed", "error", err, "category", transfer.CategoryOf(err).String())
		return res, err
	}

	if err := status.TransitionTo(transfer.StateValidating); err != nil {
		return fail(err)
	}
	call, src, err := validate(req)
	if err != nil {
		return fail(err)
	}
	res.OriginalSize = src.Size

	out, err := newOutput(req.Destination)
	if err != nil {
		return fail(err)
	}
	defer out.discard()

	if err := status.TransitionTo(transfer.StateStreaming); err != nil {
		return fail(err)
	}
	log.Info("Starting transfer",
		"fileName", src.Name,
		"totalSize", src.Size,
		"method", call.Operation.Method,
		"params", call.Params,
	)

	var received atomic.Int64
	var sent atomic.Int64
	report := func() {
		if c.progress != nil {
			c.progress(Progress{Sent: sent.Load(), Total: src.Size, Received: received.Load()})
		}
	}
	dec := transfer.NewDecoder(out.file,
		transfer.WithChecksumVerification(c.cfg.VerifyChecksum),
		transfer.WithWriteProgress(func(written int64) {
			received.Store(written)
			report()
		}),
	)
	onSent := func(n int64) {
		sent.Store(n)
		report()
	}

	var name string
	if call.Operation.Unary {
		name, err = c.unary(ctx, call, src, dec, onSent)
	} else {
		name, err = c.stream(ctx, call, src, dec, onSent)
	}
	if err != nil {
		return fail(err)
	}
	if err := out.commit(); err != nil {
		return fail(err)
	}
	if err := status.TransitionTo(transfer.StateCompleted); err != nil {
		return fail(err)
	}

	res.State = status.State
	res.Success = true
	res.ResultSize = dec.Written()
	res.ResultName = name
	if node, err := fileInfo.CreateNode(req.Destination); err != nil {
		log.Warn("Failed to describe output", "path", req.Destination, "error", err)
	} else {
		res.MimeType = node.MimeType
		res.Checksum = node.Checksum
	}
	res.Duration = status.Duration()
	log.Info("Transfer completed",
		"destination", req.Destination,
		"originalSize", res.OriginalSize,
		"resultSize", res.ResultSize,
		"mimeType", res.MimeType,
		"checksum", res.Checksum,
		"duration", res.Duration,
	)
	return res, nil
}

// Validate runs the local checks of Transfer without creating anything or
// touching the network.
func Validate(req Request) error {
	_, _, err := validate(req)
	return err
}

func validate(req Request) (*operation.Call, fileInfo.FileNode, error) {
	call, err := operation.Select(req.Operation, req.Args)
	if err != nil {
		return nil, fileInfo.FileNode{}, err
	}
	src, err := checkSource(req.Source)
	if err != nil {
		return nil, src, err
	}
	if err := checkDestination(req.Destination); err != nil {
		return nil, src, err
	}
	return call, src, nil
}

func checkSource(path string) (fileInfo.FileNode, error) {
	node, err := fileInfo.Stat(path)
	switch {
	case err == nil:
		return node, nil
	case errors.Is(err, fileInfo.ErrIsDir):
		return node, transfer.Validationf("open source", "%s is a directory", path)
	case errors.Is(err, os.ErrNotExist):
		return node, transfer.Validationf("open source", "%s does not exist", path)
	default:
		return node, &transfer.Error{Category: transfer.CategoryIO, Op: "open source", Err: err}
	}
}

// output is a temporary file next to the destination, renamed onto it only
// once the whole response has been written.
type output struct {
	file      *os.File
	dest      string
	committed bool
}

func checkDestination(dest string) error {
	dir := util.ParentDir(dest)
	exists, isDir, err := util.CheckDirectory(dir)
	if err != nil {
		return &transfer.Error{Category: transfer.CategoryIO, Op: "check output", Err: err}
	}
	if !exists || !isDir {
		return &transfer.Error{
			Category: transfer.CategoryIO,
			Op:       "check output",
			Err:      fmt.Errorf("destination directory %s does not exist: %w", dir, os.ErrNotExist),
		}
	}
	return nil
}

func newOutput(dest string) (*output, error) {
	f, err := os.CreateTemp(util.ParentDir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return nil, &transfer.Error{Category: transfer.CategoryIO, Op: "create output", Err: err}
	}
	return &output{file: f, dest: dest}, nil
}

func (o *output) commit() error {
	// The decoder has closed the file already; closing again is harmless.
	o.file.Close()
	if err := os.Rename(o.file.Name(), o.dest); err != nil {
		return &transfer.Error{Category: transfer.CategoryIO, Op: "commit output", Err: err}
	}
	o.committed = true
	return nil
}

func (o *output) discard() {
	if o.committed {
		return
	}
	o.file.Close()
	if err := os.Remove(o.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to remove partial output", "path", o.file.Name(), "error", err)
	}
}

func (c *Client) unary(ctx context.Context, call *operation.Call, src fileInfo.FileNode, dec *transfer.Decoder, onSent func(int64)) (string, error) {
	if call.Operation.Method != api.MethodCompressPDF {
		return "", classify("call", rpc.Errorf(rpc.Unimplemented, "no unary method %s", call.Operation.Method))
	}
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return "", &transfer.Error{Category: transfer.CategoryIO, Op: "read source", Err: err}
	}
	// The request travels as one message, so the upload is reported whole as
	// soon as it is handed over.
	onSent(int64(len(data)))
	resp, err := c.svc.CompressPDF(ctx, &api.FileRequest{FileName: src.Name, FileContent: data})
	if err != nil {
		return "", classify("call", err)
	}
	return resp.GetFileName(), dec.DecodeUnary(resp)
}

func (c *Client) stream(ctx context.Context, call *operation.Call, src fileInfo.FileNode, dec *transfer.Decoder, onSent func(int64)) (string, error) {
	enc, err := transfer.OpenEncoder(src.Path, call.Params, c.cfg.ChunkSize)
	if err != nil {
		return "", &transfer.Error{Category: transfer.CategoryIO, Op: "open source", Err: err}
	}
	defer enc.Close()

	// The first failure on either side cancels gctx, which tears the call down.
	g, gctx := errgroup.WithContext(ctx)
	stream, err := openStream(gctx, c.svc, call.Operation.Method)
	if err != nil {
		dec.Decode(emptySource{})
		return "", classify("call", err)
	}
	defer stream.Close()

	g.Go(func() error {
		return send(stream, enc, onSent)
	})
	g.Go(func() error {
		if err := dec.Decode(stream); err != nil {
			return classify("receive", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	var name string
	if h := dec.Header(); h != nil {
		name = h.Name
	}
	return name, nil
}

func send(stream api.ChunkStream, enc *transfer.Encoder, onSent func(int64)) error {
	for {
		chunk, err := enc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &transfer.Error{Category: transfer.CategoryIO, Op: "read source", Err: err}
		}
		if err := stream.Send(chunk); err != nil {
			if errors.Is(err, io.EOF) {
				// The call already ended; the receiving side reports why.
				return nil
			}
			return classify("send", err)
		}
		if chunk.Kind == transfer.KindData {
			onSent(enc.BytesRead())
		}
	}
	if err := stream.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
		return classify("send", err)
	}
	return nil
}

func openStream(ctx context.Context, svc api.FileProcessorClient, method string) (api.ChunkStream, error) {
	switch method {
	case api.MethodConvertToTXT:
		return svc.ConvertToTXT(ctx)
	case api.MethodConvertImageFormat:
		return svc.ConvertImageFormat(ctx)
	case api.MethodResizeImage:
		return svc.ResizeImage(ctx)
	default:
		return nil, rpc.Errorf(rpc.Unimplemented, "no streaming method %s", method)
	}
}

// emptySource ends immediately. Decoding it only closes the sink; the
// malformed-stream error it yields is discarded.
type emptySource struct{}

func (emptySource) Recv() (*transfer.Chunk, error) { return nil, io.EOF }

// classify attaches a category to errors that do not carry one yet. Statuses
// the service chose itself are remote failures; the rest are transport ones.
func classify(op string, err error) error {
	if transfer.CategoryOf(err) != transfer.CategoryUnknown {
		return err
	}
	category := transfer.CategoryTransport
	var st *rpc.Status
	if errors.As(err, &st) {
		switch st.Code {
		case rpc.InvalidArgument, rpc.NotFound, rpc.FailedPrecondition, rpc.Unimplemented, rpc.Internal:
			category = transfer.CategoryRemote
		}
	}
	return &transfer.Error{Category: category, Op: op, Err: err}
}
