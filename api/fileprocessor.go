// Package api is the FileProcessor service contract shared by the invoke
// client and the processing daemon.
package api

import (
	"context"

	"github.com/rescp17/fileproc/pkg/rpc"
	"github.com/rescp17/fileproc/pkg/transfer"
)

// ServiceName is the RPC service every method belongs to.
const ServiceName = "FileProcessor"

const (
	MethodCompressPDF        = "CompressPDF"
	MethodConvertToTXT       = "ConvertToTXT"
	MethodConvertImageFormat = "ConvertImageFormat"
	MethodResizeImage        = "ResizeImage"
)

// FullMethod returns the routed name of a method, e.g. "/FileProcessor/CompressPDF".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// FileRequest is the single message of a unary call.
type FileRequest struct {
	FileName    string `cbor:"file_name" json:"file_name"`
	FileContent []byte `cbor:"file_content" json:"file_content"`
}

func (r *FileRequest) GetFileName() string {
	if r == nil {
		return ""
	}
	return r.FileName
}

func (r *FileRequest) GetFileContent() []byte {
	if r == nil {
		return nil
	}
	return r.FileContent
}

// FileResponse answers a unary call. When Success is false FileContent must
// be ignored and StatusMessage says why.
type FileResponse struct {
	Success       bool   `cbor:"success" json:"success"`
	FileName      string `cbor:"file_name,omitempty" json:"file_name,omitempty"`
	FileContent   []byte `cbor:"file_content,omitempty" json:"file_content,omitempty"`
	StatusMessage string `cbor:"status_message,omitempty" json:"status_message,omitempty"`
}

func (r *FileResponse) GetSuccess() bool {
	return r != nil && r.Success
}

func (r *FileResponse) GetFileName() string {
	if r == nil {
		return ""
	}
	return r.FileName
}

func (r *FileResponse) GetFileContent() []byte {
	if r == nil {
		return nil
	}
	return r.FileContent
}

func (r *FileResponse) GetStatusMessage() string {
	if r == nil {
		return ""
	}
	return r.StatusMessage
}

// ChunkStream is the client side of a streaming call. Send and CloseSend may
// be called from one goroutine while Recv is called from another.
type ChunkStream interface {
	Send(*transfer.Chunk) error
	CloseSend() error
	// Recv returns io.EOF once the server finished successfully.
	Recv() (*transfer.Chunk, error)
	// Close releases the call; it must be called once the stream is no longer used.
	Close() error
}

// FileProcessorClient is the client API of the service.
type FileProcessorClient interface {
	CompressPDF(ctx context.Context, in *FileRequest) (*FileResponse, error)
	ConvertToTXT(ctx context.Context) (ChunkStream, error)
	ConvertImageFormat(ctx context.Context) (ChunkStream, error)
	ResizeImage(ctx context.Context) (ChunkStream, error)
}

type fileProcessorClient struct {
	cc *rpc.Conn
}

// NewFileProcessorClient binds the service to a connection.
func NewFileProcessorClient(cc *rpc.Conn) FileProcessorClient {
	return &fileProcessorClient{cc: cc}
}

func (c *fileProcessorClient) CompressPDF(ctx context.Context, in *FileRequest) (*FileResponse, error) {
	out := new(FileResponse)
	if err := c.cc.Invoke(ctx, FullMethod(MethodCompressPDF), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fileProcessorClient) ConvertToTXT(ctx context.Context) (ChunkStream, error) {
	return c.stream(ctx, MethodConvertToTXT)
}

func (c *fileProcessorClient) ConvertImageFormat(ctx context.Context) (ChunkStream, error) {
	return c.stream(ctx, MethodConvertImageFormat)
}

func (c *fileProcessorClient) ResizeImage(ctx context.Context) (ChunkStream, error) {
	return c.stream(ctx, MethodResizeImage)
}

func (c *fileProcessorClient) stream(ctx context.Context, method string) (ChunkStream, error) {
	cs, err := c.cc.NewStream(ctx, FullMethod(method))
	if err != nil {
		return nil, err
	}
	return &chunkStream{cs: cs}, nil
}

type chunkStream struct {
	cs *rpc.ClientStream
}

func (s *chunkStream) Send(c *transfer.Chunk) error {
	return s.cs.SendMsg(c)
}

func (s *chunkStream) CloseSend() error {
	return s.cs.CloseSend()
}

func (s *chunkStream) Recv() (*transfer.Chunk, error) {
	c := new(transfer.Chunk)
	if err := s.cs.RecvMsg(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *chunkStream) Close() error {
	return s.cs.Close()
}

// ChunkServerStream is the server side of a streaming call.
type ChunkServerStream interface {
	Context() context.Context
	Send(*transfer.Chunk) error
	// Recv returns io.EOF once the client closed its side.
	Recv() (*transfer.Chunk, error)
}

// FileProcessorServer is implemented by the processing daemon.
type FileProcessorServer interface {
	CompressPDF(ctx context.Context, in *FileRequest) (*FileResponse, error)
	ConvertToTXT(stream ChunkServerStream) error
	ConvertImageFormat(stream ChunkServerStream) error
	ResizeImage(stream ChunkServerStream) error
}

// RegisterFileProcessorServer routes every method of the service to srv.
func RegisterFileProcessorServer(s *rpc.Server, srv FileProcessorServer) {
	s.RegisterUnary(FullMethod(MethodCompressPDF), func(ctx context.Context, dec func(any) error) (any, error) {
		in := new(FileRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		return srv.CompressPDF(ctx, in)
	})
	s.RegisterStream(FullMethod(MethodConvertToTXT), func(stream rpc.ServerStream) error {
		return srv.ConvertToTXT(&chunkServerStream{stream})
	})
	s.RegisterStream(FullMethod(MethodConvertImageFormat), func(stream rpc.ServerStream) error {
		return srv.ConvertImageFormat(&chunkServerStream{stream})
	})
	s.RegisterStream(FullMethod(MethodResizeImage), func(stream rpc.ServerStream) error {
		return srv.ResizeImage(&chunkServerStream{stream})
	})
}

type chunkServerStream struct {
	rpc.ServerStream
}

func (s *chunkServerStream) Send(c *transfer.Chunk) error {
	return s.SendMsg(c)
}

func (s *chunkServerStream) Recv() (*transfer.Chunk, error) {
	c := new(transfer.Chunk)
	if err := s.RecvMsg(c); err != nil {
		return nil, err
	}
	return c, nil
}
