package rpc

// PathPrefix is where calls are routed; a call to "/FileProcessor/ResizeImage"
// is served at "/rpc/FileProcessor/ResizeImage".
const PathPrefix = "/rpc"

// DefaultMaxMessageSize bounds one frame. Unary calls carry a whole file,
// so it is far larger than a stream chunk.
const DefaultMaxMessageSize = 64 << 20

type frameType uint8

const (
	// frameMessage carries one encoded message.
	frameMessage frameType = iota + 1
	// frameHalfClose tells the server the client will send nothing more.
	frameHalfClose
	// frameStatus ends the call; it is always the server's last frame.
	frameStatus
)

// frame is one websocket binary message.
type frame struct {
	Type    frameType  `cbor:"type"`
	Payload RawMessage `cbor:"payload,omitempty"`
	Status  *Status    `cbor:"status,omitempty"`
}
