package transfer

import (
	"errors"
	"fmt"
)

// Chunk size constants
const (
	DefaultChunkSize = 64 * 1024  // 64KB
	MaxChunkSize     = 256 * 1024 // 256KB - keeps a frame well under the RPC read limit
	MinChunkSize     = 4 * 1024   // 4KB
)

// Config holds the chunking parameters shared by the encoder and the decoder.
type Config struct {
	ChunkSize int `json:"chunk_size"`

	// VerifyChecksum makes the decoder compare trailer checksums against the
	// bytes it wrote. Trailers without a checksum are never verified.
	VerifyChecksum bool `json:"verify_checksum"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:      DefaultChunkSize,
		VerifyChecksum: true,
	}
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if !IsValidChunkSize(c.ChunkSize) {
		return fmt.Errorf("chunk_size must be between %d and %d", MinChunkSize, MaxChunkSize)
	}
	return nil
}

// IsValidChunkSize checks if a chunk size is within acceptable bounds
func IsValidChunkSize(chunkSize int) bool {
	return chunkSize >= MinChunkSize && chunkSize <= MaxChunkSize
}
