package fileInfo

import (
	"errors"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// ErrIsDir is returned for directories; only regular files are processed.
var ErrIsDir = errors.New("path is a directory")

const defaultMimeType = "application/octet-stream"

type FileNode struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Path     string `json:"-"`
}

// CreateNode describes the regular file at path: size, detected MIME type and
// SHA-256.
func CreateNode(path string) (FileNode, error) {
	node, err := Stat(path)
	if err != nil {
		return FileNode{}, err
	}
	if _, err := node.CalcChecksum(); err != nil {
		return FileNode{}, err
	}
	return node, nil
}

// Stat is CreateNode without the checksum.
func Stat(path string) (FileNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileNode{}, err
	}
	if info.IsDir() {
		return FileNode{}, ErrIsDir
	}
	return FileNode{
		Name:     info.Name(),
		Size:     info.Size(),
		Path:     path,
		MimeType: DetectMime(path),
	}, nil
}

// DetectMime sniffs the content type of path, falling back to octet-stream.
func DetectMime(path string) string {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return defaultMimeType
	}
	return mime.String()
}
