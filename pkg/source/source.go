package source

import (
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
)

// ContentSource provides file content from a specific source.
type ContentSource interface {
	// Read returns the content of the file at path.
	Read(path string) ([]byte, error)
}

// FilesystemSource reads files from the local filesystem.
type FilesystemSource struct{}

// NewFilesystem creates a source that reads from the filesystem.
func NewFilesystem() *FilesystemSource {
	return &FilesystemSource{}
}

// Read implements ContentSource.
func (f *FilesystemSource) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// BillySource reads files from a billy filesystem, such as an in-memory
// tree of scripts or a chroot over a resource directory.
type BillySource struct {
	fs billy.Filesystem
}

// NewBilly creates a source that reads from fs.
func NewBilly(fs billy.Filesystem) *BillySource {
	return &BillySource{fs: fs}
}

// Read implements ContentSource.
func (b *BillySource) Read(path string) ([]byte, error) {
	f, err := b.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
