package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/netfsd/netfsd/protocol"
)

// DataDir maps namespace paths onto a local directory, using the
// standard library directly: file storage is out of scope for any
// third-party library in this stack, and os/io/path are the only
// correct tool for "read and write bytes to local disk".
type DataDir struct {
	root string
}

// NewDataDir creates a DataDir rooted at root, creating it if missing.
func NewDataDir(root string) (*DataDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, protocol.WrapOpError("mkdir", root, err)
	}
	return &DataDir{root: root}, nil
}

func (d *DataDir) resolve(path string) (string, error) {
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return "", protocol.InvalidArgument
		}
	}
	clean := filepath.Clean("/" + path)
	return filepath.Join(d.root, clean), nil
}

// Read returns length bytes starting at offset.
func (d *DataDir) Read(path string, offset uint64, length uint32) ([]byte, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, protocol.WrapOpError("read", path, translateOSError(err))
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, protocol.WrapOpError("read", path, translateOSError(err))
	}
	return buf[:n], nil
}

// Write writes data at offset, creating the file (and any parent
// directories) if it doesn't exist.
func (d *DataDir) Write(path string, offset uint64, data []byte) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return protocol.WrapOpError("write", path, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return protocol.WrapOpError("write", path, translateOSError(err))
	}
	defer f.Close()

	if _, err := f.WriteAt(data, int64(offset)); err != nil {
		return protocol.WrapOpError("write", path, translateOSError(err))
	}
	return nil
}

// Delete removes path.
func (d *DataDir) Delete(path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return protocol.WrapOpError("delete", path, translateOSError(err))
	}
	return nil
}

// Create ensures path exists as an empty file, truncating if present.
func (d *DataDir) Create(path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return protocol.WrapOpError("create", path, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return protocol.WrapOpError("create", path, translateOSError(err))
	}
	return f.Close()
}

// Size reports path's current size.
func (d *DataDir) Size(path string) (uint64, error) {
	full, err := d.resolve(path)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return 0, protocol.WrapOpError("stat", path, translateOSError(err))
	}
	return uint64(fi.Size()), nil
}

// Walk lists every regular file under the data directory, relative to
// root, for registering with the naming server at startup.
func (d *DataDir) Walk() ([]string, error) {
	var paths []string
	err := filepath.Walk(d.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	return paths, err
}

func translateOSError(err error) error {
	if os.IsNotExist(err) {
		return protocol.FileNotFound
	}
	if os.IsPermission(err) {
		return protocol.AccessDenied
	}
	return protocol.IOError
}
