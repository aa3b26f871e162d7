package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/filescan"
)

// Adapter is a filescan.PayloadStore that keeps parked content as files
// under a root directory.
type Adapter struct {
	root string
}

// New creates a payload adapter rooted at root, creating it if needed.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
	}, nil
}

// Root returns the absolute root directory.
func (a *Adapter) Root() string {
	return a.root
}

func (a *Adapter) resolve(op, key string) (string, error) {
	fullPath := filepath.Join(a.root, filepath.Clean("/"+key))
	if !isPathUnderRoot(a.root, fullPath) {
		return "", &filescan.StoreError{Op: op, Key: key, Err: errors.New("path escapes payload root")}
	}
	return fullPath, nil
}

// Put implements filescan.PayloadStore. The file is written under a
// temporary name and renamed so readers never see partial content.
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := a.resolve("put", key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return &filescan.StoreError{Op: "put", Key: key, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".payload-*")
	if err != nil {
		return &filescan.StoreError{Op: "put", Key: key, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &filescan.StoreError{Op: "put", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &filescan.StoreError{Op: "put", Key: key, Err: err}
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return &filescan.StoreError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Get implements filescan.PayloadStore.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := a.resolve("get", key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &filescan.StoreError{Op: "get", Key: key, Err: filescan.ErrPayloadNotFound}
		}
		return nil, &filescan.StoreError{Op: "get", Key: key, Err: err}
	}
	return data, nil
}

// Delete implements filescan.PayloadStore. Deleting a missing key is not an
// error. Emptied submission directories are removed.
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := a.resolve("delete", key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return &filescan.StoreError{Op: "delete", Key: key, Err: err}
	}
	if dir := filepath.Dir(fullPath); dir != a.root {
		_ = os.Remove(dir) // fails while other payloads remain
	}
	return nil
}

// DeletePrefix implements filescan.PayloadSweeper by removing the
// submission directory.
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := a.resolve("sweep", prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &filescan.StoreError{Op: "sweep", Key: prefix, Err: err}
	}
	return nil
}

func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

var (
	_ filescan.PayloadStore   = (*Adapter)(nil)
	_ filescan.PayloadSweeper = (*Adapter)(nil)
)
