// Package dav implements the DAV Server: the full WebDAV verb set layered
// over the Encrypted File abstraction. RFC4918 property/lock plumbing
// (PROPFIND, PROPPATCH, LOCK, UNLOCK) is delegated to
// golang.org/x/net/webdav's Handler; GET/HEAD (ZIP streaming, search,
// disk usage, ranged encrypted reads), OPTIONS, and the write verbs (PUT,
// DELETE, MKCOL, COPY, MOVE) are implemented directly against the
// filesystem so their status codes and edge cases match exactly.
package dav

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/net/webdav"

	"github.com/nicolaspernoud/atrium-go/internal/cryptfile"
)

// FS adapts a directory tree, optionally encrypted, to webdav.FileSystem.
// It is used only by the delegated RFC-standard verbs; the custom verbs
// in this package talk to cryptfile and os directly via resolve().
type FS struct {
	Root          string
	Key           []byte
	AllowSymlinks bool
}

func (fs *FS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	full, err := resolve(fs.Root, name, fs.AllowSymlinks)
	if err != nil {
		return err
	}
	return os.Mkdir(full, perm)
}

func (fs *FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	full, err := resolve(fs.Root, name, fs.AllowSymlinks)
	if err != nil {
		return nil, err
	}
	info, statErr := os.Stat(full)
	if statErr == nil && info.IsDir() {
		d, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		return &dirFile{f: d, info: info}, nil
	}
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		cf, err := cryptfile.Create(full, fs.Key)
		if err != nil {
			return nil, err
		}
		return &writeFile{cf: cf, name: filepath.Base(full)}, nil
	}
	cf, err := cryptfile.Open(full, fs.Key)
	if err != nil {
		return nil, err
	}
	r, err := cf.NewReader()
	if err != nil {
		cf.Close()
		return nil, err
	}
	return &readFile{cf: cf, r: r, name: filepath.Base(full)}, nil
}

func (fs *FS) RemoveAll(ctx context.Context, name string) error {
	full, err := resolve(fs.Root, name, fs.AllowSymlinks)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

func (fs *FS) Rename(ctx context.Context, oldName, newName string) error {
	oldFull, err := resolve(fs.Root, oldName, fs.AllowSymlinks)
	if err != nil {
		return err
	}
	newFull, err := resolve(fs.Root, newName, fs.AllowSymlinks)
	if err != nil {
		return err
	}
	return os.Rename(oldFull, newFull)
}

func (fs *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	full, err := resolve(fs.Root, name, fs.AllowSymlinks)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return info, nil
	}
	cf, err := cryptfile.Open(full, fs.Key)
	if err != nil {
		return nil, err
	}
	defer cf.Close()
	return fileInfo{name: info.Name(), size: cf.Len(), mod: cf.ModTime()}, nil
}

// fileInfo reports the plaintext size for an encrypted file so PROPFIND's
// getcontentlength matches §4.6's requirement even though the on-disk
// ciphertext is larger.
type fileInfo struct {
	name string
	size int64
	mod  time.Time
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.size }
func (i fileInfo) Mode() os.FileMode  { return 0o644 }
func (i fileInfo) ModTime() time.Time { return i.mod }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() any           { return nil }

type dirFile struct {
	f    *os.File
	info os.FileInfo
}

func (d *dirFile) Close() error                 { return d.f.Close() }
func (d *dirFile) Read([]byte) (int, error)     { return 0, os.ErrInvalid }
func (d *dirFile) Write([]byte) (int, error)    { return 0, os.ErrInvalid }
func (d *dirFile) Seek(int64, int) (int64, error) { return 0, os.ErrInvalid }
func (d *dirFile) Stat() (os.FileInfo, error)   { return d.info, nil }
func (d *dirFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := d.f.Readdir(count)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

type readFile struct {
	cf   *cryptfile.File
	r    io.ReadSeeker
	name string
}

func (f *readFile) Close() error              { return f.cf.Close() }
func (f *readFile) Read(p []byte) (int, error) { return f.r.Read(p) }
func (f *readFile) Write([]byte) (int, error)  { return 0, os.ErrPermission }
func (f *readFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}
func (f *readFile) Readdir(int) ([]os.FileInfo, error) { return nil, os.ErrInvalid }
func (f *readFile) Stat() (os.FileInfo, error) {
	return fileInfo{name: f.name, size: f.cf.Len(), mod: f.cf.ModTime()}, nil
}

// writeFile is only reachable if something other than this package's own
// PUT handler calls OpenFile with a write flag; the custom PUT handler
// talks to cryptfile.Create directly so it can finalize streaming writes
// itself.
type writeFile struct {
	cf   *cryptfile.File
	name string
}

func (f *writeFile) Close() error               { return f.cf.Close() }
func (f *writeFile) Read([]byte) (int, error)   { return 0, os.ErrPermission }
func (f *writeFile) Write(p []byte) (int, error) {
	n, err := f.cf.CopyFrom(bytes.NewReader(p))
	return int(n), err
}
func (f *writeFile) Seek(int64, int) (int64, error) { return 0, os.ErrInvalid }
func (f *writeFile) Readdir(int) ([]os.FileInfo, error) { return nil, os.ErrInvalid }
func (f *writeFile) Stat() (os.FileInfo, error) {
	return fileInfo{name: f.name, size: f.cf.Len(), mod: f.cf.ModTime()}, nil
}
