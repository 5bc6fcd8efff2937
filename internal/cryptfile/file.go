package cryptfile

import (
	"bufio"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// File is a single on-disk file, transparently encrypted when a key is
// present. It is the unit the DAV server's GET/PUT handlers and the
// webdav.FileSystem adapter operate on.
type File struct {
	f          *os.File
	key        []byte
	header     []byte // 19-byte STREAM header; valid only when key != nil
	cipherSize int64
	plainSize  int64
	modTime    time.Time
}

// Create truncates/creates the file at path. When key is non-nil, a fresh
// random 19-byte header is written immediately, matching an intentionally
// empty file's convention (ciphertext length HeaderSize, plaintext 0)
// until CopyFrom adds chunks.
func Create(path string, key []byte) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	ef := &File{f: f, key: key}
	if key != nil {
		header := make([]byte, HeaderSize)
		if _, err := rand.Read(header); err != nil {
			f.Close()
			return nil, err
		}
		if _, err := f.Write(header); err != nil {
			f.Close()
			return nil, err
		}
		ef.header = header
		ef.cipherSize = HeaderSize
	}
	ef.modTime = time.Now()
	return ef, nil
}

// Open opens path read-only and records its metadata, decoding the
// plaintext size from the on-disk ciphertext size when key is set.
func Open(path string, key []byte) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ef := &File{f: f, key: key, cipherSize: st.Size(), modTime: st.ModTime()}
	if key == nil {
		ef.plainSize = st.Size()
		return ef, nil
	}
	if st.Size() == 0 {
		// Never written: not the same as an intentionally empty file.
		ef.plainSize = 0
		return ef, nil
	}
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("cryptfile: reading header: %w", err)
	}
	ef.header = header
	ef.plainSize = DecryptedSize(st.Size())
	return ef, nil
}

// Close releases the underlying file descriptor.
func (ef *File) Close() error {
	return ef.f.Close()
}

// Len returns the plaintext length.
func (ef *File) Len() int64 {
	return ef.plainSize
}

// ModTime returns the file's modification time.
func (ef *File) ModTime() time.Time {
	return ef.modTime
}

// SetModTime applies an explicit mtime, used by PUT's X-OC-Mtime handling.
func (ef *File) SetModTime(t time.Time) error {
	if err := os.Chtimes(ef.f.Name(), t, t); err != nil {
		return err
	}
	ef.modTime = t
	return nil
}

// CacheHeaders returns the ETag and Last-Modified values the DAV GET
// handler should attach to a response, per §4.5.
func (ef *File) CacheHeaders() (etag string, lastModified time.Time) {
	return fmt.Sprintf(`"%d-%d"`, ef.modTime.UnixMilli(), ef.plainSize), ef.modTime
}

// CopyFrom stream-encrypts r's entire contents into the file, which must
// already be positioned just after the header (as Create leaves it). It
// returns the plaintext byte count written. An empty r writes no chunks
// at all, per the pinned empty-file convention.
func (ef *File) CopyFrom(r io.Reader) (int64, error) {
	if ef.key == nil {
		n, err := io.Copy(ef.f, r)
		ef.plainSize += n
		return n, err
	}
	aead, err := chacha20poly1305.NewX(ef.key)
	if err != nil {
		return 0, err
	}
	br := bufio.NewReaderSize(r, PlainChunkSize)
	var total int64
	var idx uint32
	for {
		buf := make([]byte, PlainChunkSize)
		n, rerr := io.ReadFull(br, buf)
		switch rerr {
		case nil:
			_, peekErr := br.Peek(1)
			isLast := peekErr != nil
			if err := ef.writeChunk(aead, buf[:n], idx, isLast); err != nil {
				return total, err
			}
			total += int64(n)
			idx++
			if isLast {
				ef.plainSize += total
				return total, nil
			}
		case io.ErrUnexpectedEOF:
			if err := ef.writeChunk(aead, buf[:n], idx, true); err != nil {
				return total, err
			}
			total += int64(n)
			ef.plainSize += total
			return total, nil
		case io.EOF:
			ef.plainSize += total
			return total, nil
		default:
			return total, rerr
		}
	}
}

func (ef *File) writeChunk(aead cipher.AEAD, plain []byte, idx uint32, isLast bool) error {
	nonce := nonceFor(ef.header, idx, isLast)
	ciphertext := aead.Seal(nil, nonce, plain, nil)
	if _, err := ef.f.Write(ciphertext); err != nil {
		return err
	}
	ef.cipherSize += int64(len(ciphertext))
	return nil
}

// decryptChunk reads and opens chunk idx from the underlying file.
func (ef *File) decryptChunk(aead cipher.AEAD, idx uint32) ([]byte, error) {
	lastIdx, _ := lastChunkIndex(ef.plainSize)
	cipherOff := int64(HeaderSize) + int64(idx)*CipherChunkSize
	size := CipherChunkSize
	if idx == lastIdx {
		size = int(ef.cipherSize - cipherOff)
	}
	buf := make([]byte, size)
	if _, err := ef.f.ReadAt(buf, cipherOff); err != nil && err != io.EOF {
		return nil, err
	}
	nonce := nonceFor(ef.header, idx, idx == lastIdx)
	return aead.Open(nil, nonce, buf, nil)
}

// CopyTo stream-decrypts the entire file into w.
func (ef *File) CopyTo(w io.Writer) (int64, error) {
	if ef.key == nil {
		if _, err := ef.f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		return io.Copy(w, ef.f)
	}
	r, err := ef.NewReader()
	if err != nil {
		return 0, err
	}
	return io.Copy(w, r)
}

// NewReader returns an io.ReadSeeker over the plaintext, suitable for
// handing to http.ServeContent so conditional requests, Range, and ETag
// negotiation are handled by the standard library.
func (ef *File) NewReader() (io.ReadSeeker, error) {
	if ef.key == nil {
		return ef.f, nil
	}
	aead, err := chacha20poly1305.NewX(ef.key)
	if err != nil {
		return nil, err
	}
	return &decryptingReader{ef: ef, aead: aead, chunk: -1}, nil
}

// decryptingReader implements io.ReadSeeker over an encrypted File by
// decrypting one chunk at a time and caching the last chunk decrypted, so
// sequential reads (the common case) don't re-decrypt a chunk per call.
type decryptingReader struct {
	ef    *File
	aead  cipher.AEAD
	pos   int64
	chunk int64 // index of the cached plaintext chunk, -1 if none cached
	plain []byte
}

func (r *decryptingReader) Read(p []byte) (int, error) {
	if r.pos >= r.ef.plainSize {
		return 0, io.EOF
	}
	idx, _, offsetInChunk := ChunkForOffset(r.pos)
	if int64(idx) != r.chunk {
		plain, err := r.ef.decryptChunk(r.aead, idx)
		if err != nil {
			return 0, fmt.Errorf("cryptfile: decrypt chunk %d: %w", idx, err)
		}
		r.plain = plain
		r.chunk = int64(idx)
	}
	n := copy(p, r.plain[offsetInChunk:])
	r.pos += int64(n)
	return n, nil
}

func (r *decryptingReader) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = r.ef.plainSize + offset
	default:
		return 0, fmt.Errorf("cryptfile: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("cryptfile: negative seek position")
	}
	r.pos = newPos
	return r.pos, nil
}
