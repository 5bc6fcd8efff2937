// Package cryptfile implements the Encrypted File engine: a chunked
// XChaCha20-Poly1305 AEAD stream cipher over on-disk files, with
// plaintext-offset-to-ciphertext-offset mapping so HTTP Range requests
// can seek directly to the chunk they need instead of decrypting from the
// start of the file.
//
// On-disk layout: [ nonce header (19 bytes) ][ chunk_0 ][ chunk_1 ]...[ chunk_n ].
// Each plaintext chunk is at most PlainChunkSize bytes; its ciphertext is
// exactly plaintext-length + TagSize bytes. Chunk position and finality
// are bound into the AEAD nonce (STREAM-BE32: a big-endian 32-bit counter
// plus a last-chunk flag byte appended to the random header), so
// truncating or reordering chunks is detected as an authentication
// failure rather than silently producing wrong plaintext.
package cryptfile

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// PlainChunkSize is the maximum plaintext bytes per chunk.
	PlainChunkSize = 1_000_000
	// TagSize is the AEAD authentication tag appended to each chunk.
	TagSize = 16
	// CipherChunkSize is the on-disk size of a full chunk.
	CipherChunkSize = PlainChunkSize + TagSize

	// HeaderSize is the random STREAM header stored at the front of the file.
	HeaderSize = 19
	counterSize = 4
	lastFlagSize = 1
)

// nonceFor builds the 24-byte XChaCha20-Poly1305 nonce for chunk index
// idx: the 19-byte file header, a big-endian 32-bit counter, and a
// trailing flag byte that is 1 for the final chunk and 0 otherwise.
func nonceFor(header []byte, idx uint32, isLast bool) []byte {
	nonce := make([]byte, 0, chacha20poly1305.NonceSizeX)
	nonce = append(nonce, header...)
	var counter [counterSize]byte
	binary.BigEndian.PutUint32(counter[:], idx)
	nonce = append(nonce, counter[:]...)
	if isLast {
		nonce = append(nonce, 1)
	} else {
		nonce = append(nonce, 0)
	}
	return nonce
}

// DecryptedSize returns the plaintext length implied by a ciphertext of
// length cipherSize. Per the pinned empty-file convention, a ciphertext of
// exactly HeaderSize (no chunks at all) is a valid, intentionally-empty
// file and maps to 0; a ciphertext of length 0 means the file was never
// written and also maps to 0 here (Open tells the two cases apart itself).
func DecryptedSize(cipherSize int64) int64 {
	if cipherSize <= HeaderSize {
		return 0
	}
	body := cipherSize - HeaderSize
	nChunks := (body + CipherChunkSize - 1) / CipherChunkSize
	return body - TagSize*nChunks
}

// ChunkForOffset maps a plaintext offset p to the chunk index that
// contains it, the byte offset of that chunk's ciphertext within the
// file, and the offset of p within the chunk's plaintext.
func ChunkForOffset(p int64) (chunkIndex uint32, cipherOffset int64, offsetInChunk int64) {
	idx := p / PlainChunkSize
	return uint32(idx), HeaderSize + idx*CipherChunkSize, p - idx*PlainChunkSize
}

// lastChunkIndex returns the index of the final chunk for a plaintext of
// size plainSize, and whether the file has any chunks at all.
func lastChunkIndex(plainSize int64) (idx uint32, hasChunks bool) {
	if plainSize == 0 {
		return 0, false
	}
	n := (plainSize + PlainChunkSize - 1) / PlainChunkSize
	return uint32(n - 1), true
}
