package cryptfile

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestNonceForProducesFullWidthDistinctNonces(t *testing.T) {
	header := bytes.Repeat([]byte{0x42}, HeaderSize)

	n0 := nonceFor(header, 0, false)
	n1 := nonceFor(header, 1, false)
	nLast := nonceFor(header, 0, true)

	for _, n := range [][]byte{n0, n1, nLast} {
		if len(n) != chacha20poly1305.NonceSizeX {
			t.Fatalf("nonce length = %d, want %d", len(n), chacha20poly1305.NonceSizeX)
		}
	}
	if bytes.Equal(n0, n1) {
		t.Fatalf("nonces for distinct chunk indices must differ")
	}
	if bytes.Equal(n0, nLast) {
		t.Fatalf("nonces for the same index with differing last-chunk flag must differ")
	}
	if !bytes.Equal(n0[:HeaderSize], header) || !bytes.Equal(n1[:HeaderSize], header) {
		t.Fatalf("nonce must start with the file header verbatim")
	}
}

func TestDecryptedSizeNeverWritten(t *testing.T) {
	if got := DecryptedSize(0); got != 0 {
		t.Fatalf("DecryptedSize(0) = %d, want 0", got)
	}
}

func TestDecryptedSizeIntentionallyEmpty(t *testing.T) {
	if got := DecryptedSize(HeaderSize); got != 0 {
		t.Fatalf("DecryptedSize(HeaderSize) = %d, want 0", got)
	}
}

func TestDecryptedSizeSingleFullChunk(t *testing.T) {
	cipherSize := int64(HeaderSize + CipherChunkSize)
	if got := DecryptedSize(cipherSize); got != PlainChunkSize {
		t.Fatalf("DecryptedSize(one full chunk) = %d, want %d", got, PlainChunkSize)
	}
}

func TestDecryptedSizeMultipleChunksWithPartialTail(t *testing.T) {
	tail := int64(12345)
	cipherSize := int64(HeaderSize) + 2*int64(CipherChunkSize) + (tail + TagSize)
	want := 2*int64(PlainChunkSize) + tail
	if got := DecryptedSize(cipherSize); got != want {
		t.Fatalf("DecryptedSize(two full + partial) = %d, want %d", got, want)
	}
}

func TestChunkForOffsetAtBoundaries(t *testing.T) {
	cases := []struct {
		offset        int64
		wantIdx       uint32
		wantInChunk   int64
		wantCipherOff int64
	}{
		{0, 0, 0, HeaderSize},
		{PlainChunkSize - 1, 0, PlainChunkSize - 1, HeaderSize},
		{PlainChunkSize, 1, 0, HeaderSize + CipherChunkSize},
		{PlainChunkSize + 1, 1, 1, HeaderSize + CipherChunkSize},
	}
	for _, c := range cases {
		idx, cipherOff, inChunk := ChunkForOffset(c.offset)
		if idx != c.wantIdx || cipherOff != c.wantCipherOff || inChunk != c.wantInChunk {
			t.Fatalf("ChunkForOffset(%d) = (%d, %d, %d), want (%d, %d, %d)",
				c.offset, idx, cipherOff, inChunk, c.wantIdx, c.wantCipherOff, c.wantInChunk)
		}
	}
}

func TestLastChunkIndex(t *testing.T) {
	if idx, has := lastChunkIndex(0); has || idx != 0 {
		t.Fatalf("lastChunkIndex(0) = (%d, %v), want (0, false)", idx, has)
	}
	if idx, has := lastChunkIndex(1); !has || idx != 0 {
		t.Fatalf("lastChunkIndex(1) = (%d, %v), want (0, true)", idx, has)
	}
	if idx, has := lastChunkIndex(PlainChunkSize); !has || idx != 0 {
		t.Fatalf("lastChunkIndex(PlainChunkSize) = (%d, %v), want (0, true)", idx, has)
	}
	if idx, has := lastChunkIndex(PlainChunkSize + 1); !has || idx != 1 {
		t.Fatalf("lastChunkIndex(PlainChunkSize+1) = (%d, %v), want (1, true)", idx, has)
	}
}
