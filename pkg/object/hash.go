package object

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HashBytes returns the SHA-256 of data, hex encoded.
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// HashObject computes the SHA-256 of the envelope "type len\0content".
// A blob's hash is therefore stable regardless of how the store encodes it
// on disk.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha256.New()
	h.Write(envelopeHeader(objType, len(data)))
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

func envelopeHeader(objType ObjectType, n int) []byte {
	hdr := make([]byte, 0, len(objType)+12)
	hdr = append(hdr, objType...)
	hdr = append(hdr, ' ')
	hdr = strconv.AppendInt(hdr, int64(n), 10)
	return append(hdr, 0)
}

// BlobHash is the hash a blob holding data would be stored under.
func BlobHash(data []byte) Hash {
	return HashObject(TypeBlob, data)
}
