package object

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// codecs returns process-wide zstd encoder and decoder. Both are safe for
// concurrent use through EncodeAll and DecodeAll.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

func compressZstd(data []byte) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, nil), nil
}

// decodeLoose returns the raw envelope of a loose object file. Files written
// before compression was introduced hold the envelope uncompressed.
func decodeLoose(raw []byte) ([]byte, error) {
	if !bytes.HasPrefix(raw, zstdMagic) {
		return raw, nil
	}
	_, dec, err := codecs()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(raw, nil)
}
