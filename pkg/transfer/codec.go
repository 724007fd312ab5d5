package transfer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec applied to a message body.
type Compression uint8

const (
	None Compression = iota
	LZ4
	Zstd
	S2
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression parses a codec name as printed by String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "s2":
		return S2, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

// errIncompressible makes Encode store the body uncompressed.
var errIncompressible = errors.New("incompressible")

// codec compresses whole message bodies. Decompress is given the exact
// uncompressed size, which the message header carries.
type codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte, size int) ([]byte, error)
}

func codecFor(c Compression) (codec, error) {
	switch c {
	case None:
		return noopCodec{}, nil
	case LZ4:
		return lz4Codec{}, nil
	case Zstd:
		return zstdCodec{}, nil
	case S2:
		return s2Codec{}, nil
	default:
		return nil, fmt.Errorf("compression %s: %w", c, ErrUnknownMessage)
	}
}

type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (noopCodec) Decompress(data []byte, size int) ([]byte, error) {
	if len(data) != size {
		return nil, fmt.Errorf("body is %d bytes, header says %d", len(data), size)
	}
	return data, nil
}

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("lz4: got %d bytes, want %d", n, size)
	}
	return buf, nil
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderCRC(false),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

type zstdCodec struct{}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)
	return encoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	out, err := decoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

type s2Codec struct{}

func (s2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Encode(nil, data), nil
}

func (s2Codec) Decompress(data []byte, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	return s2.Decode(make([]byte, size), data)
}
