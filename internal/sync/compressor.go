package sync

import (
	"errors"
	"fmt"
	gosync "sync"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/voxel-world/internal/network"
	"github.com/annel0/voxel-world/internal/protocol"
)

// Compressor упаковывает пакет кадров для транспорта и обратно.
// Первый байт пакета задаёт кодек, поэтому любой Compressor читает
// пакеты любого другого.
type Compressor interface {
	Compress(frames []protocol.Frame) ([]byte, error)
	Decompress(payload []byte) ([]protocol.Frame, error)
}

const (
	codecRaw  byte = 0
	codecZstd byte = 1
)

// ErrUnknownCodec пакет закодирован неизвестным кодеком
var ErrUnknownCodec = errors.New("неизвестный кодек пакета")

// maxDecodedPacket предел распакованного пакета. Больше не бывает: пакет
// режется по числу кадров, а кадр снимка чанка занимает около 8 КБ.
const maxDecodedPacket = 2 * network.MaxPacketSize

var (
	decoderOnce gosync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderMaxMemory(maxDecodedPacket),
			zstd.WithDecoderMaxWindow(maxDecodedPacket),
		)
	})
	return decoder, decoderErr
}

// decodePacket общий разбор пакета для всех компрессоров
func decodePacket(payload []byte) ([]protocol.Frame, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: пустой пакет", protocol.ErrMalformedFrame)
	}
	body := payload[1:]
	switch payload[0] {
	case codecRaw:
		return protocol.DecodeBatch(body)
	case codecZstd:
		dec, err := zstdDecoder()
		if err != nil {
			return nil, err
		}
		raw, err := dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", protocol.ErrMalformedFrame, err)
		}
		return protocol.DecodeBatch(raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, payload[0])
	}
}

type passthroughCompressor struct{}

// NewPassthroughCompressor пакеты без сжатия
func NewPassthroughCompressor() Compressor { return passthroughCompressor{} }

func (passthroughCompressor) Compress(frames []protocol.Frame) ([]byte, error) {
	return append([]byte{codecRaw}, protocol.EncodeBatch(frames)...), nil
}

func (passthroughCompressor) Decompress(payload []byte) ([]protocol.Frame, error) {
	return decodePacket(payload)
}

// zstdCompressor сжимает пакеты крупнее порога
type zstdCompressor struct {
	threshold int
	encoder   *zstd.Encoder
}

// NewZstdCompressor пакеты длиннее threshold байт сжимаются zstd,
// короткие уходят как есть
func NewZstdCompressor(threshold int) (Compressor, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithWindowSize(maxDecodedPacket),
	)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	if threshold < 0 {
		threshold = 0
	}
	return &zstdCompressor{threshold: threshold, encoder: enc}, nil
}

func (z *zstdCompressor) Compress(frames []protocol.Frame) ([]byte, error) {
	raw := protocol.EncodeBatch(frames)
	if len(raw) <= z.threshold {
		return append([]byte{codecRaw}, raw...), nil
	}
	return z.encoder.EncodeAll(raw, []byte{codecZstd}), nil
}

func (z *zstdCompressor) Decompress(payload []byte) ([]protocol.Frame, error) {
	return decodePacket(payload)
}
