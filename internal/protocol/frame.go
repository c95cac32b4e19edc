// Package protocol описывает кадры синхронизации мира и их кодирование.
//
// Кадр кодируется в protobuf wire format (поля 1 kind, 2 sequence, 3 payload),
// пакет кадров = повторяющееся поле 1 с вложенными кадрами. Сессионное
// оформление пакета (длина, сжатие, доставка) остаётся за транспортом.
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedFrame данные не разбираются как кадр
var ErrMalformedFrame = errors.New("повреждённый кадр")

// Kind тип кадра
type Kind uint8

const (
	KindUnknown   Kind = 0
	KindMutation  Kind = 1 // сервер → клиент, Sequence = номер мутации
	KindIntent    Kind = 2 // клиент → сервер, Sequence = временный id предсказания
	KindAck       Kind = 3 // клиент → сервер: последний применённый номер; сервер → клиент: точка начала потока
	KindChunkData Kind = 4 // сервер → клиент, снимок чанка на номере Sequence
)

func (k Kind) String() string {
	switch k {
	case KindMutation:
		return "Mutation"
	case KindIntent:
		return "Intent"
	case KindAck:
		return "Ack"
	case KindChunkData:
		return "ChunkData"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame единица обмена между ядром и транспортом
type Frame struct {
	Kind     Kind
	Sequence uint64
	Payload  []byte
}

const (
	fieldKind     protowire.Number = 1
	fieldSequence protowire.Number = 2
	fieldPayload  protowire.Number = 3

	fieldBatchFrame protowire.Number = 1
)

// AppendFrame дописывает закодированный кадр в buf
func AppendFrame(buf []byte, f Frame) []byte {
	buf = protowire.AppendTag(buf, fieldKind, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(f.Kind))
	buf = protowire.AppendTag(buf, fieldSequence, protowire.VarintType)
	buf = protowire.AppendVarint(buf, f.Sequence)
	if len(f.Payload) > 0 {
		buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
		buf = protowire.AppendBytes(buf, f.Payload)
	}
	return buf
}

// EncodeFrame кодирует кадр
func EncodeFrame(f Frame) []byte {
	return AppendFrame(make([]byte, 0, 16+len(f.Payload)), f)
}

// DecodeFrame разбирает кадр. Неизвестные поля пропускаются.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Frame{}, fmt.Errorf("%w: тег: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return Frame{}, fmt.Errorf("%w: kind: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Kind = Kind(v)
			n = m
		case num == fieldSequence && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return Frame{}, fmt.Errorf("%w: sequence: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Sequence = v
			n = m
		case num == fieldPayload && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return Frame{}, fmt.Errorf("%w: payload: %v", ErrMalformedFrame, protowire.ParseError(m))
			}
			f.Payload = append([]byte(nil), v...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Frame{}, fmt.Errorf("%w: поле %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
		}
		data = data[n:]
	}

	if f.Kind == KindUnknown {
		return Frame{}, fmt.Errorf("%w: не указан тип", ErrMalformedFrame)
	}
	return f, nil
}

// EncodeBatch кодирует несколько кадров в один пакет
func EncodeBatch(frames []Frame) []byte {
	var buf []byte
	for _, f := range frames {
		buf = protowire.AppendTag(buf, fieldBatchFrame, protowire.BytesType)
		buf = protowire.AppendBytes(buf, EncodeFrame(f))
	}
	return buf
}

// DecodeBatch разбирает пакет кадров. Повреждённый пакет отклоняется целиком.
func DecodeBatch(data []byte) ([]Frame, error) {
	var frames []Frame
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: тег пакета: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		data = data[n:]

		if num != fieldBatchFrame || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: поле пакета %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		raw, m := protowire.ConsumeBytes(data)
		if m < 0 {
			return nil, fmt.Errorf("%w: кадр пакета: %v", ErrMalformedFrame, protowire.ParseError(m))
		}
		f, err := DecodeFrame(raw)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		data = data[m:]
	}
	return frames, nil
}
