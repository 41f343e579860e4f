package kv

import (
	"encoding"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// Codec serializes values the client cannot send as-is
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes values as JSON
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// DefaultCodec is used when a Config leaves Codec unset
var DefaultCodec Codec = JSONCodec{}

// Encode converts v into an argument the client writes verbatim. Strings,
// byte slices, numbers, bools, times and BinaryMarshalers pass through;
// everything else goes through the codec.
func Encode(c Codec, v any) (any, error) {
	switch v.(type) {
	case nil:
		return "", nil
	case string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, bool, time.Time, time.Duration,
		encoding.BinaryMarshaler:
		return v, nil
	}
	if c == nil {
		c = DefaultCodec
	}
	data, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %T: %v", ErrCodec, v, err)
	}
	return data, nil
}

// EncodeAll encodes every value of vs
func EncodeAll(c Codec, vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		enc, err := Encode(c, v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Decode is the inverse of Encode: pointers to primitives and
// BinaryUnmarshalers are filled by the client's scanner, anything else by
// the codec.
func Decode(c Codec, data string, dest any) error {
	switch dest.(type) {
	case *string, *[]byte,
		*int, *int8, *int16, *int32, *int64,
		*uint, *uint8, *uint16, *uint32, *uint64,
		*float32, *float64, *bool, *time.Time, *time.Duration,
		encoding.BinaryUnmarshaler:
		if err := redis.NewStringResult(data, nil).Scan(dest); err != nil {
			return fmt.Errorf("%w: decode %T: %v", ErrCodec, dest, err)
		}
		return nil
	}
	if c == nil {
		c = DefaultCodec
	}
	if err := c.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("%w: decode %T: %v", ErrCodec, dest, err)
	}
	return nil
}
