package kv

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func TestEncodePassesPrimitivesThrough(t *testing.T) {
	for _, v := range []any{"s", []byte("b"), 1, int64(2), 3.5, true, time.Second} {
		got, err := Encode(nil, v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	got, err := Encode(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestEncodeStruct(t *testing.T) {
	got, err := Encode(DefaultCodec, profile{Name: "kim", Tags: []string{"a"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"kim","tags":["a"]}`, string(got.([]byte)))
}

func TestDecode(t *testing.T) {
	var n int64
	require.NoError(t, Decode(nil, "42", &n))
	assert.Equal(t, int64(42), n)

	var f float64
	require.NoError(t, Decode(nil, "1.5", &f))
	assert.Equal(t, 1.5, f)

	var p profile
	require.NoError(t, Decode(DefaultCodec, `{"name":"bob","tags":["x","y"]}`, &p))
	assert.Equal(t, profile{Name: "bob", Tags: []string{"x", "y"}}, p)
}

func TestDecodeErrorsWrapErrCodec(t *testing.T) {
	var n int
	err := Decode(nil, "not-a-number", &n)
	assert.True(t, errors.Is(err, ErrCodec))

	var p profile
	err = Decode(DefaultCodec, "{broken", &p)
	assert.ErrorIs(t, err, ErrCodec)
}

type failingCodec struct{}

func (failingCodec) Marshal(any) ([]byte, error) { return nil, errors.New("nope") }
func (failingCodec) Unmarshal([]byte, any) error { return errors.New("nope") }

func TestEncodeAllStopsOnError(t *testing.T) {
	out, err := EncodeAll(DefaultCodec, []any{1, "a", profile{Name: "x"}})
	require.NoError(t, err)
	assert.Len(t, out, 3)

	_, err = EncodeAll(failingCodec{}, []any{1, profile{}})
	assert.ErrorIs(t, err, ErrCodec)
}
