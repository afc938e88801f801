package qr

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	c := NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	payload := c.Encode("bk_42")

	assert.True(t, strings.HasPrefix(payload, "JNY1.bk_42."))
	assert.Len(t, strings.Split(payload, ".")[2], 16)

	got, err := c.Decode("  " + payload + "\n")
	require.NoError(t, err)
	assert.Equal(t, "bk_42", got)
}

func TestDecodeRejects(t *testing.T) {
	c := NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	payload := c.Encode("bk_42")

	t.Run("should detect a swapped book id", func(t *testing.T) {
		forged := strings.Replace(payload, "bk_42", "bk_43", 1)
		_, err := c.Decode(forged)
		assert.ErrorIs(t, err, ErrTampered)
	})

	t.Run("should detect a different key", func(t *testing.T) {
		other := NewCodec([]byte("ffffffffffffffffffffffffffffffff"))
		_, err := other.Decode(payload)
		assert.ErrorIs(t, err, ErrTampered)
	})

	t.Run("should reject unknown versions", func(t *testing.T) {
		_, err := c.Decode(strings.Replace(payload, "JNY1", "JNY9", 1))
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("should reject empty input", func(t *testing.T) {
		_, err := c.Decode("   ")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestDecodePassesBareCodes(t *testing.T) {
	c := NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	for _, code := range []string{"bk_1", "978-0262033848", "0190c0de-uuid"} {
		got, err := c.Decode(code)
		require.NoError(t, err)
		assert.Equal(t, code, got)
	}
}

func TestLabel(t *testing.T) {
	c := NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	data, err := c.Label("bk_1", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultLabelSize, img.Bounds().Dx())
}
