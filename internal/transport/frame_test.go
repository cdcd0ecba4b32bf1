package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFrameRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	got, err := ReadFrame(&buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf, 1024)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 100)))

	_, err := ReadFrame(&buf, 64)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameTruncatedHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x00}), 1024)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	truncated := buf.Bytes()[:buf.Len()-2]

	_, err := ReadFrame(bytes.NewReader(truncated), 1024)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPropertyFrameRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "payload")

		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := ReadFrame(&buf, 4096)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(payload, got) {
			t.Fatalf("payload changed across roundtrip")
		}
	})
}

func TestPropertyBackToBackFrames(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 64), 1, 10).Draw(t, "frames")

		var buf bytes.Buffer
		for _, frame := range frames {
			if err := WriteFrame(&buf, frame); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
		for i, want := range frames {
			got, err := ReadFrame(&buf, 64)
			if err != nil {
				t.Fatalf("read %d: %v", i, err)
			}
			if !bytes.Equal(want, got) {
				t.Fatalf("frame %d changed across roundtrip", i)
			}
		}
	})
}
