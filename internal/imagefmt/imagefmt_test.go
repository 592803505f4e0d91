package imagefmt

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestProbeDetectsFormats(t *testing.T) {
	format, err := Probe(encodePNG(t))
	require.NoError(t, err)
	assert.Equal(t, PNG, format)
	assert.Equal(t, "image/png", format.MIMEType())

	format, err = Probe(encodeJPEG(t))
	require.NoError(t, err)
	assert.Equal(t, JPEG, format)
}

func TestProbeRejectsGarbage(t *testing.T) {
	_, err := Probe([]byte("not an image at all"))
	assert.True(t, errors.Is(err, ErrUndecodable))
}

func TestProbeFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(good, encodePNG(t), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte{0xFF, 0xD8, 0xFF, 0x00}, 0o644))

	format, err := ProbeFile(good)
	require.NoError(t, err)
	assert.Equal(t, PNG, format)

	_, err = ProbeFile(bad)
	assert.ErrorIs(t, err, ErrUndecodable)

	_, err = ProbeFile(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFromExtension(t *testing.T) {
	assert.Equal(t, JPEG, FromExtension("a/B.JPEG"))
	assert.Equal(t, TIFF, FromExtension("scan.tif"))
	assert.False(t, IsImageName("notes.txt"))
}
