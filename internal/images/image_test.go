package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFromBytes(t *testing.T) {
	img, err := FromBytes(testPNG(t, 40, 20))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 20, img.Height)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, 40.0, img.Size().Width)

	_, err = FromBytes(nil)
	assert.Error(t, err)

	_, err = FromBytes([]byte("definitely not an image"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	img, err := Normalize(testPNG(t, 64, 32))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 32, img.Height)

	again, err := FromBytes(img.Data)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", again.MimeType)
}

func TestHashAndDataURI(t *testing.T) {
	img := Image{Data: []byte("abc"), MimeType: "image/jpeg"}
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", img.Hash())
	assert.Equal(t, "YWJj", img.Base64())
	assert.Equal(t, "data:image/jpeg;base64,YWJj", img.DataURI())
}

func TestJPEG_ReencodesOtherFormats(t *testing.T) {
	img, err := FromBytes(testPNG(t, 8, 8))
	require.NoError(t, err)
	data, err := img.JPEG()
	require.NoError(t, err)
	decoded, err := FromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", decoded.MimeType)
}

func TestFetcher_Fetch(t *testing.T) {
	data := testPNG(t, 10, 12)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing.png") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer server.Close()

	f := NewFetcher()
	img, err := f.Fetch(context.Background(), server.URL+"/problem.png")
	require.NoError(t, err)
	assert.Equal(t, 10, img.Width)
	assert.Equal(t, 12, img.Height)

	_, err = f.Fetch(context.Background(), server.URL+"/missing.png")
	assert.ErrorContains(t, err, "HTTP 404")
}
