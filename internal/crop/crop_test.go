package crop

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/scanhelper/scanhelper/internal/geometry"
	"github.com/scanhelper/scanhelper/internal/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, w, h int) images.Image {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			src.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))
	img, err := images.FromBytes(buf.Bytes())
	require.NoError(t, err)
	return img
}

func TestExecutor_Crop(t *testing.T) {
	img := testImage(t, 100, 200)
	out, err := NewExecutor().Crop(img, geometry.Rect{X: 10, Y: 20, Width: 30.4, Height: 40.6})
	require.NoError(t, err)
	assert.Equal(t, 30, out.Width)
	assert.Equal(t, 41, out.Height)
	assert.Equal(t, "image/jpeg", out.MimeType)
}

func TestExecutor_CropClampsToBounds(t *testing.T) {
	img := testImage(t, 100, 100)
	out, err := NewExecutor().Crop(img, geometry.Rect{X: 80, Y: 90, Width: 50, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, 20, out.Width)
	assert.Equal(t, 10, out.Height)
}

func TestExecutor_CropFailure(t *testing.T) {
	tests := []struct {
		name string
		img  images.Image
		rect geometry.Rect
	}{
		{"corrupt source", images.Image{Data: []byte("garbage"), Width: 10, Height: 10}, geometry.Rect{Width: 5, Height: 5}},
		{"outside bitmap", testImage(t, 10, 10), geometry.Rect{X: 50, Y: 50, Width: 5, Height: 5}},
		{"sub-pixel rect", testImage(t, 10, 10), geometry.Rect{X: 1, Y: 1, Width: 0.2, Height: 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecutor().Crop(tt.img, tt.rect)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCropFailure))
		})
	}
}

func TestExecutor_Apply(t *testing.T) {
	img := testImage(t, 1000, 2000)
	frame := geometry.Rect{X: 10, Y: 10, Width: 300, Height: 600}
	e := NewExecutor()

	out, cropped := e.Apply(img, geometry.Rect{X: 50, Y: 100, Width: 90, Height: 120}, frame)
	assert.True(t, cropped)
	assert.Equal(t, 300, out.Width)
	assert.Equal(t, 400, out.Height)

	out, cropped = e.Apply(img, geometry.Rect{X: 50, Y: 100, Width: 90, Height: 120}, geometry.Rect{})
	assert.False(t, cropped)
	assert.Equal(t, img, out)

	corrupt := images.Image{Data: []byte("nope"), Width: 1000, Height: 2000}
	out, cropped = e.Apply(corrupt, geometry.Rect{X: 50, Y: 100, Width: 90, Height: 120}, frame)
	assert.False(t, cropped)
	assert.Equal(t, corrupt, out)
}
