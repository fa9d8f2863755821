package images

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"

	"github.com/disintegration/imaging"
	"github.com/scanhelper/scanhelper/internal/geometry"
)

// MaxImageBytes caps uploads and downloads (10MB).
const MaxImageBytes = 10 * 1024 * 1024

// JPEGQuality is used whenever an image is re-encoded.
const JPEGQuality = 80

// Image is an encoded bitmap together with its natural pixel size. It is
// treated as immutable once produced.
type Image struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// FromBytes inspects data without fully decoding it.
func FromBytes(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("empty image data")
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image header: %w", err)
	}
	return Image{
		Data:     data,
		MimeType: "image/" + format,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// FromFile reads and inspects an image on disk.
func FromFile(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return Image{}, fmt.Errorf("image too large: %d bytes (max %d)", len(data), MaxImageBytes)
	}
	return FromBytes(data)
}

// Normalize decodes data applying its EXIF orientation and re-encodes it as
// JPEG, so the reported size matches the pixels a crop will operate on.
func Normalize(data []byte) (Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Encode(img)
}

// Encode writes img as JPEG.
func Encode(img image.Image) (Image, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return Image{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	b := img.Bounds()
	return Image{
		Data:     buf.Bytes(),
		MimeType: "image/jpeg",
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Size returns the natural size in the units the crop math works in.
func (i Image) Size() geometry.Size {
	return geometry.Size{Width: float64(i.Width), Height: float64(i.Height)}
}

// Hash returns the hex sha256 of the encoded bytes; it identifies the image
// in persisted history.
func (i Image) Hash() string {
	return ContentHash(i.Data)
}

// ContentHash returns the hex sha256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns the image as an inline data URL.
func (i Image) DataURI() string {
	mime := i.MimeType
	if mime == "" {
		mime = http.DetectContentType(i.Data)
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, i.Base64())
}

// JPEG returns the image bytes as JPEG, re-encoding only when the source is
// in another format.
func (i Image) JPEG() ([]byte, error) {
	if i.MimeType == "image/jpeg" {
		return i.Data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(i.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	out, err := Encode(img)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
