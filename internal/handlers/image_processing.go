package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"

	"github.com/scanhelper/scanhelper/internal/geometry"
	"github.com/scanhelper/scanhelper/internal/images"
)

// preparedImage is an upload after orientation and cropping.
type preparedImage struct {
	Image   images.Image
	Cropped bool
	Region  *geometry.Rect
}

// prepareImage normalizes data and, when both rectangles are given, crops it
// to the region cropRect covers inside frame. Geometry or crop failures fall
// back to the whole image.
func (h *Handler) prepareImage(data []byte, cropRect, frame *geometry.Rect) (*preparedImage, error) {
	img, err := images.Normalize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid image: %w", err)
	}
	result := &preparedImage{Image: img}
	if cropRect == nil || frame == nil {
		return result, nil
	}

	region, err := geometry.MapDisplayRectToImageRect(*cropRect, *frame, img.Size())
	if err == nil {
		result.Region = &region
	}
	result.Image, result.Cropped = h.cropper.Apply(img, *cropRect, *frame)
	if !result.Cropped {
		result.Region = nil
	}
	slog.Info("Image prepared", "width", result.Image.Width, "height", result.Image.Height, "cropped", result.Cropped)
	return result, nil
}

func readUpload(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, images.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file contents: %w", err)
	}
	if len(data) > images.MaxImageBytes {
		return nil, fmt.Errorf("file too large (max %d bytes)", images.MaxImageBytes)
	}
	return data, nil
}

// parseRectField decodes an optional JSON rectangle form field.
func parseRectField(value, name string) (*geometry.Rect, error) {
	if value == "" {
		return nil, nil
	}
	var r geometry.Rect
	if err := json.Unmarshal([]byte(value), &r); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &r, nil
}
