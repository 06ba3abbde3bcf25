// Package utils предоставляет утилиты для обработки изображений.
package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Регистрируем PNG декодер

	"github.com/nfnt/resize"
)

const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
)

// ResizeImage ужимает изображение до maxWidth, сохраняя пропорции, и кодирует в JPEG.
//
// Если maxWidth <= 0 или картинка уже уже - ресайз не применяется, но результат
// всё равно JPEG (для единообразия).
func ResizeImage(data []byte, maxWidth int, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()

	if maxWidth > 0 && width > maxWidth {
		aspectRatio := float64(bounds.Dy()) / float64(width)
		newHeight := uint(float64(maxWidth) * aspectRatio)
		img = resize.Resize(uint(maxWidth), newHeight, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode to jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// PrepareForEmbed готовит байты картинки к встраиванию в ответ.
//
// maxWidth == 0 или картинка не шире maxWidth - байты не трогаем,
// mime = image/png (ассистент отдаёт PNG). Иначе - ResizeImage и image/jpeg.
// Если картинку не удалось декодировать, возвращаем оригинал как PNG, а не
// ошибку: встроить её всё равно можно.
func PrepareForEmbed(data []byte, maxWidth, quality int) (mime string, out []byte) {
	if maxWidth <= 0 {
		return MimePNG, data
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		Warn("Image resize skipped", "error", err)
		return MimePNG, data
	}
	if cfg.Width <= maxWidth {
		return MimePNG, data
	}
	resized, err := ResizeImage(data, maxWidth, quality)
	if err != nil {
		Warn("Image resize skipped", "error", err)
		return MimePNG, data
	}
	return MimeJPEG, resized
}

// DataURI кодирует байты в data:<mime>;base64,... строку.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
