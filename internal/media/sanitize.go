package media

import (
	"bytes"
	"errors"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

// Extension returns the lower-case extension of filename when it is one of
// the accepted image types.
func Extension(filename string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	_, ok := contentTypes[ext]
	return ext, ok
}

// Sanitize decodes the image and encodes it again in the same format. Only
// pixel data survives, so EXIF and other metadata blocks are dropped.
func Sanitize(data []byte, ext string) ([]byte, string, error) {
	contentType, ok := contentTypes[ext]
	if !ok {
		return nil, "", ErrUnsupportedImage
	}

	var out bytes.Buffer
	switch ext {
	case "gif":
		decoded, err := gif.DecodeAll(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode gif: %w", err)
		}
		if err := gif.EncodeAll(&out, decoded); err != nil {
			return nil, "", fmt.Errorf("encode gif: %w", err)
		}
	case "png":
		decoded, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode png: %w", err)
		}
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&out, decoded); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
	default:
		decoded, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("decode jpeg: %w", err)
		}
		if err := jpeg.Encode(&out, decoded, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
	}

	return out.Bytes(), contentType, nil
}
