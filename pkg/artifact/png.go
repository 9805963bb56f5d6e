package artifact

import (
	"bytes"
	"fmt"
	"image/png"
)

// NormalizePNG decodes data as a PNG image and re-encodes it. It rejects
// payloads that are not valid PNG files.
func NormalizePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
