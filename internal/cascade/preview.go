package cascade

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const thumbnailSize = 160

var errNoPreview = errors.New("no preview available")

// thumbnail decodes f and scales it to fit a thumbnailSize square. The
// result is a PNG data URL.
func thumbnail(f File) (string, error) {
	if len(f.Data) == 0 || normalizeMIME(f.ContentType) == "image/avif" {
		return "", errNoPreview
	}
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		decoded, webpErr := webp.Decode(bytes.NewReader(f.Data))
		if webpErr != nil {
			return "", errors.New("unable to decode image")
		}
		img = decoded
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return "", errors.New("invalid image dimensions")
	}
	targetW, targetH := thumbnailSize, thumbnailSize
	if width > height {
		targetH = max(1, height*thumbnailSize/width)
	} else {
		targetW = max(1, width*thumbnailSize/height)
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return "", errors.New("unable to encode preview")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(out.Bytes()), nil
}
