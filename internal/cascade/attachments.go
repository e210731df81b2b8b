package cascade

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"golang.org/x/image/webp"
)

const (
	MaxImageBytes     = 10 << 20
	MaxImagesPerEntry = 10
)

var allowedImageTypes = map[string]string{
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/png":  "image/png",
	"image/webp": "image/webp",
	"image/avif": "image/avif",
}

// File is one candidate upload. Data may be nil while only the metadata is
// known; Submit refuses entries holding such a file.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        []byte
}

func (f File) size() int64 {
	if f.Size <= 0 && f.Data != nil {
		return int64(len(f.Data))
	}
	return f.Size
}

type attachment struct {
	id      uint64
	file    File
	preview string
}

// AttachmentView is one preview tile. Position is renumbered after every
// change; ID stays with the file.
type AttachmentView struct {
	ID       uint64 `json:"id"`
	Position int    `json:"position"`
	Label    string `json:"label"`
	Size     string `json:"size"`
	Preview  string `json:"preview,omitempty"`
}

type AttachResult struct {
	Count     int    `json:"count"`
	Truncated bool   `json:"truncated"`
	Warning   string `json:"warning,omitempty"`
}

// ValidateImages checks every file of a batch and fails on the first bad
// one. A batch over MaxImagesPerEntry is refused outright; the running
// total across batches is enforced by truncation, not here.
func ValidateImages(files []File) error {
	if len(files) > MaxImagesPerEntry {
		return &ValidationError{Fields: []string{"images", "count"}, Message: TooManyImagesMessage}
	}
	for _, f := range files {
		name := f.Name
		declared, ok := allowedImageTypes[normalizeMIME(f.ContentType)]
		if !ok {
			return unsupportedImage(name, "type")
		}
		if size := f.size(); size > MaxImageBytes {
			return &ValidationError{
				Fields:  []string{"images", "size"},
				Message: fmt.Sprintf("File %q is too large (%.2fMB). Maximum size is 10MB per image.", name, float64(size)/1024/1024),
			}
		}
		if len(f.Data) > 0 && !contentMatches(declared, f.Data) {
			return unsupportedImage(name, "content")
		}
	}
	return nil
}

func unsupportedImage(name, reason string) error {
	return &ValidationError{
		Fields:  []string{"images", reason},
		Message: fmt.Sprintf("File %q is not a supported image format. Please use JPG, PNG, WEBP, or AVIF.", name),
	}
}

func normalizeMIME(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	return contentType
}

func contentMatches(declared string, data []byte) bool {
	switch declared {
	case "image/avif":
		return isAVIF(data)
	case "image/webp":
		_, err := webp.DecodeConfig(bytes.NewReader(data))
		return err == nil
	default:
		if http.DetectContentType(data) != declared {
			return false
		}
		_, _, err := image.DecodeConfig(bytes.NewReader(data))
		return err == nil
	}
}

// isAVIF looks for an ISO-BMFF ftyp box carrying an AVIF brand.
func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}

func attachmentViews(list []*attachment) []AttachmentView {
	views := make([]AttachmentView, 0, len(list))
	for i, a := range list {
		views = append(views, AttachmentView{
			ID:       a.id,
			Position: i,
			Label:    fmt.Sprintf("%d. %s", i+1, a.file.Name),
			Size:     fmt.Sprintf("(%.2f MB)", float64(a.file.size())/1024/1024),
			Preview:  a.preview,
		})
	}
	return views
}
