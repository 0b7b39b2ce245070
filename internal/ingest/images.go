package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"
)

// sidecarImage is one page illustration found next to a document.
type sidecarImage struct {
	Data []byte
	Page int
}

// loadSidecarImages loads page images from the document's sidecar directory
// (<document path>.images/*.png). Files are ordered by name; their position
// in that order becomes the page number. A missing directory is not an
// error, just a document without images.
func loadSidecarImages(docPath string, maxWidth, maxHeight int) ([]sidecarImage, error) {
	dir := docPath + ".images"

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading image directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	images := make([]sidecarImage, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading image %s: %w", name, err)
		}

		resized, err := fitImage(data, maxWidth, maxHeight)
		if err != nil {
			// Keep the original bytes when decoding fails; the vision
			// model may still handle it.
			resized = data
		}

		images = append(images, sidecarImage{Data: resized, Page: i + 1})
	}

	return images, nil
}

// fitImage scales a PNG down to fit within the given bounds, preserving
// aspect ratio. Images already within bounds pass through unchanged.
func fitImage(data []byte, maxWidth, maxHeight int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth && h <= maxHeight {
		return data, nil
	}

	scale := float64(maxWidth) / float64(w)
	if s := float64(maxHeight) / float64(h); s < scale {
		scale = s
	}

	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), nil
}
