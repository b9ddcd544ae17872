// Package thumbnail implements sidecar generation dispatched by MIME type.
// Only still images are actually generated; video and document generators
// are stubbed behind the same Generator interface and report
// ErrUnsupportedMedia, since specific media codec support is explicitly
// out of scope. There is no audio generator: audio MIME types match no
// generator and the Registry reports ErrUnsupportedMedia for them.
package thumbnail

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"
)

// ErrUnsupportedMedia is returned by a Generator that cannot produce a
// thumbnail for the given MIME type, either because the kind is stubbed
// (video, document) or because the input is corrupt/unrecognized. The
// Registry also returns it when no generator accepts the MIME type.
var ErrUnsupportedMedia = errors.New("thumbnail: unsupported media type")

// Request describes one thumbnail generation request.
type Request struct {
	MIMEType string
	Data     []byte
	// MaxDimension bounds the longer edge of the output image.
	MaxDimension int
}

// Result is a single generated artifact, ready to be written to a sidecar
// path via pkg/content/sidecar.
type Result struct {
	Variant string
	Format  string
	Data    []byte
}

// Generator produces thumbnail sidecars for one category of media.
type Generator interface {
	// Accepts reports whether this generator handles the given MIME type.
	Accepts(mimeType string) bool
	// Generate produces the thumbnail artifact(s) for req.
	Generate(req Request) ([]Result, error)
}

// ImageGenerator produces a single "grid@1x" thumbnail for still images,
// reading the source's Exif orientation tag (exif.go) and rotating/mirroring
// it upright before a nearest-neighbor resize (resize, below) - adequate
// for a fixed-size grid thumbnail and avoiding a third-party resampling
// library on a non-CPU-bound-critical path.
//
// Output is encoded as JPEG via the standard library's image/jpeg rather
// than WebP: no library in this project's dependency set provides a WebP
// encoder (the standard library has none, and x/image's webp package is
// decode-only), so producing a WebP sidecar here would mean hand-rolling a
// lossy image codec, which is out of proportion to a thumbnail's purpose.
// JPEG is the substitute fixed format; see DESIGN.md for this tradeoff.
type ImageGenerator struct{}

func (ImageGenerator) Accepts(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func (ImageGenerator) Generate(req Request) ([]Result, error) {
	src, _, err := image.Decode(bytes.NewReader(req.Data))
	if err != nil {
		return nil, ErrUnsupportedMedia
	}

	if orientation := readJPEGOrientation(req.Data); orientation != 1 {
		src = applyOrientation(src, orientation)
	}

	max := req.MaxDimension
	if max <= 0 {
		max = 256
	}
	dst := resize(src, max)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}

	return []Result{{Variant: "grid@1x", Format: "jpg", Data: buf.Bytes()}}, nil
}

// resize scales src so its longer edge is maxDimension, using nearest-
// neighbor sampling.
func resize(src image.Image, maxDimension int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return src
	}

	scale := float64(maxDimension) / float64(width)
	if height > width {
		scale = float64(maxDimension) / float64(height)
	}
	if scale >= 1 {
		return src
	}

	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		srcY := bounds.Min.Y + y*height/newHeight
		for x := 0; x < newWidth; x++ {
			srcX := bounds.Min.X + x*width/newWidth
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}

// stubGenerator reports ErrUnsupportedMedia for every request, standing in
// for video/document thumbnailing that specific codec support would
// require.
type stubGenerator struct {
	prefix string
}

func (s stubGenerator) Accepts(mimeType string) bool {
	return strings.HasPrefix(mimeType, s.prefix)
}

func (stubGenerator) Generate(Request) ([]Result, error) {
	return nil, ErrUnsupportedMedia
}

// VideoGenerator is a stub: video codec decoding is out of scope.
func VideoGenerator() Generator { return stubGenerator{prefix: "video/"} }

// DocumentGenerator is a stub: document rendering is out of scope.
func DocumentGenerator() Generator { return stubGenerator{prefix: "application/"} }

// Registry dispatches a generation request to the first Generator that
// accepts the request's MIME type.
type Registry struct {
	generators []Generator
}

// NewRegistry builds a Registry with the standard generator set: images
// handled for real, video/documents stubbed. Audio has no generator.
func NewRegistry() *Registry {
	return &Registry{generators: []Generator{
		ImageGenerator{},
		VideoGenerator(),
		DocumentGenerator(),
	}}
}

// Generate dispatches req to the matching generator, or returns
// ErrUnsupportedMedia if none accepts the MIME type.
func (r *Registry) Generate(req Request) ([]Result, error) {
	for _, g := range r.generators {
		if g.Accepts(req.MIMEType) {
			return g.Generate(req)
		}
	}
	return nil, ErrUnsupportedMedia
}
