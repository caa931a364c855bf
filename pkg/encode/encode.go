// Package encode converts captured surfaces into the requested output
// encoding. The supported format set is fixed; dimensions are preserved
// exactly, never cropped or scaled here.
package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/fogleman/gg"
	"github.com/jung-kurt/gofpdf"

	"github.com/yourusername/chart-render-service/pkg/model"
)

// DefaultQuality applies to lossy formats when the request carries none.
const DefaultQuality = 90

// Surface is the raw pixel buffer captured from a render session, owned by
// one pipeline invocation until encoded, then dropped.
type Surface struct {
	Image  image.Image
	Width  int
	Height int
}

// DecodeSurface parses the PNG snapshot taken from a session into a
// surface.
func DecodeSurface(data []byte) (*Surface, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode captured snapshot: %w", err)
	}
	b := img.Bounds()
	return &Surface{Image: img, Width: b.Dx(), Height: b.Dy()}, nil
}

// ContentType maps an output format to its MIME type.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "jpeg", "jpg":
		return "image/jpeg"
	case "pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// Encode converts a surface to the requested format. quality may be nil for
// the default and only applies to lossy formats. background is a hex color
// flattened under the surface; JPEG output, having no alpha channel, is
// always flattened (white by default).
func Encode(s *Surface, format string, quality *int, background string) ([]byte, string, error) {
	q := DefaultQuality
	if quality != nil {
		q = *quality
	}

	switch strings.ToLower(format) {
	case "png":
		img := s.Image
		if background != "" {
			img = flatten(img, background)
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, "", model.Wrap(model.KindEncodeError, err, "failed to encode png")
		}
		return data, "image/png", nil

	case "jpeg", "jpg":
		bg := background
		if bg == "" {
			bg = "#ffffff"
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flatten(s.Image, bg), &jpeg.Options{Quality: q}); err != nil {
			return nil, "", model.Wrap(model.KindEncodeError, err, "failed to encode jpeg")
		}
		return buf.Bytes(), "image/jpeg", nil

	case "pdf":
		img := s.Image
		if background != "" {
			img = flatten(img, background)
		}
		data, err := encodePDF(img, s.Width, s.Height)
		if err != nil {
			return nil, "", model.Wrap(model.KindEncodeError, err, "failed to encode pdf")
		}
		return data, "application/pdf", nil

	default:
		return nil, "", model.E(model.KindUnsupportedFormat, "unsupported format %q", format)
	}
}

// flatten composites the surface over an opaque background color.
func flatten(img image.Image, hexColor string) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.SetHexColor(hexColor)
	dc.Clear()
	dc.DrawImage(img, 0, 0)
	return dc.Image()
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodePDF embeds the surface into a single-page PDF sized exactly to the
// surface at 96 DPI (the browser's screen rendering density).
func encodePDF(img image.Image, width, height int) ([]byte, error) {
	pngData, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	wPt := float64(width) * 72.0 / 96.0
	hPt := float64(height) * 72.0 / 96.0

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: wPt, Ht: hPt},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("surface", opts, bytes.NewReader(pngData))
	pdf.ImageOptions("surface", 0, 0, wPt, hPt, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
