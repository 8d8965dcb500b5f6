package annotation

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lewtec/demarcador/internal/domain"
)

const previewStroke = 3

var fallbackColor = color.NRGBA{R: 0x9c, G: 0xa3, B: 0xaf, A: 0xff}

// RenderPreview returns a copy of src with every box outlined in the color
// of its category. Box coordinates are normalized to src's bounds.
func RenderPreview(src image.Image, anns []domain.Annotation, categories []domain.Category) *image.NRGBA {
	dst := imaging.Clone(src)
	bounds := dst.Bounds()
	colors := make(map[string]color.NRGBA, len(categories))
	for _, c := range categories {
		if rgb, err := parseHexColor(c.Color); err == nil {
			colors[c.ID] = rgb
		}
	}
	stroke := previewStroke
	if short := min(bounds.Dx(), bounds.Dy()); short < 100 {
		stroke = 1
	}
	for _, a := range anns {
		c, ok := colors[a.CategoryID]
		if !ok {
			c = fallbackColor
		}
		r := image.Rect(
			bounds.Min.X+int(a.BBox.X*float64(bounds.Dx())),
			bounds.Min.Y+int(a.BBox.Y*float64(bounds.Dy())),
			bounds.Min.X+int((a.BBox.X+a.BBox.Width)*float64(bounds.Dx())),
			bounds.Min.Y+int((a.BBox.Y+a.BBox.Height)*float64(bounds.Dy())),
		)
		drawOutline(dst, r, stroke, c)
	}
	return dst
}

// WritePreview encodes a preview as PNG
func WritePreview(w io.Writer, src image.Image, anns []domain.Annotation, categories []domain.Category) error {
	return imaging.Encode(w, RenderPreview(src, anns, categories), imaging.PNG)
}

func drawOutline(dst draw.Image, r image.Rectangle, stroke int, c color.Color) {
	fill := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+stroke),
		image.Rect(r.Min.X, r.Max.Y-stroke, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+stroke, r.Max.Y),
		image.Rect(r.Max.X-stroke, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), fill, image.Point{}, draw.Src)
	}
}

func parseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
