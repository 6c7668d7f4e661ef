package snapshotservice

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/bigjimnolan/protectmotion/detectorservice"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var boxColor = color.RGBA{255, 0, 0, 255}

// Annotate draws a box and a "label NN%" tag for every detection and
// re-encodes the frame.
func Annotate(jpegData []byte, detections []detectorservice.Detection, quality int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, d := range detections {
		drawBox(rgba, d.Box, boxColor, 2)
		drawLabel(rgba, d.Box.X, d.Box.Y-14, fmt.Sprintf("%s %d%%", d.Label, d.Score()), boxColor)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBox(img *image.RGBA, box detectorservice.Box, c color.RGBA, thickness int) {
	rect := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height).Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	for t := 0; t < thickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetRGBA(x, rect.Min.Y+t, c)
			img.SetRGBA(x, rect.Max.Y-1-t, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			img.SetRGBA(rect.Min.X+t, y, c)
			img.SetRGBA(rect.Max.X-1-t, y, c)
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	b := img.Bounds()
	if x < b.Min.X {
		x = b.Min.X
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}

	// dark strip behind the text
	bg := image.Rect(x, y, x+len(label)*7+4, y+14).Intersect(b)
	draw.Draw(img, bg, image.NewUniform(color.RGBA{0, 0, 0, 180}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x + 2), Y: fixed.I(y + 11)},
	}
	d.DrawString(label)
}
