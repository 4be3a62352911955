package choropleth

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// WritePNG rasterizes the current frame at one pixel per canvas unit: the
// map under the view transform, then the legend. Legend text uses the
// built-in 7x13 face whatever the configured font size. A custom legend is
// not rasterized.
func (w *Widget) WritePNG(out io.Writer) error {
	width, height := w.cfg.Canvas.Width, w.cfg.Canvas.Height
	rast := rasterizer.New(width, height, canvas.DPMM(1.0), canvas.DefaultColorSpace)

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	bgStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
	rast.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	t := w.view.Transform()
	// Canvas space is y-down; the rasterizer's is y-up.
	toRaster := func(x, y float64) (float64, float64) {
		return t.X + t.K*x, height - (t.Y + t.K*y)
	}

	for _, s := range w.renderer.DrawOrder() {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: paintColor(s.Fill, w.cfg.Region.FillOpacity)}
		style.Stroke = canvas.Paint{Color: paintColor(s.Stroke, 1)}
		style.StrokeWidth = s.StrokeWidth * t.K
		for _, poly := range s.Path {
			p := &canvas.Path{}
			for _, ring := range poly {
				for i, pt := range ring {
					x, y := toRaster(pt[0], pt[1])
					if i == 0 {
						p.MoveTo(x, y)
					} else {
						p.LineTo(x, y)
					}
				}
				p.Close()
			}
			rast.RenderPath(p, style, canvas.Identity)
		}
	}

	lg := w.renderer.Legend()
	if len(lg.Swatches) > 0 {
		flip := func(x, y, h float64) canvas.Matrix {
			return canvas.Identity.Translate(x, height-y-h)
		}
		panel := canvas.DefaultStyle
		panel.Fill = canvas.Paint{Color: paintColor(w.cfg.Legend.Colors.Background, 1)}
		panel.Stroke = canvas.Paint{Color: paintColor(w.cfg.Legend.Colors.Border, 1)}
		panel.StrokeWidth = w.cfg.Legend.StrokeWidth
		rast.RenderPath(canvas.Rectangle(lg.Width, lg.Height), panel, flip(lg.X, lg.Y, lg.Height))

		for _, sw := range lg.Swatches {
			style := canvas.DefaultStyle
			style.Fill = canvas.Paint{Color: paintColor(sw.Color, 1)}
			style.Stroke = canvas.Paint{Color: canvas.Transparent}
			rast.RenderPath(canvas.Rectangle(sw.Width, sw.Height), style, flip(sw.X, sw.Y, sw.Height))
		}
	}

	img := image.NewRGBA(rast.Bounds())
	draw.Draw(img, img.Bounds(), rast, rast.Bounds().Min, draw.Src)
	fontColor := paintColor(w.cfg.Legend.Colors.Font, 1)
	for _, l := range lg.Labels {
		drawText(img, l.Text, l.X, l.Y, fontColor)
	}

	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

// drawText draws s with its left edge at x, vertically centered on y.
func drawText(img draw.Image, s string, x, y float64, c color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		// Face7x13 has ascent 11 and descent 2, so the baseline sits 4.5px
		// below the vertical center.
		Dot: fixed.Point26_6{X: fixed.I(int(math.Round(x))), Y: fixed.I(int(math.Round(y + 4.5)))},
	}
	d.DrawString(s)
}

// paintColor parses a configured color and applies alpha.
func paintColor(s string, alpha float64) color.RGBA {
	c, err := ParseColor(s)
	if err != nil {
		return color.RGBA{}
	}
	return nrgbaToRGBA(nrgba(c, alpha))
}

func nrgba(c colorful.Color, alpha float64) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: uint8(math.Round(alpha * 255))}
}

// nrgbaToRGBA converts a non-premultiplied color to the premultiplied form
// the rasterizer expects.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}
