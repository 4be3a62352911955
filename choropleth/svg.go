package choropleth

import (
	"html/template"
	"io"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
)

var markupFuncs = template.FuncMap{
	"num": formatNum,
}

const svgMarkup = `{{define "svg"}}<svg xmlns="http://www.w3.org/2000/svg" width="100%" height="100%" viewBox="0 0 {{num .Width}} {{num .Height}}">
<g class="mapLayer" transform="translate({{num .Transform.X}},{{num .Transform.Y}}) scale({{num .Transform.K}})">
{{- range .Shapes}}
<path class="regionPolygon region{{.Index}}" d="{{.D}}" stroke-linejoin="round" stroke="{{.Stroke}}" stroke-width="{{num .StrokeWidth}}" fill="{{.Fill}}" fill-opacity="{{num $.FillOpacity}}"/>
{{- end}}
</g>
<g class="legendLayer">
{{- if .CustomLegend}}{{.CustomLegend}}{{else if .Legend.Swatches}}
<g class="legendBgRect"><rect x="{{num .Legend.X}}" y="{{num .Legend.Y}}" width="{{num .Legend.Width}}" height="{{num .Legend.Height}}" fill="{{.Colors.Background}}" stroke="{{.Colors.Border}}" stroke-width="{{num .LegendStroke}}"/></g>
<g class="legendFgColors">
{{- range $i, $s := .Legend.Swatches}}
<rect class="legendColorRect legendColorRect{{$i}}" x="{{num $s.X}}" y="{{num $s.Y}}" width="{{num $s.Width}}" height="{{num $s.Height}}" fill="{{$s.Color}}" stroke-width="0"/>
{{- end}}
</g>
<g class="legendFgText">
{{- range $i, $l := .Legend.Labels}}
<text class="legendColorLabel legendColorLabel{{$i}}" x="{{num $l.X}}" y="{{num $l.Y}}" fill="{{$.Colors.Font}}" font-size="{{num $.FontSize}}" dominant-baseline="middle">{{$l.Text}}</text>
{{- end}}
</g>
{{- end}}
</g>
</svg>{{end}}`

const htmlMarkup = `{{define "html"}}<div class="choropleth" id="choropleth-{{.ID}}">
{{- if .Selector}}{{if .Selector.Options}}
<div class="upperControls"><select class="dataSelector">
{{- range $i, $o := .Selector.Options}}
<option class="selectorOption{{$i}}" value="{{$o.Value}}"{{if eq $i $.Selector.Selected}} selected="selected"{{end}}>{{$o.Text}}</option>
{{- end}}
</select></div>
{{- end}}{{end}}
{{template "svg" .SVG}}
<div class="infoTable">{{.Info}}</div>
</div>{{end}}`

var markupTemplates = template.Must(template.Must(
	template.New("markup").Funcs(markupFuncs).Parse(svgMarkup)).Parse(htmlMarkup))

type svgShape struct {
	Index       string
	D           string
	Fill        string
	Stroke      string
	StrokeWidth float64
}

type svgData struct {
	Width, Height float64
	Transform     ViewTransform
	FillOpacity   float64
	Shapes        []svgShape
	Legend        Legend
	CustomLegend  template.HTML
	Colors        LegendColors
	LegendStroke  float64
	FontSize      float64
}

type htmlData struct {
	ID       string
	Selector *Selector
	SVG      svgData
	Info     template.HTML
}

func (w *Widget) svgData() svgData {
	d := svgData{
		Width:        w.cfg.Canvas.Width,
		Height:       w.cfg.Canvas.Height,
		Transform:    w.view.Transform(),
		FillOpacity:  w.cfg.Region.FillOpacity,
		Legend:       w.renderer.Legend(),
		CustomLegend: template.HTML(w.renderer.Legend().Custom),
		Colors:       w.cfg.Legend.Colors,
		LegendStroke: w.cfg.Legend.StrokeWidth,
		FontSize:     w.cfg.Legend.FontSize,
	}
	for _, s := range w.renderer.DrawOrder() {
		d.Shapes = append(d.Shapes, svgShape{
			Index:       s.Index,
			D:           pathData(s.Path),
			Fill:        s.Fill,
			Stroke:      s.Stroke,
			StrokeWidth: s.StrokeWidth,
		})
	}
	return d
}

// WriteSVG writes the map, in draw order, and the legend as a standalone SVG
// document. Shapes and legend elements carry the stylesheet class hooks.
func (w *Widget) WriteSVG(out io.Writer) error {
	return markupTemplates.ExecuteTemplate(out, "svg", w.svgData())
}

// WriteHTML writes the widget fragment: selector, SVG and info panel.
func (w *Widget) WriteHTML(out io.Writer) error {
	return markupTemplates.ExecuteTemplate(out, "html", htmlData{
		ID:       w.id,
		Selector: w.selector,
		SVG:      w.svgData(),
		Info:     template.HTML(w.renderer.Info()),
	})
}

// pathData encodes canvas-space polygons as SVG path data.
func pathData(mp orb.MultiPolygon) string {
	p := &canvas.Path{}
	for _, poly := range mp {
		for _, ring := range poly {
			if len(ring) == 0 {
				continue
			}
			for i, pt := range ring {
				if i == 0 {
					p.MoveTo(pt[0], pt[1])
				} else {
					p.LineTo(pt[0], pt[1])
				}
			}
			p.Close()
		}
	}
	return p.ToSVG()
}

func formatNum(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
