package main

import (
	"html/template"
	"io"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#f4f4f4;font-family:sans-serif}
#map{position:relative;width:100vw;height:100vh}
.choropleth{width:100%;height:100%}
.choropleth svg{display:block;cursor:grab;touch-action:none}
.upperControls{position:absolute;top:10px;left:10px}
.dataSelector{font-size:14px;padding:2px 4px}
.infoTable{position:absolute;top:10px;right:10px;background:#fff;padding:6px 10px;font-size:13px}
.infoTable:empty{display:none}
.regionPolygon:hover{opacity:.85}
</style>
</head>
<body>
<div id="map">{{.Fragment}}</div>
<script>
(function () {
  var root = document.getElementById("map");
  var drag = null;

  function post(path, params) {
    var q = new URLSearchParams(params).toString();
    return fetch(path + (q ? "?" + q : ""), {method: "POST"}).then(refresh);
  }

  function refresh() {
    return fetch("/fragment.html").then(function (r) { return r.text(); })
      .then(function (html) { root.innerHTML = html; });
  }

  // Screen point in canvas (viewBox) units.
  function canvasPoint(svg, e) {
    var p = svg.createSVGPoint();
    p.x = e.clientX;
    p.y = e.clientY;
    return p.matrixTransform(svg.getScreenCTM().inverse());
  }

  root.addEventListener("change", function (e) {
    if (e.target.classList.contains("dataSelector")) {
      post("/api/show", {column: e.target.value});
    }
  });

  root.addEventListener("wheel", function (e) {
    var svg = e.target.closest("svg");
    if (!svg) return;
    e.preventDefault();
    var p = canvasPoint(svg, e);
    post("/api/zoom", {factor: Math.pow(2, -e.deltaY * 0.002), cx: p.x, cy: p.y});
  }, {passive: false});

  root.addEventListener("pointerdown", function (e) {
    var svg = e.target.closest("svg");
    if (!svg) return;
    drag = {svg: svg, start: canvasPoint(svg, e)};
  });

  root.addEventListener("pointerup", function (e) {
    if (!drag) return;
    var p = canvasPoint(drag.svg, e);
    var dx = p.x - drag.start.x, dy = p.y - drag.start.y;
    drag = null;
    if (Math.abs(dx) < 2 && Math.abs(dy) < 2) {
      post("/api/click", {x: p.x, y: p.y});
    } else {
      post("/api/pan", {dx: dx, dy: dy});
    }
  });

  setInterval(refresh, {{.RefreshMillis}});
})();
</script>
</body>
</html>`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// pageData feeds the host page template
type pageData struct {
	Title         string
	Fragment      template.HTML
	RefreshMillis int
}

// writePage writes the host page around a rendered widget fragment. The page
// polls the fragment so animation frames and feed updates show up.
func writePage(w io.Writer, fragment []byte) error {
	return pageTmpl.Execute(w, pageData{
		Title:         "choromap",
		Fragment:      template.HTML(fragment),
		RefreshMillis: 1000,
	})
}
