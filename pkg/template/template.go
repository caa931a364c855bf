// Package template composes the self-contained HTML document loaded into a
// render session. The document carries the library script and a harness
// entry point; the chart payload is handed to the harness later as an Eval
// argument and never appears in the document itself.
package template

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	texttemplate "text/template"

	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/registry"
)

// EntryPoint is the harness function the pipeline invokes with the chart
// payload. On success the harness sets DoneMarker, on a thrown exception
// FailedMarker; both carry a millisecond timestamp for the tie-break.
const (
	EntryPoint   = "__renderChart"
	DoneMarker   = "__renderDone"
	FailedMarker = "__renderFailed"
)

// Document is the composed HTML for one render request. It is owned by a
// single in-flight request and never cached or shared.
type Document struct {
	HTML         string
	WaitSelector string
}

var docTemplate = texttemplate.Must(texttemplate.New("render").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Render</title>
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
body { background: {{.Background}}; overflow: hidden; }
#render-container { width: {{.Width}}px; height: {{.Height}}px; }
#chart-canvas { display: block; }
</style>
</head>
<body>
<div id="render-container">{{if .NeedsCanvas}}<canvas id="chart-canvas" width="{{.Width}}" height="{{.Height}}"></canvas>{{end}}</div>
<script>window.devicePixelRatio = {{.DeviceScaleFactor}};</script>
<script src="{{.ScriptURL}}"></script>
<script>
window.__renderDone = null;
window.__renderFailed = null;
window.__renderChart = function (data) {
	try {
		{{.DrawScript}}
		if (!window.__renderDone) {
			window.__renderDone = { at: Date.now() };
		}
	} catch (err) {
		if (!window.__renderFailed) {
			window.__renderFailed = {
				at: Date.now(),
				message: String((err && err.message) || err)
			};
		}
	}
};
</script>
</body>
</html>
`))

type docParams struct {
	Width             int
	Height            int
	Background        string
	DeviceScaleFactor float64
	ScriptURL         string
	DrawScript        string
	NeedsCanvas       bool
}

// Compose builds the render document for a resolved library and options.
func Compose(src *registry.ScriptSource, opts model.RenderOptions) (*Document, error) {
	background := opts.Background
	if background == "" {
		background = "#ffffff"
	}
	scale := 1.0
	if opts.DeviceScaleFactor != nil {
		scale = *opts.DeviceScaleFactor
	}

	draw := src.DrawScript
	draw = strings.ReplaceAll(draw, "{width}", fmt.Sprintf("%d", opts.Width))
	draw = strings.ReplaceAll(draw, "{height}", fmt.Sprintf("%d", opts.Height))

	var buf bytes.Buffer
	err := docTemplate.Execute(&buf, docParams{
		Width:             opts.Width,
		Height:            opts.Height,
		Background:        background,
		DeviceScaleFactor: scale,
		ScriptURL:         src.URL,
		DrawScript:        draw,
		NeedsCanvas:       src.NeedsCanvas,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compose render document: %w", err)
	}

	return &Document{HTML: buf.String(), WaitSelector: src.WaitSelector}, nil
}

// DataURL encodes the document for navigation without touching disk or
// serving it over HTTP.
func (d *Document) DataURL() string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(d.HTML))
}
