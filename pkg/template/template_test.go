package template

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/yourusername/chart-render-service/pkg/model"
	"github.com/yourusername/chart-render-service/pkg/registry"
)

func resolve(t *testing.T, renderType, name, version string) *registry.ScriptSource {
	t.Helper()
	src, err := registry.ResolveRequest(&model.RenderRequest{
		RenderType: model.RenderType(renderType),
		Library:    model.LibraryRef{Name: name, Version: version},
		Data:       []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	return src
}

func TestComposeBasicDocument(t *testing.T) {
	src := resolve(t, "echarts", "echarts", "5.0.0")
	doc, err := Compose(src, model.RenderOptions{Width: 800, Height: 600, Format: "png"})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	for _, want := range []string{
		`width: 800px`,
		`height: 600px`,
		`src="https://cdn.jsdelivr.net/npm/echarts@5.0.0/dist/echarts.min.js"`,
		`window.__renderDone = null`,
		`window.__renderFailed = null`,
		`window.__renderChart = function (data)`,
		`background: #ffffff`,
	} {
		if !strings.Contains(doc.HTML, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if doc.WaitSelector != "#render-container" {
		t.Errorf("unexpected wait selector: %s", doc.WaitSelector)
	}
}

func TestComposeSubstitutesDimensionsIntoDrawScript(t *testing.T) {
	src := resolve(t, "konva", "konva", "9.2.0")
	doc, err := Compose(src, model.RenderOptions{Width: 640, Height: 480, Format: "png"})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if strings.Contains(doc.HTML, "{width}") || strings.Contains(doc.HTML, "{height}") {
		t.Error("dimension placeholders left unsubstituted")
	}
	if !strings.Contains(doc.HTML, "width: 640") || !strings.Contains(doc.HTML, "height: 480") {
		t.Error("dimensions not substituted into draw script")
	}
}

func TestComposeChartJSGetsCanvas(t *testing.T) {
	src := resolve(t, "chartjs", "chartjs", "4.4.0")
	doc, err := Compose(src, model.RenderOptions{Width: 300, Height: 200, Format: "png"})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !strings.Contains(doc.HTML, `<canvas id="chart-canvas" width="300" height="200">`) {
		t.Error("chartjs document missing sized canvas element")
	}

	src = resolve(t, "echarts", "echarts", "5.0.0")
	doc, err = Compose(src, model.RenderOptions{Width: 300, Height: 200, Format: "png"})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if strings.Contains(doc.HTML, "<canvas") {
		t.Error("echarts document should not carry a canvas element")
	}
}

func TestComposeBackgroundAndScale(t *testing.T) {
	scale := 2.0
	src := resolve(t, "d3", "d3", "7.9.0")
	doc, err := Compose(src, model.RenderOptions{
		Width: 100, Height: 100, Format: "png",
		Background:        "#1a2b3c",
		DeviceScaleFactor: &scale,
	})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !strings.Contains(doc.HTML, "background: #1a2b3c") {
		t.Error("requested background not applied")
	}
	if !strings.Contains(doc.HTML, "window.devicePixelRatio = 2") {
		t.Error("device scale factor not applied")
	}
}

func TestComposeNeverEmbedsPayload(t *testing.T) {
	// The injection seam: the document must expose an entry point taking the
	// payload as an argument, with no payload substitution slot of its own.
	for _, lib := range []struct{ typ, name, version string }{
		{"echarts", "echarts", "5.0.0"},
		{"chartjs", "chartjs", "4.4.0"},
		{"konva", "konva", "9.2.0"},
		{"d3", "d3", "7.9.0"},
	} {
		src := resolve(t, lib.typ, lib.name, lib.version)
		doc, err := Compose(src, model.RenderOptions{Width: 200, Height: 200, Format: "png"})
		if err != nil {
			t.Fatalf("compose %s failed: %v", lib.name, err)
		}
		if strings.Contains(doc.HTML, "{data}") {
			t.Errorf("%s document carries a payload substitution slot", lib.name)
		}
		if !strings.Contains(doc.HTML, "window."+EntryPoint+" = function (data)") {
			t.Errorf("%s document missing harness entry point", lib.name)
		}
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	src := resolve(t, "echarts", "echarts", "5.0.0")
	doc, err := Compose(src, model.RenderOptions{Width: 200, Height: 200, Format: "png"})
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}

	url := doc.DataURL()
	const prefix = "data:text/html;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("unexpected data URL prefix: %.40s", url)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("data URL payload not valid base64: %v", err)
	}
	if string(decoded) != doc.HTML {
		t.Error("data URL does not round-trip to the composed document")
	}
}
