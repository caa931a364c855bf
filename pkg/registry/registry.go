// Package registry is the static catalog of supported charting libraries.
// It is built once at init and never mutated, so concurrent reads need no
// locking.
package registry

import (
	"sort"
	"strings"

	"github.com/yourusername/chart-render-service/pkg/model"
)

// Descriptor describes one supported library: where its script lives and
// how the harness draws with it. DrawScript runs inside the harness entry
// point with the request payload bound to `data`; {width} and {height} are
// substituted at compose time. Data itself is never substituted into script
// source.
type Descriptor struct {
	Name              string
	Versions          []string
	ScriptURLTemplate string
	WaitSelector      string
	DrawScript        string
	NeedsCanvas       bool
}

// ScriptSource is a resolved (library, version) pair ready for composition.
type ScriptSource struct {
	Name         string
	Version      string
	URL          string
	WaitSelector string
	DrawScript   string
	NeedsCanvas  bool
}

// aliases maps historical request names onto canonical registry names.
var aliases = map[string]string{
	"apache-echarts": "echarts",
	"chart.js":       "chartjs",
	"konvajs":        "konva",
	"konvajs-json":   "konva",
	"d3js":           "d3",
}

var catalog = buildCatalog()

func buildCatalog() map[string]*Descriptor {
	entries := []*Descriptor{
		{
			Name:              "echarts",
			Versions:          []string{"5.0.0", "5.3.3", "5.4.0", "5.4.3", "5.5.0"},
			ScriptURLTemplate: "https://cdn.jsdelivr.net/npm/echarts@{version}/dist/echarts.min.js",
			WaitSelector:      "#render-container",
			DrawScript: `
				const chart = echarts.init(document.getElementById('render-container'), null, {
					width: {width},
					height: {height}
				});
				chart.setOption(Object.assign({ animation: false }, data), true);
			`,
		},
		{
			Name:              "chartjs",
			Versions:          []string{"3.9.1", "4.4.0", "4.4.1", "4.4.3"},
			ScriptURLTemplate: "https://cdn.jsdelivr.net/npm/chart.js@{version}/dist/chart.umd.js",
			WaitSelector:      "#chart-canvas",
			NeedsCanvas:       true,
			DrawScript: `
				const spec = Object.assign({}, data);
				spec.options = Object.assign({}, spec.options, {
					animation: false,
					responsive: false
				});
				const ctx = document.getElementById('chart-canvas').getContext('2d');
				new Chart(ctx, spec);
			`,
		},
		{
			Name:              "konva",
			Versions:          []string{"8.4.3", "9.2.0", "9.3.6"},
			ScriptURLTemplate: "https://unpkg.com/konva@{version}/konva.min.js",
			WaitSelector:      "#render-container",
			DrawScript: `
				const container = document.getElementById('render-container');
				if (data && Array.isArray(data.shapes)) {
					const stage = new Konva.Stage({
						container: 'render-container',
						width: {width},
						height: {height}
					});
					const layer = new Konva.Layer();
					stage.add(layer);
					data.shapes.forEach((shape) => {
						layer.add(new Konva[shape.type](shape.config));
					});
					layer.draw();
				} else {
					const stage = Konva.Node.create(data, container);
					stage.width({width});
					stage.height({height});
					stage.draw();
				}
			`,
		},
		{
			Name:              "d3",
			Versions:          []string{"7.8.5", "7.9.0"},
			ScriptURLTemplate: "https://cdn.jsdelivr.net/npm/d3@{version}/dist/d3.min.js",
			WaitSelector:      "#render-container",
			DrawScript: `
				const svg = d3.select('#render-container').append('svg')
					.attr('width', {width})
					.attr('height', {height});
				const elements = (data && data.elements) || [];
				elements.forEach((el) => {
					let node = svg.append(el.type || 'g');
					Object.entries(el.attrs || {}).forEach(([key, value]) => {
						node = node.attr(key, value);
					});
					if (el.text !== undefined) {
						node.text(el.text);
					}
				});
			`,
		},
	}

	m := make(map[string]*Descriptor, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}

// Normalize maps a request library name onto its canonical registry name.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

// ResolveRequest resolves a request's library field. Version matching is
// exact: an unlisted version fails rather than silently substituting the
// nearest release, which would produce visually different output.
func ResolveRequest(req *model.RenderRequest) (*ScriptSource, *model.Error) {
	name := Normalize(req.Library.Name)

	desc, ok := catalog[name]
	if !ok {
		return nil, model.E(model.KindUnsupportedLibrary, "unsupported library %q", req.Library.Name)
	}
	if req.RenderType != "" && string(req.RenderType) != name {
		return nil, model.E(model.KindInvalidOptions,
			"render_type %q does not match library %q", req.RenderType, req.Library.Name)
	}

	version := strings.TrimSpace(req.Library.Version)
	if !hasVersion(desc, version) {
		return nil, model.E(model.KindUnsupportedLibrary,
			"unsupported version %q for library %q", req.Library.Version, name)
	}

	url := req.Library.CDNURL
	if url == "" {
		url = strings.ReplaceAll(desc.ScriptURLTemplate, "{version}", version)
	}

	return &ScriptSource{
		Name:         desc.Name,
		Version:      version,
		URL:          url,
		WaitSelector: desc.WaitSelector,
		DrawScript:   desc.DrawScript,
		NeedsCanvas:  desc.NeedsCanvas,
	}, nil
}

func hasVersion(desc *Descriptor, version string) bool {
	for _, v := range desc.Versions {
		if v == version {
			return true
		}
	}
	return false
}

// List returns all registry entries sorted by name.
func List() []model.LibraryInfo {
	infos := make([]model.LibraryInfo, 0, len(catalog))
	for _, desc := range catalog {
		versions := make([]string, len(desc.Versions))
		copy(versions, desc.Versions)
		infos = append(infos, model.LibraryInfo{
			Name:              desc.Name,
			Versions:          versions,
			ScriptURLTemplate: desc.ScriptURLTemplate,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
