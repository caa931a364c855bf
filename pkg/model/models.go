package model

import (
	"encoding/json"
	"strings"
	"time"
)

// RenderType identifies the charting library family a request targets.
type RenderType string

const (
	RenderTypeECharts RenderType = "echarts"
	RenderTypeChartJS RenderType = "chartjs"
	RenderTypeKonva   RenderType = "konva"
	RenderTypeD3      RenderType = "d3"
)

// LibraryRef selects a charting library and version for a render request.
type LibraryRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// CDNURL overrides the registry's script URL template when set.
	CDNURL string `json:"cdn_url,omitempty"`
}

// RenderOptions holds per-request output and timing options.
type RenderOptions struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`

	// Quality applies to lossy formats only (1-100, default 90). Ignored otherwise.
	Quality *int `json:"quality,omitempty"`

	// Background is a hex color (e.g. "#ffffff") composited under the
	// captured surface. JPEG output is always flattened; default white.
	Background string `json:"background,omitempty"`

	// DeviceScaleFactor scales the captured surface for high-DPI output.
	DeviceScaleFactor *float64 `json:"device_scale_factor,omitempty"`

	// RenderDelayMS is an extra settle delay after the completion marker
	// appears, before capture. Defaults to the poll interval.
	RenderDelayMS *int `json:"render_delay_ms,omitempty"`

	// PollIntervalMS is the completion marker polling interval (50-1000).
	PollIntervalMS *int `json:"poll_interval_ms,omitempty"`

	// TimeoutMS bounds the whole render (1000 up to the configured maximum).
	TimeoutMS *int `json:"timeout_ms,omitempty"`

	// ReturnBase64 switches the response to a JSON envelope with the image
	// base64-encoded instead of raw bytes.
	ReturnBase64 bool `json:"return_base64,omitempty"`
}

// RenderRequest is the body of POST /render. Data is the library-specific
// chart spec and is treated as an opaque value end to end; it is never
// embedded into generated script source.
type RenderRequest struct {
	RenderType RenderType      `json:"render_type"`
	Library    LibraryRef      `json:"library"`
	Data       json.RawMessage `json:"data"`
	Options    RenderOptions   `json:"options"`
}

// Base64Response is the JSON envelope returned when return_base64 is set.
type Base64Response struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// LibraryInfo describes one registry entry for GET /libraries.
type LibraryInfo struct {
	Name              string   `json:"name"`
	Versions          []string `json:"versions"`
	ScriptURLTemplate string   `json:"script_url_template"`
}

// Run statuses recorded in the run history store.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// RunRecord is one render attempt in the run history store.
type RunRecord struct {
	ID         int64     `json:"id"`
	Library    string    `json:"library"`
	Version    string    `json:"version"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Format     string    `json:"format"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	ErrorText  string    `json:"error_text,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Bytes      int64     `json:"bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// SupportedFormats is the fixed output encoding set accepted by the format
// encoder. "jpg" is an alias for "jpeg".
var SupportedFormats = []string{"png", "jpeg", "jpg", "pdf"}

// IsSupportedFormat reports whether format is in the encoder set.
func IsSupportedFormat(format string) bool {
	format = strings.ToLower(format)
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
