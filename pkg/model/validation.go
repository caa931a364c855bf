package model

import (
	"net/url"
	"regexp"
	"strings"
)

// Limits are the configured caps applied to render options.
type Limits struct {
	MaxWidth         int
	MaxHeight        int
	DefaultTimeoutMS int
	MaxTimeoutMS     int
}

// Option bounds shared with the API schema.
const (
	MinDimension      = 100
	MinQuality        = 1
	MaxQuality        = 100
	MinPollIntervalMS = 50
	MaxPollIntervalMS = 1000
	MinTimeoutMS      = 1000
	MaxRenderDelayMS  = 5000
	MinScaleFactor    = 0.5
	MaxScaleFactor    = 3.0
)

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidateRenderRequest checks a request against the configured limits.
// It runs before any session is leased; a failure here never consumes
// pool capacity.
func ValidateRenderRequest(req *RenderRequest, limits Limits) *Error {
	if req.Library.Name == "" {
		return E(KindInvalidOptions, "library.name is required")
	}
	if req.Library.Version == "" {
		return E(KindInvalidOptions, "library.version is required")
	}
	if len(req.Data) == 0 {
		return E(KindInvalidOptions, "data is required")
	}
	// cdn_url ends up in a script tag of the composed document; only an
	// absolute http(s) URL is allowed through.
	if req.Library.CDNURL != "" {
		u, err := url.Parse(req.Library.CDNURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return E(KindInvalidOptions, "library.cdn_url must be an absolute http(s) URL, got %q", req.Library.CDNURL)
		}
	}
	return ValidateOptions(&req.Options, limits)
}

// ValidateOptions checks dimension, format, quality and timing bounds.
func ValidateOptions(opts *RenderOptions, limits Limits) *Error {
	if opts.Width < MinDimension || opts.Width > limits.MaxWidth {
		return E(KindInvalidOptions, "width must be between %d and %d, got %d",
			MinDimension, limits.MaxWidth, opts.Width)
	}
	if opts.Height < MinDimension || opts.Height > limits.MaxHeight {
		return E(KindInvalidOptions, "height must be between %d and %d, got %d",
			MinDimension, limits.MaxHeight, opts.Height)
	}
	if !IsSupportedFormat(opts.Format) {
		return E(KindUnsupportedFormat, "unsupported format %q, supported: %s",
			opts.Format, strings.Join(SupportedFormats, ", "))
	}
	if opts.Quality != nil && (*opts.Quality < MinQuality || *opts.Quality > MaxQuality) {
		return E(KindInvalidOptions, "quality must be between %d and %d, got %d",
			MinQuality, MaxQuality, *opts.Quality)
	}
	if opts.Background != "" && !hexColorRe.MatchString(opts.Background) {
		return E(KindInvalidOptions, "background must be a hex color like #ffffff, got %q", opts.Background)
	}
	if opts.DeviceScaleFactor != nil && (*opts.DeviceScaleFactor < MinScaleFactor || *opts.DeviceScaleFactor > MaxScaleFactor) {
		return E(KindInvalidOptions, "device_scale_factor must be between %g and %g, got %g",
			MinScaleFactor, MaxScaleFactor, *opts.DeviceScaleFactor)
	}
	if opts.PollIntervalMS != nil && (*opts.PollIntervalMS < MinPollIntervalMS || *opts.PollIntervalMS > MaxPollIntervalMS) {
		return E(KindInvalidOptions, "poll_interval_ms must be between %d and %d, got %d",
			MinPollIntervalMS, MaxPollIntervalMS, *opts.PollIntervalMS)
	}
	if opts.RenderDelayMS != nil && (*opts.RenderDelayMS < 0 || *opts.RenderDelayMS > MaxRenderDelayMS) {
		return E(KindInvalidOptions, "render_delay_ms must be between 0 and %d, got %d",
			MaxRenderDelayMS, *opts.RenderDelayMS)
	}
	if opts.TimeoutMS != nil && (*opts.TimeoutMS < MinTimeoutMS || *opts.TimeoutMS > limits.MaxTimeoutMS) {
		return E(KindInvalidOptions, "timeout_ms must be between %d and %d, got %d",
			MinTimeoutMS, limits.MaxTimeoutMS, *opts.TimeoutMS)
	}
	return nil
}
