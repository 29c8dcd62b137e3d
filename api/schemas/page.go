package schemas

import "time"

// Default page session settings.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultTimeout        = 30 * time.Second
	DefaultSettleWait     = 2 * time.Second
)

// PageOptions configures a page session.
type PageOptions struct {
	// Width and Height are the viewport size in pixels.
	Width  int `json:"width" mapstructure:"width" yaml:"width"`
	Height int `json:"height" mapstructure:"height" yaml:"height"`
	// Timeout bounds page loads and script evaluations.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
	// Wait is the settle window applied after a load completes. Zero disables it.
	Wait time.Duration `json:"wait" mapstructure:"wait" yaml:"wait"`
	// FullPage asks boundary adapters to capture the full scrollable page.
	FullPage  bool   `json:"fullpage" mapstructure:"fullpage" yaml:"fullpage"`
	UserAgent string `json:"user_agent,omitempty" mapstructure:"user_agent" yaml:"user_agent"`
}

// DefaultPageOptions returns the stock viewport, timeout and settle window.
func DefaultPageOptions() PageOptions {
	return PageOptions{
		Width:   DefaultViewportWidth,
		Height:  DefaultViewportHeight,
		Timeout: DefaultTimeout,
		Wait:    DefaultSettleWait,
	}
}

// ConsoleMessage is a console entry emitted by a page.
type ConsoleMessage struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// NetworkRequest is a resource request observed on a page.
type NetworkRequest struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	IsMainFrame bool   `json:"is_main_frame"`
}

// ElementRect is an element's bounding box in viewport coordinates.
type ElementRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r ElementRect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// InputFile is a file to attach to an <input type="file"> element.
type InputFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}
