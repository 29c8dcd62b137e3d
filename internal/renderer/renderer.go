// Package renderer defines the contract between the page engine and an
// embedded, single-threaded rendering backend.
//
// A Renderer is pumped explicitly through SpinEventLoop. Every Delegate
// callback, evaluation callback and screenshot callback is invoked from inside
// SpinEventLoop on the goroutine that called it. Nothing else in this package
// is safe for concurrent use, with the single exception of Waker.Wake.
package renderer

import (
	"image"
	"net/url"

	"go.uber.org/zap"
)

// Waker lets a backend signal, from any goroutine, that SpinEventLoop has work.
type Waker interface {
	Wake()
}

// Options are handed to a backend Factory.
type Options struct {
	Waker     Waker
	Logger    *zap.Logger
	UserAgent string

	// Backend specific settings. Backends ignore what they do not understand.
	ExecPath string
	Headless bool
	Args     []string
}

// Renderer is the process-wide rendering engine.
type Renderer interface {
	// SpinEventLoop runs one iteration of the backend's event loop and
	// delivers any pending callbacks.
	SpinEventLoop()
	NewSurface(width, height int) (Surface, error)
	// NewWebView builds a browsing session on surface and starts loading u.
	NewWebView(surface Surface, delegate Delegate, u *url.URL) (WebView, error)
	Shutdown() error
}

// Surface is the paintable area backing one webview.
type Surface interface {
	Size() (width, height int)
	MakeCurrent() error
}

// WebView is one browsing session.
type WebView interface {
	ID() string
	Load(u *url.URL)
	Reload()
	GoBack(steps int)
	GoForward(steps int)
	CanGoBack() bool
	CanGoForward() bool
	Resize(width, height int)
	// Paint acknowledges a NotifyNewFrameReady and presents the frame.
	Paint()
	NotifyInputEvent(ev InputEvent)
	// EvaluateJavaScript runs script and reports its completion value.
	EvaluateJavaScript(script string, cb func(JSValue, error))
	TakeScreenshot(cb func(*image.RGBA, error))
	URL() (string, bool)
	Title() (string, bool)
	Close()
}

// LoadStatus is reported through Delegate.NotifyLoadStatusChanged.
type LoadStatus int

const (
	LoadStarted LoadStatus = iota
	LoadHeadParsed
	LoadComplete
)

func (s LoadStatus) String() string {
	switch s {
	case LoadStarted:
		return "started"
	case LoadHeadParsed:
		return "head_parsed"
	case LoadComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ConsoleLevel is the severity of a console message.
type ConsoleLevel int

const (
	ConsoleLog ConsoleLevel = iota
	ConsoleDebug
	ConsoleInfo
	ConsoleWarn
	ConsoleError
	ConsoleTrace
)

func (l ConsoleLevel) String() string {
	switch l {
	case ConsoleDebug:
		return "debug"
	case ConsoleInfo:
		return "info"
	case ConsoleWarn:
		return "warn"
	case ConsoleError:
		return "error"
	case ConsoleTrace:
		return "trace"
	default:
		return "log"
	}
}

// ParseConsoleLevel maps a console method name to its level.
func ParseConsoleLevel(name string) ConsoleLevel {
	switch name {
	case "debug":
		return ConsoleDebug
	case "info":
		return ConsoleInfo
	case "warn", "warning":
		return ConsoleWarn
	case "error", "assert":
		return ConsoleError
	case "trace":
		return ConsoleTrace
	default:
		return ConsoleLog
	}
}

// ResourceRequest describes a network load about to happen.
type ResourceRequest struct {
	Method      string
	URL         string
	IsMainFrame bool
}

// ResourceLoad is handed to Delegate.LoadWebResource. If the delegate does not
// call Cancel before returning, the load proceeds.
type ResourceLoad interface {
	Request() ResourceRequest
	Cancel()
}

// DialogKind distinguishes simple modal dialogs.
type DialogKind int

const (
	DialogAlert DialogKind = iota
	DialogConfirm
	DialogPrompt
)

func (k DialogKind) String() string {
	switch k {
	case DialogConfirm:
		return "confirm"
	case DialogPrompt:
		return "prompt"
	default:
		return "alert"
	}
}

// Dialog is a modal dialog raised by a page. Exactly one of Confirm or
// Dismiss resolves it; a dialog nobody resolves is dismissed.
type Dialog interface {
	Kind() DialogKind
	Message() string
	Confirm()
	Dismiss()
}

// NewWebViewRequest is a page's request to open a new session (window.open,
// target=_blank). Dropping it without calling Build blocks the popup.
type NewWebViewRequest interface {
	URL() string
	Build(surface Surface, delegate Delegate) (WebView, error)
}

// Delegate receives session events. All methods run inside SpinEventLoop.
type Delegate interface {
	NotifyLoadStatusChanged(wv WebView, status LoadStatus)
	// NotifyNewFrameReady must be acknowledged with wv.Paint().
	NotifyNewFrameReady(wv WebView)
	ShowConsoleMessage(wv WebView, level ConsoleLevel, message string)
	LoadWebResource(wv WebView, load ResourceLoad)
	ShowDialog(wv WebView, dialog Dialog)
	NotifyClosed(wv WebView)
	RequestCreateNew(parent WebView, req NewWebViewRequest)
}
