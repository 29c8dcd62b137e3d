package sim

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
)

// maxResourceSize caps any single response body.
const maxResourceSize = 32 << 20

// resource is a fetched document or subresource.
type resource struct {
	url         *url.URL
	status      int
	statusText  string
	contentType string
	header      http.Header
	body        []byte
}

// Pools for decompression readers.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	emptyReader = strings.NewReader("")
)

// decodingTransport advertises br/gzip/deflate and decodes the response body
// according to Content-Encoding before handing it to the loader.
type decodingTransport struct {
	base http.RoundTripper
}

func newDecodingTransport(base http.RoundTripper) *decodingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &decodingTransport{base: base}
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decodeResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// decodeResponse swaps resp.Body for a decoding reader. Unknown encodings are
// passed through untouched.
func decodeResponse(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return nil
	}

	var body io.ReadCloser
	switch encoding {
	case "gzip", "x-gzip":
		zr := gzipReaderPool.Get().(*gzip.Reader)
		if err := zr.Reset(resp.Body); err != nil {
			gzipReaderPool.Put(zr)
			return err
		}
		body = &pooledReader{Reader: zr, src: resp.Body, release: func() {
			_ = zr.Reset(emptyReader)
			gzipReaderPool.Put(zr)
		}}
	case "br":
		br := brotliReaderPool.Get().(*brotli.Reader)
		if err := br.Reset(resp.Body); err != nil {
			brotliReaderPool.Put(br)
			return err
		}
		body = &pooledReader{Reader: br, src: resp.Body, release: func() {
			_ = br.Reset(emptyReader)
			brotliReaderPool.Put(br)
		}}
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		buffered, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize))
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		var r io.ReadCloser
		if zr, zerr := zlib.NewReader(bytes.NewReader(buffered)); zerr == nil {
			r = zr
		} else {
			r = flate.NewReader(bytes.NewReader(buffered))
		}
		body = r
	default:
		return nil
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type pooledReader struct {
	io.Reader
	src     io.Closer
	release func()
	once    sync.Once
}

func (p *pooledReader) Close() error {
	err := p.src.Close()
	p.once.Do(p.release)
	return err
}

// loader fetches resources for every view of one renderer.
type loader struct {
	client    *http.Client
	userAgent string
}

func newLoader(userAgent string) *loader {
	return &loader{
		client: &http.Client{
			Transport: newDecodingTransport(nil),
			Timeout:   30 * time.Second,
		},
		userAgent: userAgent,
	}
}

// isLocal reports whether u can be resolved without network I/O.
func isLocal(u *url.URL) bool {
	switch u.Scheme {
	case "data", "about", "file":
		return true
	}
	return false
}

// request is one load issued by a view or a script.
type request struct {
	method      string
	url         *url.URL
	body        string
	contentType string
}

func getRequest(u *url.URL) request { return request{method: http.MethodGet, url: u} }

// fetch retrieves req.url. Callers run network fetches off the pumping
// goroutine.
func (l *loader) fetch(ctx context.Context, req request) (*resource, error) {
	u := req.url
	switch u.Scheme {
	case "about":
		return &resource{url: u, status: http.StatusOK, contentType: "text/html", body: nil}, nil
	case "data":
		ct, data, err := decodeDataURL(u)
		if err != nil {
			return nil, err
		}
		return &resource{url: u, status: http.StatusOK, contentType: ct, body: data}, nil
	case "file":
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, err
		}
		ct := mime.TypeByExtension(strings.ToLower(pathExt(u.Path)))
		if ct == "" {
			ct = "text/html"
		}
		return &resource{url: u, status: http.StatusOK, contentType: ct, body: data}, nil
	case "http", "https":
		return l.fetchHTTP(ctx, req)
	}
	return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
}

func (l *loader) fetchHTTP(ctx context.Context, r request) (*resource, error) {
	method := r.method
	if method == "" {
		method = http.MethodGet
	}
	var reqBody io.Reader
	if r.body != "" {
		reqBody = strings.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.url.String(), reqBody)
	if err != nil {
		return nil, err
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize))
	if err != nil {
		return nil, err
	}
	return &resource{
		url:         resp.Request.URL,
		status:      resp.StatusCode,
		statusText:  http.StatusText(resp.StatusCode),
		contentType: resp.Header.Get("Content-Type"),
		header:      resp.Header,
		body:        data,
	}, nil
}

// decodeDataURL parses "data:[<mediatype>][;base64],<data>". The payload is
// whatever follows the first comma, including a query part.
func decodeDataURL(u *url.URL) (string, []byte, error) {
	raw := u.Opaque
	if raw == "" {
		raw = strings.TrimPrefix(u.Path, "/")
	}
	if u.RawQuery != "" || u.ForceQuery {
		raw += "?" + u.RawQuery
	}
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return "", nil, errors.New("malformed data URL: missing comma")
	}
	meta, payload := raw[:comma], raw[comma+1:]

	isBase64 := false
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		isBase64 = true
		meta = meta[:len(meta)-len(";base64")]
	}
	if meta == "" {
		meta = "text/plain;charset=US-ASCII"
	}

	decoded, err := url.PathUnescape(payload)
	if err != nil {
		// Browsers keep stray percent signs literally.
		decoded = payload
	}
	if !isBase64 {
		return meta, []byte(decoded), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.Map(dropSpace, decoded))
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(strings.Map(dropSpace, decoded), "="))
		if err != nil {
			return "", nil, fmt.Errorf("malformed base64 data URL: %w", err)
		}
	}
	return meta, data, nil
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\n', '\r':
		return -1
	}
	return r
}

func pathExt(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 && !strings.Contains(p[i:], "/") {
		return p[i:]
	}
	return ""
}

// errorPage is the document shown when a main-frame load fails.
func errorPage(u *url.URL, err error) *resource {
	body := fmt.Sprintf("<html><head><title>Error</title></head><body><p>Failed to load %s: %s</p></body></html>",
		htmlEscape(u.String()), htmlEscape(err.Error()))
	return &resource{url: u, status: 0, contentType: "text/html", body: []byte(body)}
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
