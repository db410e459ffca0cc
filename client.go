package longpolling

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       string
}

// HTTPClient is the HTTP collaborator the transport issues its requests
// through. Implementations must tolerate one GET and one POST in flight
// concurrently.
type HTTPClient interface {
	Do(ctx context.Context, req Request) (Response, error)
}

type httpClient struct {
	cli *http.Client
}

// NewHTTPClient returns an HTTPClient backed by net/http, using the given
// transport when non-nil. Request timeouts, redirects, and pooling are the
// transport's concern, not this package's.
func NewHTTPClient(t *http.Transport) HTTPClient {
	cli := &http.Client{}

	if t != nil {
		cli.Transport = t
	}

	return &httpClient{cli: cli}
}

func (this *httpClient) Do(ctx context.Context, r Request) (Response, error) {
	var body io.Reader

	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}

	req, err := http.NewRequest(r.Method, r.URL, body)
	if err != nil {
		return Response{}, errors.Wrap(err, "creating new HTTP request")
	}

	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := this.cli.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, errors.Wrap(ctx.Err(), "context activity during HTTP request")
		}

		return Response{}, errors.Wrap(err, "making HTTP request")
	}

	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, errors.Wrap(err, "reading HTTP response body")
	}

	return Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: string(b)}, nil
}
