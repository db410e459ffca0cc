package longpolling

import (
	"net/http"
	"time"
)

type TransportOption func(*transportOptions)

type transportOptions struct {
	headers map[string]string
	client  HTTPClient
	token   TokenProvider
}

func newTransportOptions(opts ...TransportOption) transportOptions {
	o := transportOptions{headers: make(map[string]string)}

	for _, opt := range opts {
		opt(&o)
	}

	if o.client == nil {
		o.client = NewHTTPClient(nil)
	}

	return o
}

// Headers sets the custom headers attached to every request. The map is
// copied at construction; later mutation by the caller has no effect.
func Headers(h map[string]string) TransportOption {
	return func(o *transportOptions) {
		for k, v := range h {
			o.headers[k] = v
		}
	}
}

func Client(c HTTPClient) TransportOption {
	return func(o *transportOptions) {
		o.client = c
	}
}

func Token(p TokenProvider) TransportOption {
	return func(o *transportOptions) {
		o.token = p
	}
}

type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	maxTimeout time.Duration
	authorize  func(*http.Request) bool
}

func newHandlerOptions(opts ...HandlerOption) handlerOptions {
	o := handlerOptions{maxTimeout: 120 * time.Second}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// MaxTimeout sets how long the handler holds a poll open before answering
// with an empty 200.
func MaxTimeout(m time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.maxTimeout = m
	}
}

// Authorize gates every request; a false return is answered with a 401.
func Authorize(a func(*http.Request) bool) HandlerOption {
	return func(o *handlerOptions) {
		o.authorize = a
	}
}
