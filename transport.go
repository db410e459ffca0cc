package longpolling

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrFailedToConnect is returned by Start when the validation poll is
	// answered with anything other than a 200 or 204.
	ErrFailedToConnect = errors.New("Failed to connect.")

	// ErrInactiveTransport is returned by Send when the transport is not
	// active.
	ErrInactiveTransport = errors.New("Cannot send unless the transport is active.")
)

// TokenProvider resolves the current bearer token. An empty token means no
// Authorization header is attached. It is queried fresh before every request
// so rotated credentials take effect mid-connection.
type TokenProvider func(ctx context.Context) (string, error)

// Transport carries a logical bidirectional message stream over plain HTTP:
// a strictly sequenced GET poll loop inbound, POSTs outbound. A Transport is
// single-use; once closed it cannot be restarted.
type Transport struct {
	sync.Mutex

	id      uuid.UUID
	options transportOptions

	url string

	onReceive func(message string)
	onClose   func(err error)

	started  bool
	active   bool
	looping  bool
	stopping bool
	closed   bool

	stop chan struct{}
	done chan struct{}
}

func NewTransport(opts ...TransportOption) *Transport {
	return &Transport{
		id:      uuid.Must(uuid.NewV4()),
		options: newTransportOptions(opts...),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnReceive registers the callback invoked with each inbound message body.
// Single slot, last writer wins. Note the transport does not need to be
// active for the callback to fire: the last outstanding poll is drained into
// it even after a stop request.
func (this *Transport) OnReceive(cb func(message string)) {
	this.Lock()
	defer this.Unlock()

	this.onReceive = cb
}

// OnClose registers the callback invoked exactly once when the transport
// terminates, with nil for a normal close. Single slot, last writer wins.
// Register it before Start; loop-detected failures observed earlier are
// lost.
func (this *Transport) OnClose(cb func(err error)) {
	this.Lock()
	defer this.Unlock()

	this.onClose = cb
}

func (this *Transport) IsActive() bool {
	this.Lock()
	defer this.Unlock()

	return this.active
}

// Done is closed once the close callback has been dispatched.
func (this *Transport) Done() <-chan struct{} {
	return this.done
}

// Start issues a single validation poll against url. A 200 activates the
// transport and launches the background poll loop; a 204 is a valid,
// instantly closed session; anything else fails with ErrFailedToConnect.
func (this *Transport) Start(ctx context.Context, url string) error {
	this.Lock()

	if this.closed {
		this.Unlock()
		return errors.New("transport closed")
	}

	if this.started {
		this.Unlock()
		return errors.New("transport already started")
	}

	this.started = true
	this.url = url
	this.Unlock()

	log := logger.WithValues("transport", this.id, "url", url)

	headers, err := this.requestHeaders(ctx)
	if err != nil {
		return err
	}

	log.V(5).Info("starting validation poll")

	resp, err := this.options.client.Do(ctx, Request{Method: http.MethodGet, URL: this.pollURL(), Headers: headers})
	if err != nil {
		return errors.Wrap(err, "making validation poll")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// The validation poll only probes connectivity; any body it carried
		// is not a loop-delivered message.
		this.Lock()

		if this.stopping || this.closed {
			this.Unlock()
			return nil
		}

		this.active = true
		this.looping = true
		this.Unlock()

		log.V(5).Info("transport active, starting poll loop")

		go this.poll(ctx)
		return nil
	case http.StatusNoContent:
		log.V(5).Info("session closed by server on validation poll")

		this.close(nil)
		return nil
	default:
		log.V(5).Info("validation poll rejected", "code", resp.StatusCode)

		return ErrFailedToConnect
	}
}

// Send POSTs data over the transport. It may overlap an in-flight poll. A
// failed send fails only this call; closing is governed by the poll loop
// alone.
func (this *Transport) Send(ctx context.Context, data string) error {
	if !this.IsActive() {
		return ErrInactiveTransport
	}

	headers, err := this.requestHeaders(ctx)
	if err != nil {
		return err
	}

	logger.V(9).Info("sending message", "transport", this.id, "bytes", len(data))

	resp, err := this.options.client.Do(ctx, Request{Method: http.MethodPost, URL: this.url, Headers: headers, Body: data})
	if err != nil {
		return errors.Wrap(err, "making send request")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("send failed with response code %d", resp.StatusCode)
	}

	return nil
}

// Stop requests a cooperative close: the transport goes inactive
// immediately and the loop issues no further polls once its current
// iteration resolves. An in-flight poll's body is still drained to the
// receive callback before the close callback fires.
func (this *Transport) Stop() {
	this.Lock()

	if this.stopping {
		this.Unlock()
		return
	}

	this.stopping = true
	this.active = false
	looping := this.looping
	this.Unlock()

	logger.V(5).Info("stop requested", "transport", this.id)

	close(this.stop)

	// With no loop running there is nobody else to dispatch the close.
	if !looping {
		this.close(nil)
	}
}

func (this *Transport) poll(ctx context.Context) {
	log := logger.WithValues("transport", this.id, "url", this.url)

	for {
		select {
		case <-this.stop:
			log.V(7).Info("halting poll loop")

			this.close(nil)
			return
		case <-ctx.Done():
			this.close(ctx.Err())
			return
		default:
		}

		headers, err := this.requestHeaders(ctx)
		if err != nil {
			this.close(err)
			return
		}

		resp, err := this.options.client.Do(ctx, Request{Method: http.MethodGet, URL: this.pollURL(), Headers: headers})
		if err != nil {
			this.close(errors.Wrap(err, "making poll request"))
			return
		}

		switch {
		case resp.StatusCode == http.StatusOK && resp.Body != "":
			log.V(9).Info("poll delivered message", "bytes", len(resp.Body))

			// Delivered before the next poll is issued so arrival order is
			// preserved, even when a stop request has already flipped the
			// transport inactive.
			this.receive(resp.Body)
		case resp.StatusCode == http.StatusOK:
			// Empty poll result; reissue immediately.
		case resp.StatusCode == http.StatusNoContent:
			log.V(7).Info("session closed by server")

			this.close(nil)
			return
		default:
			log.V(7).Info("unexpected poll status", "code", resp.StatusCode)

			this.close(errors.Errorf("Unexpected response code %d.", resp.StatusCode))
			return
		}
	}
}

func (this *Transport) receive(message string) {
	this.Lock()
	cb := this.onReceive
	this.Unlock()

	if cb != nil {
		cb(message)
	}
}

// close flips the transport inactive and dispatches the close callback; the
// earliest terminal condition wins and later ones are ignored.
func (this *Transport) close(err error) {
	this.Lock()

	if this.closed {
		this.Unlock()
		return
	}

	this.closed = true
	this.active = false
	cb := this.onClose
	this.Unlock()

	logger.V(5).Info("transport closed", "transport", this.id, "error", err)

	if cb != nil {
		cb(err)
	}

	close(this.done)
}

// requestHeaders composes a fresh header map per request: the custom headers
// plus a bearer Authorization header when the provider yields a non-empty
// token. A new map each time keeps concurrent GET/POST composition race
// free.
func (this *Transport) requestHeaders(ctx context.Context) (map[string]string, error) {
	headers := make(map[string]string, len(this.options.headers)+1)

	for k, v := range this.options.headers {
		headers[k] = v
	}

	if this.options.token != nil {
		token, err := this.options.token(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "resolving access token")
		}

		if token != "" {
			headers["Authorization"] = "Bearer " + token
		}
	}

	return headers, nil
}

func (this *Transport) pollURL() string {
	sep := "?"

	if strings.Contains(this.url, "?") {
		sep = "&"
	}

	return fmt.Sprintf("%s%s_=%d", this.url, sep, MillisecondEpoch(time.Now()))
}
