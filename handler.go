package longpolling

import (
	"io"
	"net/http"
	"sync"
	"time"
)

/*
Status Codes Returned:
	* 200 - poll answered; body holds one message, or is empty on a hold timeout
	* 204 - session closed
	* 401 - authorization hook rejected the request
	* 405 - method other than GET or POST
*/

// Handler is a minimal server-side counterpart to the Transport: it holds
// each GET open until a message, a hold timeout, or session close, and
// funnels POSTed bodies into an inbox. One Handler serves one logical
// session.
type Handler struct {
	options handlerOptions

	messages chan string
	inbox    chan string

	closing chan struct{}
	once    sync.Once
}

func NewHandler(opts ...HandlerOption) *Handler {
	return &Handler{
		options:  newHandlerOptions(opts...),
		messages: make(chan string, 16),
		inbox:    make(chan string, 16),
		closing:  make(chan struct{}),
	}
}

// Push queues one outbound message; each poll delivers at most one. Push
// blocks once the queue is full until a poll drains it.
func (this *Handler) Push(message string) {
	this.messages <- message
}

// Messages yields POSTed bodies in arrival order.
func (this *Handler) Messages() <-chan string {
	return this.inbox
}

// Close ends the session: in-flight and subsequent polls are answered with
// a 204.
func (this *Handler) Close() {
	this.once.Do(func() { close(this.closing) })
}

func (this *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithValues("url", r.URL, "method", r.Method)

	log.V(7).Info("handling session request")

	if this.options.authorize != nil && !this.options.authorize(r) {
		log.V(7).Info("rejecting unauthorized request")

		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		this.serveGet(w, r)
	case http.MethodPost:
		this.servePost(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (this *Handler) serveGet(w http.ResponseWriter, r *http.Request) {
	// Don't cache response
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate") // HTTP 1.1
	w.Header().Set("Pragma", "no-cache")                                   // HTTP 1.0
	w.Header().Set("Expires", "0")                                         // Proxies

	// A closed session wins over queued messages.
	select {
	case <-this.closing:
		w.WriteHeader(http.StatusNoContent)
		return
	default:
	}

	select {
	case msg := <-this.messages:
		w.Write([]byte(msg))
	case <-time.After(this.options.maxTimeout):
		// Hold timeout; an empty 200 tells the client to poll again.
	case <-this.closing:
		w.WriteHeader(http.StatusNoContent)
	case <-r.Context().Done():
	}
}

func (this *Handler) servePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	select {
	case this.inbox <- string(body):
	case <-r.Context().Done():
	}
}
