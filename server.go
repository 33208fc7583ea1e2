package astivoice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/asticode/go-astilog"
	astihttp "github.com/asticode/go-astitools/http"
	"github.com/asticode/go-astivoice/verification"
	"github.com/asticode/go-astiws"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
)

// Server defaults
const (
	DefaultListenAddr = "127.0.0.1:4000"
	DefaultTimeout    = 5 * time.Second
)

// Server prefixes
const (
	apiPrefix       = "/api"
	websocketPrefix = "/websocket"
)

// Websocket events
const (
	websocketEventNamePing           = "ping"
	websocketEventNameSessionUpdated = EventNameSessionUpdated
)

// ServerOptions are server options
type ServerOptions struct {
	ListenAddr     string        `toml:"listen_addr"`
	MaxMessageSize int           `toml:"max_message_size"`
	Password       string        `toml:"password"`
	PublicAddr     string        `toml:"public_addr"`
	Timeout        time.Duration `toml:"timeout"` // Submissions are bounded by the verification timeout instead
	Username       string        `toml:"username"`
}

func (o *ServerOptions) setDefaults() {
	if o.ListenAddr == "" {
		o.ListenAddr = DefaultListenAddr
	}
	if o.PublicAddr == "" {
		o.PublicAddr = o.ListenAddr
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
}

// Serve spawns the server
func (v *Voice) Serve() {
	astilog.Infof("astivoice: serving on %s", v.o.Server.ListenAddr)
	v.w.Serve(v.o.Server.ListenAddr, v.Handler())
}

// Handler returns the server handler
func (v *Voice) Handler() http.Handler {
	// Create router
	r := httprouter.New()

	// API
	r.GET(apiPrefix+"/ok", v.ok)
	r.GET(apiPrefix+"/references", v.references)
	r.GET(apiPrefix+"/session", v.session)
	r.PUT(apiPrefix+"/session/identifier", v.setIdentifier)
	r.POST(apiPrefix+"/capture/start", v.startCapture)
	r.POST(apiPrefix+"/capture/stop", v.stopCapture)
	r.POST(apiPrefix+"/submissions/:operation", v.submit)
	r.GET(apiPrefix+"/service/health", v.serviceHealth)

	// Websockets
	r.GET(websocketPrefix, v.handleWebsocket)

	// Chain middlewares
	var h http.Handler = r
	if v.o.Server.Username != "" {
		h = astihttp.ChainMiddlewares(h, astihttp.MiddlewareBasicAuth(v.o.Server.Username, v.o.Server.Password))
	}
	h = astihttp.ChainMiddlewaresWithPrefix(h, []string{
		apiPrefix + "/capture/",
		apiPrefix + "/ok",
		apiPrefix + "/references",
		apiPrefix + "/service/",
		apiPrefix + "/session",
	}, astihttp.MiddlewareTimeout(v.o.Server.Timeout))
	h = astihttp.ChainMiddlewaresWithPrefix(h, []string{apiPrefix + "/"}, astihttp.MiddlewareContentType("application/json"))
	return h
}

func (v *Voice) ok(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	rw.WriteHeader(http.StatusNoContent)
}

// APIReferences represents the references
type APIReferences struct {
	Service   APIService   `json:"service"`
	Websocket APIWebsocket `json:"websocket"`
}

// APIService represents the verification service
type APIService struct {
	Addr string `json:"addr"`
}

// APIWebsocket represents the websocket
type APIWebsocket struct {
	Addr       string        `json:"addr"`
	PingPeriod time.Duration `json:"ping_period"`
}

func (v *Voice) references(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	WriteHTTPData(rw, APIReferences{
		Service:   APIService{Addr: v.v.Addr()},
		Websocket: APIWebsocket{
			Addr:       "ws://" + v.o.Server.PublicAddr + websocketPrefix,
			PingPeriod: astiws.PingPeriod,
		},
	})
}

func (v *Voice) session(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	WriteHTTPData(rw, v.s.State())
}

// APIIdentifier represents an identifier payload
type APIIdentifier struct {
	Identifier string `json:"identifier"`
}

func (v *Voice) setIdentifier(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	// Unmarshal
	var b APIIdentifier
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		WriteHTTPError(rw, http.StatusBadRequest, errors.Wrap(err, "astivoice: unmarshaling failed"), nil)
		return
	}

	// Set identifier
	WriteHTTPData(rw, v.s.SetIdentifier(b.Identifier))
}

func (v *Voice) startCapture(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	// Create context
	ctx, cancel := context.WithTimeout(r.Context(), v.o.Server.Timeout)
	defer cancel()

	// Start capture
	if err := v.s.StartCapture(ctx); err != nil {
		v.writeError(rw, errors.Wrap(err, "astivoice: starting capture failed"))
		return
	}
	WriteHTTPData(rw, v.s.State())
}

func (v *Voice) stopCapture(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := v.s.StopCapture(); err != nil {
		v.writeError(rw, errors.Wrap(err, "astivoice: stopping capture failed"))
		return
	}
	WriteHTTPData(rw, v.s.State())
}

func (v *Voice) submit(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	// Parse operation
	op, err := verification.ParseOperation(p.ByName("operation"))
	if err != nil {
		WriteHTTPError(rw, http.StatusNotFound, errors.Wrap(err, "astivoice: parsing operation failed"), nil)
		return
	}

	// Submit
	// Submissions are bounded by the verification client timeout, not by the request
	if err = v.s.Submit(context.Background(), op); err != nil {
		v.writeError(rw, errors.Wrapf(err, "astivoice: submitting %s failed", op))
		return
	}
	WriteHTTPData(rw, v.s.State())
}

// APIHealth represents the verification service health
type APIHealth struct {
	OK bool `json:"ok"`
}

func (v *Voice) serviceHealth(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	// Create context
	ctx, cancel := context.WithTimeout(r.Context(), v.o.Server.Timeout)
	defer cancel()

	// Check health
	ok, err := v.v.Health(ctx)
	if err != nil {
		WriteHTTPError(rw, HTTPStatusCode(err), errors.Wrap(err, "astivoice: checking service health failed"), nil)
		return
	}
	WriteHTTPData(rw, APIHealth{OK: ok})
}

func (v *Voice) writeError(rw http.ResponseWriter, err error) {
	s := v.s.State()
	WriteHTTPError(rw, HTTPStatusCode(err), err, &s)
}

func (v *Voice) handleWebsocket(rw http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := v.ws.ServeHTTP(rw, r, func(c *astiws.Client) error {
		// Register client
		name := fmt.Sprintf("%p", c)
		v.ws.RegisterClient(name, c)

		// Handle disconnect
		c.SetListener(astiws.EventNameDisconnect, func(_ *astiws.Client, _ string, _ json.RawMessage) error {
			v.ws.UnregisterClient(name)
			return nil
		})

		// Handle ping
		c.SetListener(websocketEventNamePing, func(c *astiws.Client, _ string, _ json.RawMessage) (err error) {
			if err = c.ExtendConnection(); err != nil {
				err = errors.Wrap(err, "astivoice: extending connection failed")
				return
			}
			return
		})

		// Log
		astilog.Debugf("astivoice: websocket client %s has connected", name)
		return nil
	}); err != nil {
		if e, ok := errors.Cause(err).(*websocket.CloseError); !ok || (e.Code != websocket.CloseNoStatusReceived && e.Code != websocket.CloseNormalClosure) {
			astilog.Error(errors.Wrap(err, "astivoice: handling websocket failed"))
		}
		return
	}
}
