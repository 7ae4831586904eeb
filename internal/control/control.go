// Package control implements the Unix-domain HTTP control surface of
// spec.md §6: a PUT-only server exposing /get_status and /update, grounded
// on src/cmd/interactive/handler.rs's TodaService and src/jsonrpc.rs's
// RpcImpl.
package control

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaos-mesh/toda/internal/injector"
	"github.com/chaos-mesh/toda/internal/injectorconfig"
)

// Status reports whether the supervised filesystem is healthy. A non-nil
// error is surfaced verbatim to /get_status callers and triggers shutdown,
// mirroring RpcImpl.get_status reading the shared status mutex.
type Status func() error

// Shutdown is called once, with the reason text, when /get_status observes
// an unhealthy Status — the Go analogue of RpcImpl sending Comm::Shutdown
// down its mpsc channel.
type Shutdown func(reason string)

// Surface is the control-surface HTTP handler. It holds no state of its own
// beyond what's needed to serve requests; the supervisor owns its lifetime
// and the pipeline it mutates.
type Surface struct {
	pipeline *injector.Pipeline
	status   Status
	shutdown Shutdown
	logger   *slog.Logger

	shutdownOnce sync.Once

	requests *prometheus.CounterVec
	router   *mux.Router
}

// New builds a Surface. pipeline is swapped atomically by /update; status
// and shutdown are supplied by the caller (the supervisor) rather than
// reached for as package-level singletons, so a Surface never needs to know
// anything about how the filesystem was mounted.
func New(pipeline *injector.Pipeline, status Status, shutdown Shutdown, logger *slog.Logger, reg prometheus.Registerer) *Surface {
	s := &Surface{
		pipeline: pipeline,
		status:   status,
		shutdown: shutdown,
		logger:   logger,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toda_control_requests_total",
			Help: "Control surface requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(s.requests)
	}

	r := mux.NewRouter()
	r.HandleFunc("/get_status", s.handleGetStatus).Methods(http.MethodPut)
	r.HandleFunc("/update", s.handleUpdate).Methods(http.MethodPut)
	r.PathPrefix("/metrics").Handler(promhttp.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(s.handleUnmatched)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	s.router = r

	return s
}

func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on ln until it is closed, serving this Surface.
// ln is ordinarily a Unix-domain listener bound to --interactive-path.
func (s *Surface) Serve(ln net.Listener) error {
	srv := &http.Server{Handler: s}
	return srv.Serve(ln)
}

func (s *Surface) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.requests.WithLabelValues(r.URL.Path, "method_not_allowed").Inc()
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func (s *Surface) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	s.requests.WithLabelValues(r.URL.Path, "not_found").Inc()
	w.WriteHeader(http.StatusNotFound)
}

// handleGetStatus mirrors RpcImpl.get_status: "ok" when Status reports
// healthy, otherwise the error text (still 200 OK) and a scheduled
// shutdown.
func (s *Surface) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	err := s.status()
	if err == nil {
		s.requests.WithLabelValues("/get_status", "ok").Inc()
		io.WriteString(w, "ok")
		return
	}

	s.requests.WithLabelValues("/get_status", "unhealthy").Inc()
	s.logger.Warn("control: get_status observed unhealthy filesystem, scheduling shutdown", "error", err)
	s.shutdownOnce.Do(func() { s.shutdown(err.Error()) })
	io.WriteString(w, err.Error())
}

// handleUpdate mirrors TodaService's /update: a JSON decode or injector
// build failure replies 400 with the error text; otherwise the pipeline is
// swapped atomically and "ok" is returned.
func (s *Surface) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.requests.WithLabelValues("/update", "read_error").Inc()
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, err.Error())
		return
	}

	entries, err := injectorconfig.Parse(body)
	if err != nil {
		s.requests.WithLabelValues("/update", "parse_error").Inc()
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, err.Error())
		return
	}

	injectors, err := injector.Build(entries)
	if err != nil {
		s.requests.WithLabelValues("/update", "build_error").Inc()
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, err.Error())
		return
	}

	s.pipeline.Swap(injectors)
	s.requests.WithLabelValues("/update", "ok").Inc()
	s.logger.Info("control: pipeline reloaded", "injectors", len(injectors))
	io.WriteString(w, "ok")
}

// ParseBody is exposed for cmd/toda's startup path, which reads the same
// injector-config schema from stdin rather than from an HTTP body.
func ParseBody(body []byte) ([]injector.Injector, error) {
	entries, err := injectorconfig.Parse(body)
	if err != nil {
		return nil, err
	}
	return injector.Build(entries)
}
