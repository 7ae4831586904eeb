package control

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-mesh/toda/internal/injector"
)

func newTestSurface(t *testing.T, status Status, shutdown Shutdown) *Surface {
	t.Helper()
	if status == nil {
		status = func() error { return nil }
	}
	if shutdown == nil {
		shutdown = func(string) {}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(injector.NewPipeline(nil), status, shutdown, logger, prometheus.NewRegistry())
}

func TestGetStatusOkWhenHealthy(t *testing.T) {
	s := newTestSurface(t, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/get_status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGetStatusReportsErrorAndSchedulesShutdownOnce(t *testing.T) {
	var shutdownCalls int
	status := func() error { return errors.New("shadow path vanished") }
	shutdown := func(reason string) { shutdownCalls++ }
	s := newTestSurface(t, status, shutdown)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPut, "/get_status", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "shadow path vanished", rec.Body.String())
	}
	assert.Equal(t, 1, shutdownCalls)
}

func TestGetStatusRejectsNonPut(t *testing.T) {
	s := newTestSurface(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/get_status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUpdateRejectsMalformedBody(t *testing.T) {
	s := newTestSurface(t, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/update", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestUpdateSwapsPipelineOnSuccess(t *testing.T) {
	s := newTestSurface(t, nil, nil)

	body := `[{"type":"fault","path":"/data/*","percent":100,"faults":[{"errno":5,"weight":1}]}]`
	req := httptest.NewRequest(http.MethodPut, "/update", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestUpdateRejectsUnknownPathUnmatchedRoute(t *testing.T) {
	s := newTestSurface(t, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/bogus", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
