package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestDatabaseChecker(t *testing.T) {
	ok := Database("telemetry_db", fakePinger{})
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("healthy pinger: %v", err)
	}
	bad := Database("telemetry_db", fakePinger{err: errors.New("down")})
	if err := bad.Check(context.Background()); err == nil {
		t.Error("unhealthy pinger should fail the check")
	}
}

func TestSessionChecker(t *testing.T) {
	connected := false
	c := Session(func() bool { return connected })
	if err := c.Check(context.Background()); err == nil {
		t.Error("disconnected session should fail the check")
	}
	connected = true
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("connected session: %v", err)
	}
}

func TestHTTPEndpointChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := HTTPEndpoint("optimizer_api", srv.URL)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("4xx should count as reachable: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	c = HTTPEndpoint("optimizer_api", down.URL)
	if err := c.Check(context.Background()); err == nil {
		t.Error("5xx should fail the check")
	}

	c = HTTPEndpoint("optimizer_api", "http://127.0.0.1:1")
	if err := c.Check(context.Background()); err == nil {
		t.Error("unreachable endpoint should fail the check")
	}
}
