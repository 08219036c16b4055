package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Pinger is anything with a context Ping, such as a pgx connection pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker that pings the given connection pool.
func Database(name string, p Pinger) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// Session returns a checker that passes while the backend session is
// connected. connected is sampled on every probe.
func Session(connected func() bool) Checker {
	return Checker{
		Name: "backend_session",
		Check: func(context.Context) error {
			if !connected() {
				return errors.New("not connected")
			}
			return nil
		},
	}
}

// HTTPEndpoint returns a checker that issues a GET to url and passes on any
// response below 500. A 4xx still proves the service is reachable and
// serving.
func HTTPEndpoint(name, url string) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
	}
}
