package optimize

import (
	"context"
	"strings"
	"sync"

	"github.com/BrightProgrammer7/OptiBlend/internal/resilience"
)

// Service fronts the optimizer API with a circuit breaker and an optional
// local heuristic fallback. Repeated API failures open the breaker so later
// calls go straight to the heuristic instead of waiting out timeouts.
type Service struct {
	client *Client
	cfg    resilience.FallbackConfig

	mu       sync.Mutex
	fallback bool
	group    *resilience.FallbackGroup[Solver]
}

// NewService wraps client. When fallback is true the local [Heuristic] is
// registered behind the API so an unreachable optimizer degrades to a
// heuristic mix instead of an error.
func NewService(client *Client, fallback bool, cfg resilience.FallbackConfig) *Service {
	return &Service{
		client:   client,
		cfg:      cfg,
		fallback: fallback,
		group:    buildGroup(client, fallback, cfg),
	}
}

func buildGroup(client *Client, fallback bool, cfg resilience.FallbackConfig) *resilience.FallbackGroup[Solver] {
	group := resilience.NewFallbackGroup[Solver](client, "optimizer-api", cfg)
	if fallback {
		group.AddFallback("local-heuristic", Heuristic{})
	}
	return group
}

// SetFallback enables or disables the heuristic fallback at runtime, for
// config hot-reload. Toggling rebuilds the solver group, which resets the
// circuit breaker state.
func (s *Service) SetFallback(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled == s.fallback {
		return
	}
	s.fallback = enabled
	s.group = buildGroup(s.client, enabled, s.cfg)
}

func (s *Service) currentGroup() *resilience.FallbackGroup[Solver] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

// Optimize solves req through the first healthy solver. The returned origin
// is "api" or "fallback", for metrics and operator display.
func (s *Service) Optimize(ctx context.Context, req Request) (res *Result, origin string, err error) {
	res, err = resilience.ExecuteWithResult(s.currentGroup(), func(solver Solver) (*Result, error) {
		return solver.Solve(ctx, req)
	})
	if err != nil {
		return nil, "", err
	}
	origin = "api"
	if strings.HasPrefix(res.Status, StatusHeuristic) {
		origin = "fallback"
	}
	return res, origin, nil
}
