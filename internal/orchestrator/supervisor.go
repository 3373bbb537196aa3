package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/pders01/lensbot/internal/debuglog"
)

// ErrDuplicateRunner is returned when two runners share an identity.
var ErrDuplicateRunner = errors.New("identity already has a runner")

// Service is a long-running component started alongside the runners.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// Supervisor owns one Runner per identity and runs them together.
type Supervisor struct {
	runners  []*Runner
	byID     map[string]*Runner
	services []Service
}

func NewSupervisor() *Supervisor {
	return &Supervisor{byID: make(map[string]*Runner)}
}

// Add registers a runner. A second runner for the same identity is
// rejected.
func (s *Supervisor) Add(r *Runner) error {
	id := r.Identity()
	if _, ok := s.byID[id]; ok {
		return fmt.Errorf("%s: %w", id, ErrDuplicateRunner)
	}
	s.byID[id] = r
	s.runners = append(s.runners, r)
	return nil
}

// AddService runs svc for as long as the runners run.
func (s *Supervisor) AddService(svc Service) {
	s.services = append(s.services, svc)
}

// Identities lists registered identities in registration order.
func (s *Supervisor) Identities() []string {
	ids := make([]string, 0, len(s.runners))
	for _, r := range s.runners {
		ids = append(ids, r.Identity())
	}
	return ids
}

// Runner returns the runner for identity, if any.
func (s *Supervisor) Runner(identity string) (*Runner, bool) {
	r, ok := s.byID[identity]
	return r, ok
}

// Run starts every runner and service and blocks until ctx is cancelled
// or one of them returns an error, which cancels the rest.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.runners) == 0 {
		return errors.New("no identities to run")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}
	for _, svc := range s.services {
		g.Go(func() error {
			return svc.Run(gctx)
		})
	}

	debuglog.Infof("supervisor running %d identities, %d services", len(s.runners), len(s.services))
	err := g.Wait()
	debuglog.Infof("supervisor stopped")
	return err
}
