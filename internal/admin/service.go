package admin

import (
	"context"
	"time"

	"telecom-routing/internal/audit"
	"telecom-routing/internal/metrics"
	"telecom-routing/internal/routing"
	"telecom-routing/internal/telephony"
	"telecom-routing/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Invalidator drops cached resolutions after a configuration change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service is the administration API behind the REST handlers.
//
// Every mutation runs the same pipeline:
//  1. normalize and validate against one store snapshot
//  2. provision at the SIP provider (trunks, credentials, dispatch rules)
//  3. persist; provider side effects are rolled back if this fails
//  4. audit, invalidate the resolution cache, count the mutation
//
// Audit and cache failures are logged; they never fail a committed change.
type Service struct {
	store   routing.Store
	prov    telephony.Provisioner
	audit   *audit.Service
	cache   Invalidator
	metrics *metrics.Metrics

	bcryptCost int
	clock      func() time.Time
	newID      func() string
}

type Option func(*Service)

func WithAudit(a *audit.Service) Option { return func(s *Service) { s.audit = a } }

func WithCache(c Invalidator) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithBcryptCost overrides the credential hashing cost (tests use bcrypt.MinCost).
func WithBcryptCost(cost int) Option { return func(s *Service) { s.bcryptCost = cost } }

func WithClock(clock func() time.Time) Option { return func(s *Service) { s.clock = clock } }

func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func New(store routing.Store, prov telephony.Provisioner, opts ...Option) *Service {
	s := &Service{
		store:      store,
		prov:       prov,
		bcryptCost: bcrypt.DefaultCost,
		clock:      time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prov == nil {
		s.prov = telephony.NewMux(nil, nil, s.metrics)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// validate runs check against a consistent snapshot of the configuration.
func (s *Service) validate(ctx context.Context, check func(routing.Snapshot) error) error {
	return s.store.View(ctx, check)
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// finish counts the mutation and, when it succeeded, audits it and bumps the
// cache generation.
func (s *Service) finish(ctx context.Context, entity routing.EntityKind, id string, action audit.Action, after any, err error) error {
	s.metrics.ObserveMutation(entity, string(action), err)
	if err != nil {
		return err
	}

	log := logger.From(ctx)
	if s.audit != nil {
		if aerr := s.audit.Record(ctx, string(entity), id, action, string(entity)+" "+string(action), after); aerr != nil {
			log.Error("audit record failed", "entity", entity, "id", id, "action", action, "err", aerr)
		}
	}
	if s.cache != nil {
		if cerr := s.cache.Bump(ctx); cerr != nil {
			log.Warn("resolution cache invalidation failed", "err", cerr)
		}
	}
	log.Info("configuration changed", "entity", entity, "id", id, "action", action)
	return nil
}

// rollback undoes a provider side effect after a later step failed. It runs
// even when the request context is already cancelled.
func (s *Service) rollback(ctx context.Context, what string, undo func(context.Context) error) {
	if err := undo(context.WithoutCancel(ctx)); err != nil {
		logger.From(ctx).Error("provider rollback failed; manual cleanup needed", "what", what, "err", err)
	}
}
