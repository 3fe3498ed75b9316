package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only: no Update/Delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Service records configuration changes.
//
// Audit is internal-only: the listing endpoint is restricted to admins.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Entity == "" || e.EntityID == "" || e.Action == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event for the actor in ctx. metadata is marshalled to
// JSON; callers pass redacted values only.
func (s *Service) Record(ctx context.Context, entity, entityID string, action Action, message string, metadata any) error {
	var raw json.RawMessage
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = b
	}
	actor := ActorFrom(ctx)
	return s.Append(ctx, Event{
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		IPAddress: actor.IP,
		RequestID: actor.RequestID,
		Message:   message,
		Metadata:  raw,
	})
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	return s.repo.List(ctx, f)
}
