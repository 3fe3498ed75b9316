package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telecom-routing/internal/audit"
	"telecom-routing/internal/routing"
	"telecom-routing/pkg/logger"
)

// NewCredentialList is the create payload for a credential list and its
// initial credentials.
type NewCredentialList struct {
	FriendlyName string                    `json:"friendly_name"`
	Credentials  []routing.CredentialInput `json:"credentials"`
}

// CredentialListView is a list with its live credentials.
type CredentialListView struct {
	routing.CredentialList
	Credentials []routing.Credential `json:"credentials"`
}

func (in NewCredentialList) validate() error {
	list := routing.CredentialList{FriendlyName: strings.TrimSpace(in.FriendlyName)}
	var violations []routing.Violation
	collect := func(prefix string, err error) error {
		if err == nil {
			return nil
		}
		var verr *routing.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for _, v := range verr.Violations {
			v.Field = prefix + v.Field
			violations = append(violations, v)
		}
		return nil
	}
	if err := collect("", routing.ValidateCredentialList(list)); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, c := range in.Credentials {
		prefix := fmt.Sprintf("credentials[%d].", i)
		if err := collect(prefix, routing.ValidateCredential(c)); err != nil {
			return err
		}
		if c.Username != "" && seen[c.Username] {
			violations = append(violations, routing.Violation{Field: prefix + "username", Code: routing.CodeAlreadyExists, Message: "username is listed twice"})
		}
		seen[c.Username] = true
	}
	if len(violations) > 0 {
		return &routing.ValidationError{Entity: routing.EntityCredentialList, Violations: violations}
	}
	return nil
}

// provisionBundle creates the list and its credentials at the provider,
// list first. If a credential fails the list is deleted again, so the
// provider never keeps a list without its credentials.
func (s *Service) provisionBundle(ctx context.Context, in NewCredentialList) (routing.CredentialBundle, error) {
	if err := in.validate(); err != nil {
		return routing.CredentialBundle{}, err
	}
	hashes := make([]string, len(in.Credentials))
	for i, c := range in.Credentials {
		h, err := s.hash(c.Password)
		if err != nil {
			return routing.CredentialBundle{}, err
		}
		hashes[i] = h
	}

	now := s.now()
	name := strings.TrimSpace(in.FriendlyName)
	listSID, err := s.prov.CreateCredentialList(ctx, name)
	if err != nil {
		return routing.CredentialBundle{}, err
	}
	bundle := routing.CredentialBundle{List: routing.CredentialList{SID: listSID, FriendlyName: name, CreatedAt: now}}

	for i, c := range in.Credentials {
		sid, err := s.prov.CreateCredential(ctx, listSID, c.Username, c.Password)
		if err != nil {
			s.rollback(ctx, "credential list "+listSID, func(ctx context.Context) error {
				return s.prov.DeleteCredentialList(ctx, listSID)
			})
			return routing.CredentialBundle{}, err
		}
		bundle.Credentials = append(bundle.Credentials, routing.NewCredential(sid, listSID, c.Username, hashes[i], now))
	}
	return bundle, nil
}

func (s *Service) unprovisionBundle(ctx context.Context, b routing.CredentialBundle) {
	s.rollback(ctx, "credential list "+b.List.SID, func(ctx context.Context) error {
		return s.prov.DeleteCredentialList(ctx, b.List.SID)
	})
}

func bundleView(b routing.CredentialBundle) CredentialListView {
	creds := b.Credentials
	if creds == nil {
		creds = []routing.Credential{}
	}
	return CredentialListView{CredentialList: b.List, Credentials: creds}
}

func (s *Service) ListCredentialLists(ctx context.Context) ([]routing.CredentialList, error) {
	return s.store.CredentialLists(ctx)
}

func (s *Service) GetCredentialList(ctx context.Context, sid string) (CredentialListView, error) {
	l, err := s.store.CredentialList(ctx, sid)
	if err != nil {
		return CredentialListView{}, err
	}
	creds, err := s.store.Credentials(ctx, sid)
	if err != nil {
		return CredentialListView{}, err
	}
	return bundleView(routing.CredentialBundle{List: l, Credentials: creds}), nil
}

func (s *Service) CreateCredentialList(ctx context.Context, in NewCredentialList) (CredentialListView, error) {
	bundle, err := s.provisionBundle(ctx, in)
	if err == nil {
		if err = s.store.CreateCredentialList(ctx, bundle); err != nil {
			s.unprovisionBundle(ctx, bundle)
		}
	}
	view := bundleView(bundle)
	return view, s.finish(ctx, routing.EntityCredentialList, bundle.List.SID, audit.ActionCreated, view, err)
}

// DeleteCredentialList removes the list at the provider, then tombstones it
// locally and revokes its credentials. Lists still bound to a trunk stay.
func (s *Service) DeleteCredentialList(ctx context.Context, sid string) error {
	err := s.store.DeleteCredentialList(ctx, sid, func(ctx context.Context, l routing.CredentialList) error {
		return s.prov.DeleteCredentialList(ctx, l.SID)
	})
	return s.finish(ctx, routing.EntityCredentialList, sid, audit.ActionDeleted, nil, err)
}

func (s *Service) ListCredentials(ctx context.Context, listSID string) ([]routing.Credential, error) {
	return s.store.Credentials(ctx, listSID)
}

func (s *Service) GetCredential(ctx context.Context, listSID, sid string) (routing.Credential, error) {
	return s.store.Credential(ctx, listSID, sid)
}

func (s *Service) CreateCredential(ctx context.Context, listSID string, in routing.CredentialInput) (routing.Credential, error) {
	c, err := s.createCredential(ctx, listSID, in)
	return c, s.finish(ctx, routing.EntityCredential, c.SID, audit.ActionCreated, c, err)
}

func (s *Service) createCredential(ctx context.Context, listSID string, in routing.CredentialInput) (routing.Credential, error) {
	if err := routing.ValidateCredential(in); err != nil {
		return routing.Credential{}, err
	}
	if _, err := s.store.CredentialList(ctx, listSID); err != nil {
		return routing.Credential{}, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return routing.Credential{}, err
	}
	sid, err := s.prov.CreateCredential(ctx, listSID, in.Username, in.Password)
	if err != nil {
		return routing.Credential{}, err
	}
	c := routing.NewCredential(sid, listSID, in.Username, hash, s.now())
	if err := s.store.CreateCredential(ctx, c); err != nil {
		s.rollback(ctx, "credential "+sid, func(ctx context.Context) error {
			return s.prov.DeleteCredential(ctx, listSID, sid)
		})
		return routing.Credential{}, err
	}
	return c, nil
}

// UpdateCredential rotates the password. The username is immutable; asking
// to change it is a validation error.
func (s *Service) UpdateCredential(ctx context.Context, listSID, sid string, patch routing.CredentialPatch) (routing.Credential, error) {
	c, err := s.rotateCredential(ctx, listSID, sid, patch)
	return c, s.finish(ctx, routing.EntityCredential, sid, audit.ActionRotated, c, err)
}

func (s *Service) rotateCredential(ctx context.Context, listSID, sid string, patch routing.CredentialPatch) (routing.Credential, error) {
	prev, err := s.store.Credential(ctx, listSID, sid)
	if err != nil {
		return routing.Credential{}, err
	}
	if err := routing.ValidateCredentialUpdate(prev, patch); err != nil {
		return routing.Credential{}, err
	}
	hash, err := s.hash(*patch.Password)
	if err != nil {
		return routing.Credential{}, err
	}
	next, err := prev.Rotate(hash, s.now())
	if err != nil {
		return routing.Credential{}, err
	}
	if err := s.prov.UpdateCredential(ctx, listSID, sid, *patch.Password); err != nil {
		return routing.Credential{}, err
	}
	if err := s.store.UpdateCredential(ctx, next); err != nil {
		// The old password is not known, so the provider cannot be put back.
		logger.From(ctx).Error("credential rotated at provider but not stored; stored hash is stale",
			"list_sid", listSID, "sid", sid, "err", err)
		return routing.Credential{}, err
	}
	return next, nil
}

// DeleteCredential revokes the credential. The row stays as a tombstone so
// its SID is never issued again.
func (s *Service) DeleteCredential(ctx context.Context, listSID, sid string) error {
	c, err := s.revokeCredential(ctx, listSID, sid)
	return s.finish(ctx, routing.EntityCredential, sid, audit.ActionRevoked, c, err)
}

func (s *Service) revokeCredential(ctx context.Context, listSID, sid string) (routing.Credential, error) {
	prev, err := s.store.Credential(ctx, listSID, sid)
	if err != nil {
		return routing.Credential{}, err
	}
	next, err := prev.Revoke(s.now())
	if err != nil {
		return routing.Credential{}, err
	}
	if err := s.prov.DeleteCredential(ctx, listSID, sid); err != nil {
		return routing.Credential{}, err
	}
	if err := s.store.UpdateCredential(ctx, next); err != nil {
		return routing.Credential{}, err
	}
	return next, nil
}
