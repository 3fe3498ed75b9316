package routing

import (
	"fmt"
	"time"
)

// CredentialEvent drives the credential state machine.
type CredentialEvent string

const (
	EventActivate CredentialEvent = "activate"
	EventRotate   CredentialEvent = "rotate"
	EventRevoke   CredentialEvent = "revoke"
)

// Draft -> Active -> (Rotate)* -> Revoked. Revoked is terminal.
var credentialTransitions = map[CredentialState]map[CredentialEvent]CredentialState{
	CredentialDraft: {
		EventActivate: CredentialActive,
		EventRevoke:   CredentialRevoked,
	},
	CredentialActive: {
		EventRotate: CredentialActive,
		EventRevoke: CredentialRevoked,
	},
}

// CanTransition reports whether ev is allowed from state.
func CanTransition(state CredentialState, ev CredentialEvent) bool {
	_, ok := credentialTransitions[state][ev]
	return ok
}

func transition(c Credential, ev CredentialEvent) (Credential, error) {
	next, ok := credentialTransitions[c.State][ev]
	if !ok {
		return c, fmt.Errorf("credential %s: %s from %s: %w", c.SID, ev, c.State, ErrInvalidTransition)
	}
	c.State = next
	return c, nil
}

// NewCredential builds a credential and moves it straight to Active.
func NewCredential(sid, listSID, username, passwordHash string, now time.Time) Credential {
	c := Credential{
		SID:          sid,
		ListSID:      listSID,
		Username:     username,
		PasswordHash: passwordHash,
		State:        CredentialDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c, _ = transition(c, EventActivate)
	return c
}

// Rotate replaces the password hash. The username never changes.
func (c Credential) Rotate(passwordHash string, now time.Time) (Credential, error) {
	c, err := transition(c, EventRotate)
	if err != nil {
		return c, err
	}
	c.PasswordHash = passwordHash
	c.Rotations++
	c.RotatedAt = &now
	c.UpdatedAt = now
	return c, nil
}

// Revoke is terminal; the SID stays reserved.
func (c Credential) Revoke(now time.Time) (Credential, error) {
	c, err := transition(c, EventRevoke)
	if err != nil {
		return c, err
	}
	c.RevokedAt = &now
	c.UpdatedAt = now
	return c, nil
}
