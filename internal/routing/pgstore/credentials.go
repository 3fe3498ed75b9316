package pgstore

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
)

const liveUsernameIndex = "credentials_live_username_idx"

var credentialColumns = []string{
	"sid", "list_sid", "username", "password_hash", "state", "rotations", "rotated_at", "revoked_at", "created_at", "updated_at",
}

func scanCredentialList(sc rowScanner, _ *pgtype.Map) (routing.CredentialList, error) {
	var l routing.CredentialList
	err := sc.Scan(&l.SID, &l.FriendlyName, &l.CreatedAt)
	return l, err
}

func scanCredential(sc rowScanner, _ *pgtype.Map) (routing.Credential, error) {
	var (
		c                routing.Credential
		rotated, revoked sql.NullTime
	)
	err := sc.Scan(&c.SID, &c.ListSID, &c.Username, &c.PasswordHash, &c.State, &c.Rotations, &rotated, &revoked, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return routing.Credential{}, err
	}
	c.RotatedAt = timePtr(rotated)
	c.RevokedAt = timePtr(revoked)
	return c, nil
}

func liveLists() squirrel.SelectBuilder {
	return psql.Select("sid", "friendly_name", "created_at").From("credential_lists").Where(squirrel.Eq{"deleted_at": nil})
}

func (c conn) CredentialList(ctx context.Context, sid string) (routing.CredentialList, error) {
	l, err := one(ctx, c, liveLists().Where(squirrel.Eq{"sid": sid}), scanCredentialList)
	return l, mapError(err, routing.EntityCredentialList, sid)
}

func (c conn) CredentialLists(ctx context.Context) ([]routing.CredentialList, error) {
	out, err := collect(ctx, c, liveLists().OrderBy("sid"), scanCredentialList)
	return out, mapError(err, routing.EntityCredentialList, "list")
}

func (c conn) Credential(ctx context.Context, listSID, sid string) (routing.Credential, error) {
	cr, err := one(ctx, c, psql.Select(credentialColumns...).From("credentials").
		Where(squirrel.Eq{"sid": sid, "list_sid": listSID}), scanCredential)
	return cr, mapError(err, routing.EntityCredential, sid)
}

// Credentials lists the live (non-revoked) credentials of a list.
func (c conn) Credentials(ctx context.Context, listSID string) ([]routing.Credential, error) {
	ok, err := c.exists(ctx, psql.Select("1").From("credential_lists").Where(squirrel.Eq{"sid": listSID, "deleted_at": nil}))
	if err != nil {
		return nil, mapError(err, routing.EntityCredentialList, listSID)
	}
	if !ok {
		return nil, mapError(routing.ErrNotFound, routing.EntityCredentialList, listSID)
	}
	out, err := collect(ctx, c, psql.Select(credentialColumns...).From("credentials").
		Where(squirrel.Eq{"list_sid": listSID}).
		Where(squirrel.NotEq{"state": routing.CredentialRevoked}).
		OrderBy("sid"), scanCredential)
	return out, mapError(err, routing.EntityCredential, listSID)
}

func (s *Store) insertCredential(ctx context.Context, c conn, cr routing.Credential) error {
	_, err := c.exec(ctx, psql.Insert("credentials").Columns(credentialColumns...).Values(
		cr.SID, cr.ListSID, cr.Username, cr.PasswordHash, cr.State, cr.Rotations,
		nullTime(cr.RotatedAt), nullTime(cr.RevokedAt), s.stamp(cr.CreatedAt), s.stamp(cr.UpdatedAt),
	))
	if pgCode(err) == pgUniqueViolation && constraintOf(err) == liveUsernameIndex {
		return routing.Invalid(routing.EntityCredential, "username", routing.CodeAlreadyExists, "username already exists in this list")
	}
	return mapError(err, routing.EntityCredential, cr.SID)
}

// insertBundle writes a list and its credentials on c. The caller owns the
// transaction, so a failure on any row discards the whole bundle.
func (s *Store) insertBundle(ctx context.Context, c conn, b routing.CredentialBundle) error {
	_, err := c.exec(ctx, psql.Insert("credential_lists").Columns("sid", "friendly_name", "created_at").
		Values(b.List.SID, b.List.FriendlyName, s.stamp(b.List.CreatedAt)))
	if err != nil {
		return mapError(err, routing.EntityCredentialList, b.List.SID)
	}
	for _, cr := range b.Credentials {
		cr.ListSID = b.List.SID
		if err := s.insertCredential(ctx, c, cr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateCredentialList(ctx context.Context, b routing.CredentialBundle) error {
	return s.inTx(ctx, func(ctx context.Context, c conn) error {
		return s.insertBundle(ctx, c, b)
	})
}

// DeleteCredentialList tombstones the list. Its sid stays in the table, so it
// can never be reused.
func (s *Store) DeleteCredentialList(ctx context.Context, sid string, beforeDelete func(context.Context, routing.CredentialList) error) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		l, err := one(ctx, c, liveLists().Where(squirrel.Eq{"sid": sid}).Suffix("FOR UPDATE"), scanCredentialList)
		if err != nil {
			return err
		}
		n, err := c.count(ctx, psql.Select("count(*)").From("trunks").Where(squirrel.Eq{"credential_list_sid": sid}))
		if err != nil {
			return err
		}
		if n > 0 {
			return &routing.InUseError{Entity: routing.EntityCredentialList, ID: sid, Trunks: n}
		}
		if beforeDelete != nil {
			if err := beforeDelete(ctx, l); err != nil {
				return err
			}
		}
		now := s.now().UTC()
		_, err = c.exec(ctx, psql.Update("credentials").
			Set("state", routing.CredentialRevoked).
			Set("revoked_at", now).
			Set("updated_at", now).
			Where(squirrel.Eq{"list_sid": sid}).
			Where(squirrel.NotEq{"state": routing.CredentialRevoked}))
		if err != nil {
			return err
		}
		return c.execOne(ctx, psql.Update("credential_lists").Set("deleted_at", now).Where(squirrel.Eq{"sid": sid}))
	})
	return mapDeleteError(err, routing.EntityCredentialList, sid)
}

func (s *Store) CreateCredential(ctx context.Context, cr routing.Credential) error {
	return s.inTx(ctx, func(ctx context.Context, c conn) error {
		ok, err := c.shareCredentialList(ctx, cr.ListSID)
		if err != nil {
			return mapError(err, routing.EntityCredentialList, cr.ListSID)
		}
		if !ok {
			return mapError(routing.ErrNotFound, routing.EntityCredentialList, cr.ListSID)
		}
		return s.insertCredential(ctx, c, cr)
	})
}

func (s *Store) UpdateCredential(ctx context.Context, cr routing.Credential) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		prev, err := one(ctx, c, psql.Select(credentialColumns...).From("credentials").
			Where(squirrel.Eq{"sid": cr.SID, "list_sid": cr.ListSID}).Suffix("FOR UPDATE"), scanCredential)
		if err != nil {
			return err
		}
		if prev.Username != cr.Username {
			return routing.Invalid(routing.EntityCredential, "username", routing.CodeImmutableField, "username cannot be changed")
		}
		if prev.State == routing.CredentialRevoked {
			return routing.ErrInvalidTransition
		}
		return c.execOne(ctx, psql.Update("credentials").SetMap(map[string]any{
			"password_hash": cr.PasswordHash,
			"state":         cr.State,
			"rotations":     cr.Rotations,
			"rotated_at":    nullTime(cr.RotatedAt),
			"revoked_at":    nullTime(cr.RevokedAt),
			"updated_at":    s.stamp(cr.UpdatedAt),
		}).Where(squirrel.Eq{"sid": cr.SID}))
	})
	return mapError(err, routing.EntityCredential, cr.SID)
}
