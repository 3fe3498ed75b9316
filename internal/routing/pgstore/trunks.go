package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
)

var trunkColumns = []string{
	"id", "name", "type", "direction", "status", "external_id", "credential_list_sid", "settings", "created_at", "updated_at",
}

// trunkSettings encodes the variant matching t.Type. Secrets are dropped.
func trunkSettings(t routing.Trunk) (string, error) {
	t = t.Redacted()
	var v any
	switch {
	case t.Type == routing.TrunkTypeTwilio && t.Twilio != nil:
		v = t.Twilio
	case t.Type == routing.TrunkTypeLiveKitOutbound && t.LiveKitOutbound != nil:
		v = t.LiveKitOutbound
	case t.Type == routing.TrunkTypeLiveKitInbound && t.LiveKitInbound != nil:
		v = t.LiveKitInbound
	case t.Type == routing.TrunkTypeCustom && t.Custom != nil:
		v = t.Custom
	default:
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanTrunk(sc rowScanner, _ *pgtype.Map) (routing.Trunk, error) {
	var (
		t        routing.Trunk
		listSID  sql.NullString
		settings []byte
	)
	if err := sc.Scan(&t.ID, &t.Name, &t.Type, &t.Direction, &t.Status, &t.ExternalID, &listSID, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return routing.Trunk{}, err
	}
	var err error
	switch t.Type {
	case routing.TrunkTypeTwilio:
		t.Twilio = &routing.TwilioTrunk{}
		err = json.Unmarshal(settings, t.Twilio)
		t.Twilio.CredentialListSID = listSID.String
	case routing.TrunkTypeLiveKitOutbound:
		t.LiveKitOutbound = &routing.LiveKitOutboundTrunk{}
		err = json.Unmarshal(settings, t.LiveKitOutbound)
	case routing.TrunkTypeLiveKitInbound:
		t.LiveKitInbound = &routing.LiveKitInboundTrunk{}
		err = json.Unmarshal(settings, t.LiveKitInbound)
	case routing.TrunkTypeCustom:
		t.Custom = &routing.CustomTrunk{}
		err = json.Unmarshal(settings, t.Custom)
	}
	if err != nil {
		return routing.Trunk{}, fmt.Errorf("decode %s settings: %w", t.Type, err)
	}
	return t, nil
}

func (c conn) Trunk(ctx context.Context, id string) (routing.Trunk, error) {
	t, err := one(ctx, c, psql.Select(trunkColumns...).From("trunks").Where(squirrel.Eq{"id": id}), scanTrunk)
	return t, mapError(err, routing.EntityTrunk, id)
}

func (c conn) Trunks(ctx context.Context, f routing.TrunkFilter) ([]routing.Trunk, error) {
	b := psql.Select(trunkColumns...).From("trunks").OrderBy("id")
	if f.Type != "" {
		b = b.Where(squirrel.Eq{"type": f.Type})
	}
	if f.Direction != "" {
		b = b.Where(squirrel.Eq{"direction": f.Direction})
	}
	if f.Status != "" {
		b = b.Where(squirrel.Eq{"status": f.Status})
	}
	out, err := collect(ctx, c, b, scanTrunk)
	return out, mapError(err, routing.EntityTrunk, "list")
}

// shareTrunk locks a referenced trunk and reports whether it exists and
// accepts dir.
func (c conn) shareTrunk(ctx context.Context, id string, dir routing.Direction) (bool, error) {
	row, err := c.queryRow(ctx, psql.Select("direction").From("trunks").Where(squirrel.Eq{"id": id}).Suffix("FOR KEY SHARE"))
	if err != nil {
		return false, err
	}
	var t routing.Trunk
	switch err := row.Scan(&t.Direction); {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return t.Accepts(dir), nil
}

// shareCredentialList locks a live credential list and reports whether it exists.
func (c conn) shareCredentialList(ctx context.Context, sid string) (bool, error) {
	return c.exists(ctx, psql.Select("1").From("credential_lists").
		Where(squirrel.Eq{"sid": sid, "deleted_at": nil}).Suffix("FOR KEY SHARE"))
}

func (c conn) checkTrunkRefs(ctx context.Context, t routing.Trunk) error {
	sid := t.CredentialListSID()
	if sid == "" {
		return nil
	}
	ok, err := c.shareCredentialList(ctx, sid)
	if err != nil {
		return err
	}
	if !ok {
		return routing.Invalid(routing.EntityTrunk, "twilio.credential_list_sid", routing.CodeInvalidReference, "credential list does not exist")
	}
	return nil
}

func (c conn) usage(ctx context.Context, id string) (routing.TrunkUsage, error) {
	row, err := c.queryRow(ctx, psql.Select().
		Column("count(*) FILTER (WHERE outbound_trunk_id = ?)", id).
		Column("count(*) FILTER (WHERE inbound_trunk_id = ?)", id).
		From("routing_profiles").Where(squirrel.Or{
		squirrel.Eq{"outbound_trunk_id": id},
		squirrel.Eq{"inbound_trunk_id": id},
	}))
	if err != nil {
		return routing.TrunkUsage{}, err
	}
	var u routing.TrunkUsage
	err = row.Scan(&u.Outbound, &u.Inbound)
	return u, err
}

// soleTrunkRules locks the dispatch rules listing trunk id and counts those
// for which it is the only trunk.
func (c conn) soleTrunkRules(ctx context.Context, id string) (int, error) {
	rows, err := c.query(ctx, psql.Select("id").From("dispatch_rules").
		Where("id IN (SELECT rule_id FROM dispatch_rule_trunks WHERE trunk_id = ?)", id).
		Suffix("FOR UPDATE"))
	if err != nil {
		return 0, err
	}
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	return c.count(ctx, psql.Select("count(*)").From("dispatch_rule_trunks drt").
		Where(squirrel.Eq{"drt.trunk_id": id}).
		Where("NOT EXISTS (SELECT 1 FROM dispatch_rule_trunks o WHERE o.rule_id = drt.rule_id AND o.trunk_id <> drt.trunk_id)"))
}

func (s *Store) CreateTrunk(ctx context.Context, t routing.Trunk, bundle *routing.CredentialBundle) error {
	settings, err := trunkSettings(t)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(ctx context.Context, c conn) error {
		if bundle != nil {
			if err := s.insertBundle(ctx, c, *bundle); err != nil {
				return err
			}
		}
		if err := c.checkTrunkRefs(ctx, t); err != nil {
			return err
		}
		_, err := c.exec(ctx, psql.Insert("trunks").Columns(trunkColumns...).Values(
			t.ID, t.Name, t.Type, t.Direction, t.Status, t.ExternalID, nullable(t.CredentialListSID()), settings,
			s.stamp(t.CreatedAt), s.stamp(t.UpdatedAt),
		))
		return mapError(err, routing.EntityTrunk, t.ID)
	})
	return mapError(err, routing.EntityTrunk, t.ID)
}

func (s *Store) UpdateTrunk(ctx context.Context, t routing.Trunk) error {
	settings, err := trunkSettings(t)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(ctx context.Context, c conn) error {
		ok, err := c.exists(ctx, psql.Select("1").From("trunks").Where(squirrel.Eq{"id": t.ID}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.ErrNotFound
		}
		if err := c.checkTrunkRefs(ctx, t); err != nil {
			return err
		}
		usage, err := c.usage(ctx, t.ID)
		if err != nil {
			return err
		}
		if usage.Outbound > 0 && !t.Accepts(routing.DirectionOutbound) || usage.Inbound > 0 && !t.Accepts(routing.DirectionInbound) {
			return routing.Invalid(routing.EntityTrunk, "direction", routing.CodeInvalidValue, "direction conflicts with routing profiles using this trunk")
		}
		if !t.Accepts(routing.DirectionInbound) {
			// The trunk row is held FOR UPDATE, so no rule can add it meanwhile.
			listed, err := c.exists(ctx, psql.Select("1").From("dispatch_rule_trunks").Where(squirrel.Eq{"trunk_id": t.ID}).Limit(1))
			if err != nil {
				return err
			}
			if listed {
				return routing.Invalid(routing.EntityTrunk, "direction", routing.CodeInvalidReference, "dispatch rules still list this trunk")
			}
		}
		return c.execOne(ctx, psql.Update("trunks").SetMap(map[string]any{
			"name":                t.Name,
			"direction":           t.Direction,
			"status":              t.Status,
			"external_id":         t.ExternalID,
			"credential_list_sid": nullable(t.CredentialListSID()),
			"settings":            settings,
			"updated_at":          s.stamp(t.UpdatedAt),
		}).Where(squirrel.Eq{"id": t.ID}))
	})
	return mapError(err, routing.EntityTrunk, t.ID)
}

func (s *Store) DeleteTrunk(ctx context.Context, id string, beforeDelete func(context.Context, routing.Trunk) error) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		t, err := one(ctx, c, psql.Select(trunkColumns...).From("trunks").Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE"), scanTrunk)
		if err != nil {
			return err
		}
		usage, err := c.usage(ctx, id)
		if err != nil {
			return err
		}
		sole, err := c.soleTrunkRules(ctx, id)
		if err != nil {
			return err
		}
		if usage.InUse() || sole > 0 {
			return &routing.InUseError{Entity: routing.EntityTrunk, ID: id, Outbound: usage.Outbound, Inbound: usage.Inbound, DispatchRules: sole}
		}
		if beforeDelete != nil {
			if err := beforeDelete(ctx, t); err != nil {
				return err
			}
		}
		// dispatch_rule_trunks rows go with the trunk (ON DELETE CASCADE).
		_, err = c.exec(ctx, psql.Delete("trunks").Where(squirrel.Eq{"id": id}))
		return err
	})
	return mapDeleteError(err, routing.EntityTrunk, id)
}

func (c conn) TrunkUsage(ctx context.Context, id string) (routing.TrunkUsage, error) {
	ok, err := c.exists(ctx, psql.Select("1").From("trunks").Where(squirrel.Eq{"id": id}))
	if err != nil {
		return routing.TrunkUsage{}, mapError(err, routing.EntityTrunk, id)
	}
	if !ok {
		return routing.TrunkUsage{}, mapError(routing.ErrNotFound, routing.EntityTrunk, id)
	}
	u, err := c.usage(ctx, id)
	return u, mapError(err, routing.EntityTrunk, id)
}

func (c conn) TrunkUsages(ctx context.Context) (map[string]routing.TrunkUsage, error) {
	profiles, err := collect(ctx, c, psql.Select("outbound_trunk_id", "inbound_trunk_id").From("routing_profiles"),
		func(sc rowScanner, _ *pgtype.Map) (routing.RoutingProfile, error) {
			var out, in sql.NullString
			err := sc.Scan(&out, &in)
			return routing.RoutingProfile{OutboundTrunkID: out.String, InboundTrunkID: in.String}, err
		})
	if err != nil {
		return nil, mapError(err, routing.EntityTrunk, "usage")
	}
	return routing.IndexTrunkUsage(profiles), nil
}
