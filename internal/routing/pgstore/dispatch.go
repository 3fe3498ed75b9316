package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgtype"

	"telecom-routing/internal/routing"
)

var ruleColumns = []string{
	"id", "name", "type", "settings", "agent_name", "auto_dispatch", "hide_phone_number", "external_id", "created_at", "updated_at",
	"COALESCE((SELECT array_agg(drt.trunk_id ORDER BY drt.position) FROM dispatch_rule_trunks drt WHERE drt.rule_id = dispatch_rules.id), '{}') AS trunk_ids",
}

var ruleWriteColumns = ruleColumns[:len(ruleColumns)-1]

func ruleSettings(r routing.DispatchRule) (string, error) {
	var v any
	switch {
	case r.Type == routing.DispatchIndividual && r.Individual != nil:
		v = r.Individual
	case r.Type == routing.DispatchDirect && r.Direct != nil:
		v = r.Direct
	case r.Type == routing.DispatchCallee && r.Callee != nil:
		v = r.Callee
	default:
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func scanRule(sc rowScanner, m *pgtype.Map) (routing.DispatchRule, error) {
	var (
		r        routing.DispatchRule
		settings []byte
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Type, &settings, &r.AgentName, &r.AutoDispatch, &r.HidePhoneNumber, &r.ExternalID,
		&r.CreatedAt, &r.UpdatedAt, m.SQLScanner(&r.TrunkIDs))
	if err != nil {
		return routing.DispatchRule{}, err
	}
	switch r.Type {
	case routing.DispatchIndividual:
		r.Individual = &routing.IndividualDispatch{}
		err = json.Unmarshal(settings, r.Individual)
	case routing.DispatchDirect:
		r.Direct = &routing.DirectDispatch{}
		err = json.Unmarshal(settings, r.Direct)
	case routing.DispatchCallee:
		r.Callee = &routing.CalleeDispatch{}
		err = json.Unmarshal(settings, r.Callee)
	}
	if err != nil {
		return routing.DispatchRule{}, fmt.Errorf("decode %s settings: %w", r.Type, err)
	}
	return r, nil
}

func (c conn) DispatchRule(ctx context.Context, id string) (routing.DispatchRule, error) {
	r, err := one(ctx, c, psql.Select(ruleColumns...).From("dispatch_rules").Where(squirrel.Eq{"id": id}), scanRule)
	return r, mapError(err, routing.EntityDispatchRule, id)
}

func (c conn) DispatchRules(ctx context.Context, f routing.DispatchRuleFilter) ([]routing.DispatchRule, error) {
	b := psql.Select(ruleColumns...).From("dispatch_rules").OrderBy("id")
	if f.TrunkID != "" {
		b = b.Where("EXISTS (SELECT 1 FROM dispatch_rule_trunks drt WHERE drt.rule_id = dispatch_rules.id AND drt.trunk_id = ?)", f.TrunkID)
	}
	out, err := collect(ctx, c, b, scanRule)
	return out, mapError(err, routing.EntityDispatchRule, "list")
}

// putRuleTrunks replaces the trunk list of rule id. Every trunk must exist and
// accept inbound calls.
func (c conn) putRuleTrunks(ctx context.Context, id string, trunkIDs []string) error {
	if _, err := c.exec(ctx, psql.Delete("dispatch_rule_trunks").Where(squirrel.Eq{"rule_id": id})); err != nil {
		return err
	}
	if len(trunkIDs) == 0 {
		return nil
	}
	ins := psql.Insert("dispatch_rule_trunks").Columns("rule_id", "trunk_id", "position")
	for i, tid := range trunkIDs {
		ok, err := c.shareTrunk(ctx, tid, routing.DirectionInbound)
		if err != nil {
			return err
		}
		if !ok {
			return routing.Invalid(routing.EntityDispatchRule, "trunk_ids["+strconv.Itoa(i)+"]", routing.CodeInvalidReference, "trunk "+tid+" does not exist or is not inbound")
		}
		ins = ins.Values(id, tid, i)
	}
	_, err := c.exec(ctx, ins)
	return err
}

func (s *Store) CreateDispatchRule(ctx context.Context, r routing.DispatchRule) error {
	settings, err := ruleSettings(r)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(ctx context.Context, c conn) error {
		_, err := c.exec(ctx, psql.Insert("dispatch_rules").Columns(ruleWriteColumns...).Values(
			r.ID, r.Name, r.Type, settings, r.AgentName, r.AutoDispatch, r.HidePhoneNumber, r.ExternalID,
			s.stamp(r.CreatedAt), s.stamp(r.UpdatedAt),
		))
		if err != nil {
			return mapError(err, routing.EntityDispatchRule, r.ID)
		}
		return c.putRuleTrunks(ctx, r.ID, r.TrunkIDs)
	})
	return mapError(err, routing.EntityDispatchRule, r.ID)
}

func (s *Store) UpdateDispatchRule(ctx context.Context, r routing.DispatchRule) error {
	settings, err := ruleSettings(r)
	if err != nil {
		return err
	}
	err = s.inTx(ctx, func(ctx context.Context, c conn) error {
		// FOR UPDATE waits out profile writes holding the rule FOR KEY SHARE.
		ok, err := c.exists(ctx, psql.Select("1").From("dispatch_rules").Where(squirrel.Eq{"id": r.ID}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.ErrNotFound
		}
		err = c.execOne(ctx, psql.Update("dispatch_rules").SetMap(map[string]any{
			"name":              r.Name,
			"type":              r.Type,
			"settings":          settings,
			"agent_name":        r.AgentName,
			"auto_dispatch":     r.AutoDispatch,
			"hide_phone_number": r.HidePhoneNumber,
			"external_id":       r.ExternalID,
			"updated_at":        s.stamp(r.UpdatedAt),
		}).Where(squirrel.Eq{"id": r.ID}))
		if err != nil {
			return err
		}
		if err := c.putRuleTrunks(ctx, r.ID, r.TrunkIDs); err != nil {
			return err
		}
		return c.checkRuleCoversProfiles(ctx, r)
	})
	return mapError(err, routing.EntityDispatchRule, r.ID)
}

// checkRuleCoversProfiles fails when a routing profile using r has an
// inbound trunk that r no longer lists.
func (c conn) checkRuleCoversProfiles(ctx context.Context, r routing.DispatchRule) error {
	row, err := c.queryRow(ctx, psql.Select("id", "inbound_trunk_id").From("routing_profiles").
		Where(squirrel.Eq{"dispatch_rule_id": r.ID}).
		Where("inbound_trunk_id IS NOT NULL").
		Where(squirrel.NotEq{"inbound_trunk_id": r.TrunkIDs}).
		OrderBy("id").Limit(1))
	if err != nil {
		return err
	}
	var profileID, trunkID string
	switch err := row.Scan(&profileID, &trunkID); {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return err
	}
	return routing.Invalid(routing.EntityDispatchRule, "trunk_ids", routing.CodeDispatchRuleTrunkMismatch, "routing profile "+profileID+" needs trunk "+trunkID)
}

func (s *Store) DeleteDispatchRule(ctx context.Context, id string, beforeDelete func(context.Context, routing.DispatchRule) error) error {
	err := s.inTx(ctx, func(ctx context.Context, c conn) error {
		ok, err := c.exists(ctx, psql.Select("1").From("dispatch_rules").Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE"))
		if err != nil {
			return err
		}
		if !ok {
			return routing.ErrNotFound
		}
		r, err := c.DispatchRule(ctx, id)
		if err != nil {
			return err
		}
		n, err := c.count(ctx, psql.Select("count(*)").From("routing_profiles").Where(squirrel.Eq{"dispatch_rule_id": id}))
		if err != nil {
			return err
		}
		if n > 0 {
			return &routing.InUseError{Entity: routing.EntityDispatchRule, ID: id, RoutingProfiles: n}
		}
		if beforeDelete != nil {
			if err := beforeDelete(ctx, r); err != nil {
				return err
			}
		}
		_, err = c.exec(ctx, psql.Delete("dispatch_rules").Where(squirrel.Eq{"id": id}))
		return err
	})
	return mapDeleteError(err, routing.EntityDispatchRule, id)
}
