package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"telecom-routing/internal/routing"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

var entityTables = map[routing.EntityKind]string{
	routing.EntityPlan:           "plans",
	routing.EntityTrunk:          "trunks",
	routing.EntityCredentialList: "credential_lists",
	routing.EntityCredential:     "credentials",
	routing.EntityDispatchRule:   "dispatch_rules",
	routing.EntityRoutingProfile: "routing_profiles",
	routing.EntityMapping:        "plan_routing_profiles",
}

// mapError converts database/sql and pgconn errors to routing errors.
// Context errors and errors that already carry a routing code pass through.
func mapError(err error, entity routing.EntityKind, id string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", entity, id, err)
	}
	if routing.CodeOf(err) != "" {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, routing.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s %s: %w", entity, id, routing.ErrAlreadyExists)
		case pgForeignKeyViolation:
			return routing.Invalid(entity, constraintField(entity, pgErr.ConstraintName), routing.CodeInvalidReference, "referenced row does not exist")
		case pgCheckViolation:
			return routing.Invalid(entity, constraintField(entity, pgErr.ConstraintName), routing.CodeInvalidValue, pgErr.Message)
		}
	}

	return fmt.Errorf("%s %s: %w", entity, id, err)
}

// mapDeleteError is mapError for deletes: a foreign key violation there means
// a referrer slipped past the usage count.
func mapDeleteError(err error, entity routing.EntityKind, id string) error {
	if pgCode(err) == pgForeignKeyViolation {
		return &routing.InUseError{Entity: entity, ID: id}
	}
	return mapError(err, entity, id)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// constraintField derives the payload field from a Postgres constraint name,
// e.g. routing_profiles_outbound_trunk_id_fkey -> outbound_trunk_id.
func constraintField(entity routing.EntityKind, constraint string) string {
	name := constraint
	for _, suffix := range []string{"_fkey", "_chk", "_idx", "_key"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if table, ok := entityTables[entity]; ok {
		name = strings.TrimPrefix(name, table+"_")
	}
	if name == "" {
		return string(entity)
	}
	return name
}

func constraintOf(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
