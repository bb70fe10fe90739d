package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// TriggerSQL returns the DDL for a trigger that fires whenever
// ingredients.cost_per_unit changes: it flags the dependent preps stale, so
// Reconcile catches writes nobody propagated, and notifies channel.
func TriggerSQL(channel string) string {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	literal := "'" + strings.ReplaceAll(channel, "'", "''") + "'"
	return `CREATE OR REPLACE FUNCTION prepcost_notify_ingredient_cost() RETURNS trigger AS $$
BEGIN
	IF NEW.cost_per_unit IS DISTINCT FROM OLD.cost_per_unit THEN
		UPDATE preps SET cost_stale = TRUE
			WHERE id IN (SELECT prep_id FROM prep_ingredients WHERE ingredient_id = NEW.id);
		PERFORM pg_notify(` + literal + `, json_build_object('ingredient_id', NEW.id)::text);
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS prepcost_ingredient_cost_changed ON ingredients;
CREATE TRIGGER prepcost_ingredient_cost_changed
	AFTER UPDATE OF cost_per_unit ON ingredients
	FOR EACH ROW EXECUTE FUNCTION prepcost_notify_ingredient_cost();`
}

// InstallTrigger creates or replaces the notification trigger.
func InstallTrigger(ctx context.Context, db execer, channel string) error {
	if _, err := db.Exec(ctx, TriggerSQL(channel)); err != nil {
		return fmt.Errorf("install cost trigger: %w", err)
	}
	return nil
}

// EnsureTrigger opens a short-lived connection to url and installs the
// trigger. The stale flagging works even when nobody listens on channel.
func EnsureTrigger(ctx context.Context, url, channel string) error {
	c, err := pgx.Connect(ctx, url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close(context.WithoutCancel(ctx))
	return InstallTrigger(ctx, c, channel)
}
