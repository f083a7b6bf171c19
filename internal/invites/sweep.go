package invites

import (
	"context"
	"fmt"

	"github.com/crewbasehq/crewbase/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RunExpirySweep dismisses pending invitations past their expiry and cleans
// up any placeholder identities they pre-created. Runs from the daily cron.
func RunExpirySweep(ctx context.Context, db store.DB) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		UPDATE invitations
		SET status = 'DISMISSED', resolved_at = NOW()
		WHERE status = 'PENDING'
		  AND expires_at <= NOW()
		RETURNING id, org_id, email
	`)
	if err != nil {
		return fmt.Errorf("failed to dismiss expired invitations: %w", err)
	}

	type expired struct {
		id    uuid.UUID
		orgID uuid.UUID
		email string
	}
	var dismissed []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.orgID, &e.email); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan expired invitation: %w", err)
		}
		dismissed = append(dismissed, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating expired invitations: %w", err)
	}
	rows.Close()

	for _, e := range dismissed {
		if err := cleanupPlaceholder(ctx, tx, e.orgID, e.email); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(dismissed) > 0 {
		log.Info().Int("count", len(dismissed)).Msg("Dismissed expired invitations")
	}

	return nil
}
