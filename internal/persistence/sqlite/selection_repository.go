package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/conference-companion/internal/persistence"
)

// SelectionRepository implements persistence.SelectionRepository.
type SelectionRepository struct {
	pool   *ConnectionPool
	retry  *RetryHelper
	mapper *ErrorMapper
}

// NewSelectionRepository creates a selection repository on pool.
func NewSelectionRepository(pool *ConnectionPool, retry *RetryHelper) *SelectionRepository {
	return &SelectionRepository{pool: pool, retry: retry, mapper: NewErrorMapper()}
}

// CreateSelection inserts a document; the owner_id UNIQUE constraint turns a
// concurrent second insert into persistence.ErrDuplicate.
func (r *SelectionRepository) CreateSelection(ctx context.Context, selection persistence.Selection) error {
	if selection.FeedID == "" || selection.OwnerID == "" {
		return persistence.ErrConstraintViolation
	}
	ids, err := encodeEventIDs(selection.SelectedEventIDs)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO selections (feed_id, owner_id, selected_event_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx, query,
			selection.FeedID,
			selection.OwnerID,
			ids,
			formatTime(selection.CreatedAt),
			formatTime(selection.UpdatedAt),
		)
		return err
	})
}

// GetSelectionByFeedID retrieves a document by feed id.
func (r *SelectionRepository) GetSelectionByFeedID(ctx context.Context, feedID string) (persistence.Selection, error) {
	const query = `
		SELECT feed_id, owner_id, selected_event_ids, created_at, updated_at
		FROM selections WHERE feed_id = ?`
	return r.scanSelection(r.pool.DB().QueryRowContext(ctx, query, feedID))
}

// GetSelectionByOwner retrieves the document owned by ownerID.
func (r *SelectionRepository) GetSelectionByOwner(ctx context.Context, ownerID string) (persistence.Selection, error) {
	const query = `
		SELECT feed_id, owner_id, selected_event_ids, created_at, updated_at
		FROM selections WHERE owner_id = ?`
	return r.scanSelection(r.pool.DB().QueryRowContext(ctx, query, ownerID))
}

// ReplaceSelectedEvents overwrites the selection of the document matching
// both feed id and owner.
func (r *SelectionRepository) ReplaceSelectedEvents(ctx context.Context, feedID, ownerID string, eventIDs []string, updatedAt time.Time) error {
	ids, err := encodeEventIDs(eventIDs)
	if err != nil {
		return err
	}
	const query = `
		UPDATE selections SET selected_event_ids = ?, updated_at = ?
		WHERE feed_id = ? AND owner_id = ?`
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query, ids, formatTime(updatedAt), feedID, ownerID)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// DeleteSelection removes the document matching both feed id and owner.
func (r *SelectionRepository) DeleteSelection(ctx context.Context, feedID, ownerID string) error {
	const query = `DELETE FROM selections WHERE feed_id = ? AND owner_id = ?`
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query, feedID, ownerID)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

func (r *SelectionRepository) scanSelection(row *sql.Row) (persistence.Selection, error) {
	var (
		selection            persistence.Selection
		ids, created, update string
	)
	if err := row.Scan(&selection.FeedID, &selection.OwnerID, &ids, &created, &update); err != nil {
		return persistence.Selection{}, r.mapper.MapError(err)
	}
	if err := json.Unmarshal([]byte(ids), &selection.SelectedEventIDs); err != nil {
		return persistence.Selection{}, fmt.Errorf("sqlite: decode selected event ids: %w", err)
	}
	if selection.SelectedEventIDs == nil {
		selection.SelectedEventIDs = []string{}
	}
	var err error
	if selection.CreatedAt, err = parseTime(created); err != nil {
		return persistence.Selection{}, err
	}
	if selection.UpdatedAt, err = parseTime(update); err != nil {
		return persistence.Selection{}, err
	}
	return selection, nil
}

func encodeEventIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode selected event ids: %w", err)
	}
	return string(data), nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
