package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/voteboard/internal/apperror"
	"github.com/sakif/voteboard/internal/model"
	"github.com/sakif/voteboard/internal/repository"
)

var _ repository.HelpRepository = (*HelpDB)(nil)

// HelpDB stores the help queue.
type HelpDB struct {
	conn *sql.DB
}

func (h *HelpDB) Create(ctx context.Context, entry *model.HelpEntry) error {
	entry.CreatedAt = time.Now().UTC()

	res, err := h.conn.ExecContext(ctx,
		`INSERT INTO help (username, created_at) VALUES (?, ?)`,
		entry.Username, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting help request for %q: %w", entry.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading help request id: %w", err)
	}
	entry.ID = id
	return nil
}

// List returns every open entry, oldest first.
func (h *HelpDB) List(ctx context.Context) ([]model.HelpEntry, error) {
	rows, err := h.conn.QueryContext(ctx,
		`SELECT id, username, created_at FROM help ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing help requests: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty queue encodes as [] rather than null.
	entries := []model.HelpEntry{}
	for rows.Next() {
		var e model.HelpEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning help request: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating help requests: %w", err)
	}
	return entries, nil
}

// Delete removes one entry; apperror.ErrNotFound if id is unknown.
func (h *HelpDB) Delete(ctx context.Context, id int64) error {
	res, err := h.conn.ExecContext(ctx, `DELETE FROM help WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting help request %d: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("help request", strconv.FormatInt(id, 10))
	}
	return nil
}

func (h *HelpDB) DeleteAll(ctx context.Context) (int64, error) {
	res, err := h.conn.ExecContext(ctx, `DELETE FROM help`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: clearing help requests: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
