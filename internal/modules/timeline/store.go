// README: Timeline store backed by PostgreSQL; appends share the caller's transaction.
package timeline

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtrans/internal/types"
)

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Append inserts e using q, which is normally the transaction that applied the change.
func (s *Store) Append(ctx context.Context, q Execer, e *Entry) error {
	var actorID *string
	if e.ActorID != "" {
		v := string(e.ActorID)
		actorID = &v
	}
	_, err := q.Exec(ctx, `
		INSERT INTO booking_timeline (booking_id, event_type, actor_id, actor_kind, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.BookingID,
		string(e.EventType),
		actorID,
		string(e.ActorKind),
		e.Message,
		e.CreatedAt,
	)
	return err
}

func (s *Store) List(ctx context.Context, bookingID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, event_type, actor_id, actor_kind, message, created_at
		FROM booking_timeline
		WHERE booking_id = $1
		ORDER BY created_at, id`, bookingID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var actorID *string
		err := row.Scan(&e.ID, &e.BookingID, &e.EventType, &actorID, &e.ActorKind, &e.Message, &e.CreatedAt)
		if actorID != nil {
			e.ActorID = types.ID(*actorID)
		}
		return e, err
	})
}
