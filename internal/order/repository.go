package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/order"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
)

// Filter narrows a listing to a single status. Zero value means no filter.
type Filter struct {
	Status order.Status
}

// Page bounds a listing.
type Page struct {
	Offset int
	Limit  int
}

type Repository interface {
	Create(ctx context.Context, o *order.Order) (*order.Order, error)
	GetByID(ctx context.Context, id int) (*order.Order, error)
	List(ctx context.Context, ownerID int, f Filter, p Page) ([]*order.Order, error)
	Update(ctx context.Context, o *order.Order) (*order.Order, error)
	// UpdateStatus applies the transition only when the current status
	// matches from, and reports whether it was applied.
	UpdateStatus(ctx context.Context, id int, from, to order.Status) (bool, error)
	Delete(ctx context.Context, id int) error
	// SaveEvent records a status transition in the audit trail.
	SaveEvent(ctx context.Context, orderID int, from, to order.Status) error
	// StalePendingIDs returns ids of orders stuck in pending
	// longer than olderThan.
	StalePendingIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int, error)
}

type Repo struct {
	db     *sql.DB
	getter *trmsql.CtxGetter
	logger logger.Logger
}

func NewRepository(db *sql.DB, getter *trmsql.CtxGetter, logger logger.Logger) (*Repo, error) {
	if db == nil {
		return nil, errors.New("nil dependency: database")
	}
	if getter == nil {
		return nil, errors.New("nil dependency: transaction getter")
	}

	return &Repo{db: db, getter: getter, logger: logger}, nil
}

var _ Repository = (*Repo)(nil)

const orderColumns = "id, user_id, title, COALESCE(description, ''), amount, priority, status, created_at, updated_at"

func (r *Repo) Create(ctx context.Context, o *order.Order) (*order.Order, error) {
	const query = `
		INSERT INTO orders (user_id, title, description, amount, priority, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		RETURNING ` + orderColumns

	row := r.getter.DefaultTrOrDB(ctx, r.db).QueryRowContext(ctx, query,
		o.UserID, o.Title, o.Description, o.Amount, o.Priority, o.Status)

	return scanOrder(row)
}

func (r *Repo) GetByID(ctx context.Context, id int) (*order.Order, error) {
	const query = "SELECT " + orderColumns + " FROM orders WHERE id = $1"

	return scanOrder(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repo) List(ctx context.Context, ownerID int, f Filter, p Page) ([]*order.Order, error) {
	// Creation time descending; id breaks ties so the ordering is stable.
	const (
		queryAll = `
			SELECT ` + orderColumns + ` FROM orders
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $2 LIMIT $3`
		queryByStatus = `
			SELECT ` + orderColumns + ` FROM orders
			WHERE user_id = $1 AND status = $4
			ORDER BY created_at DESC, id DESC
			OFFSET $2 LIMIT $3`
	)

	var (
		rows *sql.Rows
		err  error
	)
	if f.Status == "" {
		rows, err = r.db.QueryContext(ctx, queryAll, ownerID, p.Offset, p.Limit)
	} else {
		rows, err = r.db.QueryContext(ctx, queryByStatus, ownerID, p.Offset, p.Limit, f.Status)
	}
	if err != nil {
		return nil, err
	}

	defer func() {
		if err = rows.Close(); err != nil {
			r.logger.Errorf("close rows: %s", err)
		}
	}()

	orders := make([]*order.Order, 0)

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	// Rows.Err will report the last error encountered by Rows.Scan.
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *Repo) Update(ctx context.Context, o *order.Order) (*order.Order, error) {
	const query = `
		UPDATE orders SET
			title = $2,
			description = NULLIF($3, ''),
			amount = $4,
			priority = $5,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	row := r.getter.DefaultTrOrDB(ctx, r.db).QueryRowContext(ctx, query,
		o.ID, o.Title, o.Description, o.Amount, o.Priority)

	return scanOrder(row)
}

// UpdateStatus is a precondition-checked write: the transition and its
// audit event commit atomically, and nothing happens when the current
// status no longer matches from.
func (r *Repo) UpdateStatus(ctx context.Context, id int, from, to order.Status) (bool, error) {
	const query = `
		WITH updated AS (
			UPDATE orders SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING id
		)
		INSERT INTO order_events (order_id, from_status, to_status)
		SELECT id, $2, $3 FROM updated
		RETURNING order_id`

	var orderID int

	err := r.getter.DefaultTrOrDB(ctx, r.db).
		QueryRowContext(ctx, query, id, from, to).Scan(&orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Precondition failed: the write is a no-op.
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *Repo) Delete(ctx context.Context, id int) error {
	const query = "DELETE FROM orders WHERE id = $1"

	res, err := r.getter.DefaultTrOrDB(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.ErrNotFound
	}

	return nil
}

func (r *Repo) SaveEvent(ctx context.Context, orderID int, from, to order.Status) error {
	const query = `
		INSERT INTO order_events (order_id, from_status, to_status)
		VALUES ($1, NULLIF($2, ''), $3)`

	_, err := r.getter.DefaultTrOrDB(ctx, r.db).
		ExecContext(ctx, query, orderID, from, to)

	return err
}

func (r *Repo) StalePendingIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int, error) {
	const query = `
		SELECT id FROM orders
		WHERE status = $1 AND updated_at < now() - make_interval(secs => $2)
		ORDER BY id
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query,
		order.StatusPending, olderThan.Seconds(), limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err = rows.Close(); err != nil {
			r.logger.Errorf("close rows: %s", err)
		}
	}()

	ids := make([]int, 0, limit)

	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*order.Order, error) {
	o := new(order.Order)

	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Title,
		&o.Description,
		&o.Amount,
		&o.Priority,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	return o, nil
}
