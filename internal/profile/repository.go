package profile

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
)

type Repository interface {
	// UpdateProfile overwrites the display name and/or the password hash.
	// Nil fields stay untouched.
	UpdateProfile(ctx context.Context, userID int, name, password *string) (*user.User, error)
	List(ctx context.Context, offset, limit int) ([]*user.User, error)
	// Deactivate flips the active flag off; users are never hard-deleted.
	Deactivate(ctx context.Context, userID int) (*user.User, error)
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

const userColumns = "id, email, name, password, role, active, created_at, updated_at"

func (r *Repo) UpdateProfile(ctx context.Context, userID int, name, password *string) (*user.User, error) {
	const query = `
		UPDATE users SET
			name = COALESCE($2, name),
			password = COALESCE($3, password),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	row := r.getter.DefaultTrOrDB(ctx, r.db).
		QueryRowContext(ctx, query, userID, name, password)

	return scanUser(row)
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]*user.User, error) {
	const query = `
		SELECT ` + userColumns + ` FROM users
		ORDER BY id
		OFFSET $1 LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err = rows.Close(); err != nil {
			r.logger.Errorf("close rows: %s", err)
		}
	}()

	users := make([]*user.User, 0)

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *Repo) Deactivate(ctx context.Context, userID int) (*user.User, error) {
	const query = `
		UPDATE users SET active = FALSE, updated_at = now()
		WHERE id = $1
		RETURNING ` + userColumns

	row := r.getter.DefaultTrOrDB(ctx, r.db).QueryRowContext(ctx, query, userID)

	return scanUser(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*user.User, error) {
	u := new(user.User)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Password,
		&u.Role,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	return u, nil
}
