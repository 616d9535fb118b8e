package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ashevelev/order-platform-service/internal/models/errs"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	trmsql "github.com/avito-tech/go-transaction-manager/drivers/sql/v2"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository interface {
	GetUserByID(ctx context.Context, userID int) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	CreateUser(ctx context.Context, email, password, name string) (id int, err error)
	// CreateElevatedUser inserts an account with the elevated role.
	CreateElevatedUser(ctx context.Context, email, password, name string) (id int, err error)
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

func (r *Repo) GetUserByID(ctx context.Context, userID int) (*user.User, error) {
	const query = `
		SELECT id, email, name, password, role, active, created_at, updated_at
		FROM users WHERE id = $1`

	return r.scanUser(r.db.QueryRowContext(ctx, query, userID))
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	const query = `
		SELECT id, email, name, password, role, active, created_at, updated_at
		FROM users WHERE email = $1`

	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *Repo) CreateUser(ctx context.Context, email, password, name string) (int, error) {
	const query = `
		INSERT INTO users (email, password, name)
		VALUES ($1, $2, $3) RETURNING id`

	var id int

	err := r.getter.DefaultTrOrDB(ctx, r.db).
		QueryRowContext(ctx, query, email, password, name).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return -1, errs.ErrDataConflict
			}
		}
		return -1, fmt.Errorf("create user: %w", err)
	}

	return id, nil
}

func (r *Repo) CreateElevatedUser(ctx context.Context, email, password, name string) (int, error) {
	const query = `
		INSERT INTO users (email, password, name, role)
		VALUES ($1, $2, $3, $4) RETURNING id`

	var id int

	err := r.getter.DefaultTrOrDB(ctx, r.db).
		QueryRowContext(ctx, query, email, password, name, user.RoleElevated).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.UniqueViolation {
				return -1, errs.ErrDataConflict
			}
		}
		return -1, fmt.Errorf("create elevated user: %w", err)
	}

	return id, nil
}

func (r *Repo) scanUser(row *sql.Row) (*user.User, error) {
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
