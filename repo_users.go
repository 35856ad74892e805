package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users persists account records.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	// Register creates the account. The first account ever created claims
	// the bootstrap guard row and becomes admin; later accounts default to
	// the normal role unless one was set explicitly by the caller.
	Register(ctx context.Context, record *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	Update(ctx context.Context, record *User) (*User, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)

	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	ListAll(ctx context.Context) ([]*User, error)
	ListAllTx(ctx context.Context, tx bun.IDB) ([]*User, error)
}

type users struct {
	repo repository.Repository[*User]
	db   *bun.DB
}

var _ Users = (*users)(nil)

// NewUsersRepository creates the bun-backed Users repository.
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		repo: repo,
		db:   db,
	}
}

func (r *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	if tx == nil {
		tx = r.db
	}

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.GetByEmailTx(ctx, r.db, email)
}

func (r *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	if tx == nil {
		tx = r.db
	}

	email = strings.TrimSpace(strings.ToLower(email))

	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *users) Register(ctx context.Context, record *User) (*User, error) {
	return r.RegisterTx(ctx, r.db, record)
}

func (r *users) RegisterTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if tx == nil {
		tx = r.db
	}

	prepareAccountDefaults(record)

	claimed, err := r.claimBootstrapTx(ctx, tx, record.ID)
	if err != nil {
		return nil, err
	}

	if record.Role == "" {
		if claimed {
			record.Role = RoleAdmin
		} else {
			record.Role = RoleUser
		}
	}

	return r.repo.CreateTx(ctx, tx, record)
}

func (r *users) Update(ctx context.Context, record *User) (*User, error) {
	return r.UpdateTx(ctx, r.db, record)
}

func (r *users) UpdateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if tx == nil {
		tx = r.db
	}
	return r.repo.UpdateTx(ctx, tx, record, repository.UpdateByID(record.ID.String()))
}

func (r *users) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.DeleteByIDTx(ctx, r.db, id)
}

func (r *users) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if tx == nil {
		tx = r.db
	}

	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (r *users) ListAll(ctx context.Context) ([]*User, error) {
	return r.ListAllTx(ctx, r.db)
}

func (r *users) ListAllTx(ctx context.Context, tx bun.IDB) ([]*User, error) {
	if tx == nil {
		tx = r.db
	}

	var records []*User
	err := tx.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// claimBootstrapTx attempts the conditional insert of the single reserved
// guard row. It reports true only for the caller that won the insert.
func (r *users) claimBootstrapTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (bool, error) {
	guard := &BootstrapGuard{
		ID:     bootstrapGuardID,
		UserID: userID,
	}

	res, err := tx.NewInsert().
		Model(guard).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func prepareAccountDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = strings.TrimSpace(strings.ToLower(record.Email))
	record.EnsureDefaults()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
