package accounts

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens persists token records. DeleteByID has delete-if-present semantics:
// it is a single conditional statement and reports whether a row was removed,
// which is what makes token consumption at-most-once under races.
type Tokens interface {
	GetByValue(ctx context.Context, value string) (*Token, error)
	GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*Token, error)
	Create(ctx context.Context, record *Token) (*Token, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Token) (*Token, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	DeleteAllByOwnerAndType(ctx context.Context, ownerID uuid.UUID, typ TokenType) (int64, error)
	DeleteAllByOwnerAndTypeTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, typ TokenType) (int64, error)
	DeleteAllByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error)
	DeleteAllByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) (int64, error)
}

type tokens struct {
	db *bun.DB
}

var _ Tokens = (*tokens)(nil)

// NewTokensRepository creates the bun-backed Tokens repository.
func NewTokensRepository(db *bun.DB) Tokens {
	return &tokens{db: db}
}

func (r *tokens) GetByValue(ctx context.Context, value string) (*Token, error) {
	return r.GetByValueTx(ctx, r.db, value)
}

func (r *tokens) GetByValueTx(ctx context.Context, tx bun.IDB, value string) (*Token, error) {
	if tx == nil {
		tx = r.db
	}

	record := &Token{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.value = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (r *tokens) Create(ctx context.Context, record *Token) (*Token, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *tokens) CreateTx(ctx context.Context, tx bun.IDB, record *Token) (*Token, error) {
	if tx == nil {
		tx = r.db
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (r *tokens) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.DeleteByIDTx(ctx, r.db, id)
}

func (r *tokens) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if tx == nil {
		tx = r.db
	}

	res, err := tx.NewDelete().
		Model((*Token)(nil)).
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

func (r *tokens) DeleteAllByOwnerAndType(ctx context.Context, ownerID uuid.UUID, typ TokenType) (int64, error) {
	return r.DeleteAllByOwnerAndTypeTx(ctx, r.db, ownerID, typ)
}

func (r *tokens) DeleteAllByOwnerAndTypeTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID, typ TokenType) (int64, error) {
	if tx == nil {
		tx = r.db
	}

	res, err := tx.NewDelete().
		Model((*Token)(nil)).
		Where("?TableAlias.user_id = ? AND ?TableAlias.token_type = ?", ownerID, typ).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *tokens) DeleteAllByOwner(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	return r.DeleteAllByOwnerTx(ctx, r.db, ownerID)
}

// DeleteAllByOwnerTx removes every token for the owner regardless of type.
// Account deletion calls this in the same transaction so tokens never outlive
// their account.
func (r *tokens) DeleteAllByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) (int64, error) {
	if tx == nil {
		tx = r.db
	}

	res, err := tx.NewDelete().
		Model((*Token)(nil)).
		Where("?TableAlias.user_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
