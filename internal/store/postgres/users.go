package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Email: r.Email, PasswordHash: r.PasswordHash, Role: r.Role, CreatedAt: r.CreatedAt.UTC()}
}

type debtRow struct {
	ID        string    `db:"id"`
	Title     string    `db:"title"`
	Amount    int64     `db:"amount"`
	Reason    string    `db:"reason"`
	IssuerID  string    `db:"issuer_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r debtRow) toDomain() domain.Debt {
	return domain.Debt{
		ID:        r.ID,
		Title:     r.Title,
		Amount:    r.Amount,
		Reason:    r.Reason,
		IssuerID:  r.IssuerID,
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES (:id, :email, :password_hash, :role, :created_at)
	`, userRow{ID: user.ID, Email: user.Email, PasswordHash: user.PasswordHash, Role: user.Role, CreatedAt: user.CreatedAt})
	if err != nil {
		return nil, classify(err)
	}
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, email, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, query string, arg string) (*domain.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	user := row.toDomain()
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, email, password_hash, role, created_at FROM users ORDER BY email
	`); err != nil {
		return nil, classify(err)
	}
	users := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.ID == "" {
		debt.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO debts (id, title, amount, reason, issuer_id, status, created_at, updated_at)
		VALUES (:id, :title, :amount, :reason, :issuer_id, :status, :created_at, :updated_at)
	`, debtRow{
		ID:        debt.ID,
		Title:     debt.Title,
		Amount:    debt.Amount,
		Reason:    debt.Reason,
		IssuerID:  debt.IssuerID,
		Status:    debt.Status,
		CreatedAt: debt.CreatedAt,
		UpdatedAt: debt.UpdatedAt,
	})
	if err != nil {
		return nil, classify(err)
	}
	created := debt
	return &created, nil
}

func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	var row debtRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, title, amount, reason, issuer_id, status, created_at, updated_at
		FROM debts WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	debt := row.toDomain()
	return &debt, nil
}

func (s *Store) ListDebts(ctx context.Context, issuerID string) ([]domain.Debt, error) {
	var rows []debtRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, title, amount, reason, issuer_id, status, created_at, updated_at
		FROM debts
		WHERE $1 = '' OR issuer_id = $1
		ORDER BY created_at DESC
	`, issuerID)
	if err != nil {
		return nil, classify(err)
	}
	debts := make([]domain.Debt, 0, len(rows))
	for _, r := range rows {
		debts = append(debts, r.toDomain())
	}
	return debts, nil
}

func (s *Store) UpdateDebtStatus(ctx context.Context, id, status string, at time.Time) (*domain.Debt, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE debts SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return nil, classify(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetDebt(ctx, id)
}
