package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

func (s *Service) CreateDebt(ctx context.Context, req domain.DebtCreateRequest) (domain.Debt, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Debt{}, err
	}
	title := strings.TrimSpace(req.Title)
	reason := strings.TrimSpace(req.Reason)
	if title == "" || reason == "" {
		return domain.Debt{}, invalid("title and reason are required")
	}
	if req.Amount < 0 {
		return domain.Debt{}, invalid("amount must not be negative")
	}

	now := s.now().UTC()
	created, err := s.repo.CreateDebt(ctx, domain.Debt{
		ID:        uuid.NewString(),
		Title:     title,
		Amount:    req.Amount,
		Reason:    reason,
		IssuerID:  actor.ID,
		Status:    domain.DebtStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Debt{}, err
	}
	s.audit(ctx, "debt_create", created.ID, zap.Int64("amount", created.Amount))
	return *created, nil
}

// ListDebts shows admins every debt and agents only their own.
func (s *Service) ListDebts(ctx context.Context) ([]domain.Debt, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	issuer := actor.ID
	if actor.Role == domain.RoleAdmin {
		issuer = ""
	}
	return s.repo.ListDebts(ctx, issuer)
}

func (s *Service) UpdateDebtStatus(ctx context.Context, id string, req domain.DebtStatusRequest) (domain.Debt, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Debt{}, err
	}
	status := normalizeDebtStatus(req.Status)
	if status == "" {
		return domain.Debt{}, invalid("status must be Pending, Paid or Rejected")
	}

	debt, err := s.repo.GetDebt(ctx, id)
	if err != nil {
		return domain.Debt{}, notFoundAs(err, ErrDebtNotFound)
	}
	isAdmin := actor.Role == domain.RoleAdmin
	if !isAdmin && debt.IssuerID != actor.ID {
		return domain.Debt{}, store.ErrForbidden
	}
	if status == domain.DebtStatusRejected && !isAdmin {
		return domain.Debt{}, errAdminRequired
	}

	updated, err := s.repo.UpdateDebtStatus(ctx, debt.ID, status, s.now().UTC())
	if err != nil {
		return domain.Debt{}, notFoundAs(err, ErrDebtNotFound)
	}
	s.audit(ctx, "debt_status", updated.ID, zap.String("status", status))
	return *updated, nil
}

func normalizeDebtStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "pending":
		return domain.DebtStatusPending
	case "paid":
		return domain.DebtStatusPaid
	case "rejected":
		return domain.DebtStatusRejected
	default:
		return ""
	}
}
