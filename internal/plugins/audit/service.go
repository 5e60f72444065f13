package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glassyams/ams/internal/database"
	"github.com/glassyams/ams/internal/sanitize"
)

// Service validates and records password change requests.
type Service interface {
	// Record writes req using q, which is normally the transaction that
	// updates the credential. An error must abort that transaction.
	Record(ctx context.Context, q database.Querier, req *PasswordChangeRequest) error
}

// service implements Service.
type service struct {
	repo Repository
}

// NewService creates a new audit service with the given repository.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Record validates required fields, normalizes the note and persists the row.
func (s *service) Record(ctx context.Context, q database.Querier, req *PasswordChangeRequest) error {
	if req.UserID <= 0 {
		return fmt.Errorf("password change request: user id is required")
	}
	if req.ChangedBy <= 0 {
		return fmt.Errorf("password change request: actor id is required")
	}
	switch req.RequestType {
	case TypeSelfService, TypeAdminReset:
	default:
		return fmt.Errorf("password change request: unknown type %q", req.RequestType)
	}
	if req.Status == "" {
		req.Status = StatusCompleted
	}
	req.Notes = sanitize.Truncate(sanitize.Text(req.Notes), maxNoteLength)

	if err := s.repo.Insert(ctx, q, req); err != nil {
		return err
	}

	slog.Info("password change recorded",
		slog.Int64("id", req.ID),
		slog.Int64("user_id", req.UserID),
		slog.Int64("changed_by", req.ChangedBy),
		slog.String("type", req.RequestType),
	)
	return nil
}
