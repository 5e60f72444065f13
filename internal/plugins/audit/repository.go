package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/glassyams/ams/internal/database"
)

// Repository defines the data access contract for password change records.
// Insert takes a Querier so the row can be written inside the transaction
// that changes the credential.
type Repository interface {
	Insert(ctx context.Context, q database.Querier, req *PasswordChangeRequest) error
}

// repository implements Repository with MariaDB queries.
type repository struct{}

// NewRepository creates a new password change request repository.
func NewRepository() Repository {
	return &repository{}
}

// Insert appends a record and fills in its ID.
func (r *repository) Insert(ctx context.Context, q database.Querier, req *PasswordChangeRequest) error {
	query := `INSERT INTO password_change_requests
	              (user_id, changed_by, request_type, status, ip_address, notes, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx, query,
		req.UserID, req.ChangedBy, req.RequestType, req.Status,
		req.IPAddress, req.Notes, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting password change request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting password change request id: %w", err)
	}
	req.ID = id

	return nil
}
