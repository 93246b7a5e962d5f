package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/internal/resilience"
)

// ApprovalRepository stores WhatsApp approval requests. Resolution is
// a CAS on the pending status, so duplicate webhook deliveries and
// racing replies collapse into a single effective answer.
type ApprovalRepository struct {
	db    *sqlx.DB
	retry resilience.RetryPolicy
}

func NewApprovalRepository(db *sqlx.DB, retryCfg environments.RetryConfig) *ApprovalRepository {
	policy := resilience.NewRetryPolicy(retryCfg)
	policy.Classify = RetryableStorageError

	return &ApprovalRepository{db: db, retry: policy}
}

const approvalColumns = `id, target_id, contact_phone, status, response_message, responded_at, expires_at, created_at`

func (r *ApprovalRepository) CreateApprovalRequest(
	ctx context.Context,
	targetID int64,
	contactPhone string,
	expiresAt time.Time,
) (*domain.ApprovalRequest, error) {
	var id int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			"INSERT INTO approval_requests (target_id, contact_phone, expires_at) VALUES (?, ?, ?)",
			targetID, contactPhone, expiresAt,
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}

	return r.GetApprovalRequest(ctx, id)
}

func (r *ApprovalRepository) GetApprovalRequest(ctx context.Context, id int64) (*domain.ApprovalRequest, error) {
	var request domain.ApprovalRequest
	query := "SELECT " + approvalColumns + " FROM approval_requests WHERE id = ?"

	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}

	return &request, nil
}

// GetOpenApprovalByContact returns the oldest unexpired pending request
// for a reviewer phone. Replies are matched against this request.
func (r *ApprovalRepository) GetOpenApprovalByContact(ctx context.Context, contactPhone string, now time.Time) (*domain.ApprovalRequest, error) {
	var request domain.ApprovalRequest
	query := "SELECT " + approvalColumns + ` FROM approval_requests
		WHERE contact_phone = ? AND status = 'pending' AND expires_at > ?
		ORDER BY created_at ASC
		LIMIT 1`

	if err := r.db.GetContext(ctx, &request, query, contactPhone, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open approval request: %w", err)
	}

	return &request, nil
}

func (r *ApprovalRepository) GetOpenApprovalByTarget(ctx context.Context, targetID int64) (*domain.ApprovalRequest, error) {
	var request domain.ApprovalRequest
	query := "SELECT " + approvalColumns + ` FROM approval_requests
		WHERE target_id = ? AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1`

	if err := r.db.GetContext(ctx, &request, query, targetID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open approval request: %w", err)
	}

	return &request, nil
}

// ResolveApproval records the reviewer's answer. Only a pending
// request can be resolved; a false return means it was already
// resolved or expired and the caller should treat the reply as a
// duplicate.
func (r *ApprovalRepository) ResolveApproval(
	ctx context.Context,
	id int64,
	status domain.ApprovalStatus,
	responseMessage string,
	respondedAt time.Time,
) (bool, error) {
	var resolved bool

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`UPDATE approval_requests
			SET status = ?, response_message = ?, responded_at = ?
			WHERE id = ? AND status = 'pending'`,
			status, responseMessage, respondedAt, id,
		)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		resolved = rows > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to resolve approval request: %w", err)
	}

	return resolved, nil
}

// ExpireLapsedApprovals lapses pending requests past their deadline
// and cancels the targets still waiting on them.
func (r *ApprovalRepository) ExpireLapsedApprovals(ctx context.Context, now time.Time) (int64, error) {
	var expired int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			"UPDATE approval_requests SET status = 'expired' WHERE status = 'pending' AND expires_at <= ?",
			now,
		)
		if err != nil {
			return err
		}
		expired, err = result.RowsAffected()
		if err != nil {
			return err
		}
		if expired == 0 {
			return nil
		}

		_, err = r.db.ExecContext(ctx,
			`UPDATE publish_targets t
			JOIN approval_requests a ON a.target_id = t.id
			SET t.status = 'cancelled', t.last_error = 'approval request expired', t.updated_at = CURRENT_TIMESTAMP
			WHERE a.status = 'expired' AND t.status = 'awaiting_approval'`,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire approval requests: %w", err)
	}

	return expired, nil
}

// ExpireOpenApprovalsForPost closes every pending request attached to
// a post's targets, used when the post is cancelled.
func (r *ApprovalRepository) ExpireOpenApprovalsForPost(ctx context.Context, postID int64) (int64, error) {
	var expired int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`UPDATE approval_requests a
			JOIN publish_targets t ON a.target_id = t.id
			SET a.status = 'expired'
			WHERE t.post_id = ? AND a.status = 'pending'`,
			postID,
		)
		if err != nil {
			return err
		}
		expired, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire approval requests for post: %w", err)
	}

	return expired, nil
}
