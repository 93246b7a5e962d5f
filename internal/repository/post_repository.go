package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/internal/resilience"
)

// PostRepository is the persisted post store. Every status transition
// is a compare-and-set UPDATE guarded by the expected prior status, so
// the scheduler, executor and webhook handler can never act on a stale
// read. Writes run under the storage retry policy, which treats MySQL
// lock contention as retryable.
type PostRepository struct {
	db    *sqlx.DB
	retry resilience.RetryPolicy
}

func NewPostRepository(db *sqlx.DB, retryCfg environments.RetryConfig) *PostRepository {
	policy := resilience.NewRetryPolicy(retryCfg)
	policy.Classify = RetryableStorageError

	return &PostRepository{db: db, retry: policy}
}

// RetryableStorageError classifies database failures for the storage
// retry policy: deadlocks, lock wait timeouts and dropped connections
// are worth another attempt, everything else is not.
func RetryableStorageError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1205, 1213: // lock wait timeout, deadlock
			return true
		}
		return false
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
}

const targetColumns = `id, post_id, platform, scheduled_at, status, attempt_count,
	last_error, platform_post_id, published_at, created_at, updated_at`

func (r *PostRepository) CreatePost(ctx context.Context, title, caption, mediaURL string) (*domain.Post, error) {
	var id int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			"INSERT INTO posts (title, caption, media_url) VALUES (?, ?, ?)",
			title, caption, mediaURL,
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return r.GetPost(ctx, id)
}

func (r *PostRepository) CreateTarget(
	ctx context.Context,
	postID int64,
	platform string,
	scheduledAt time.Time,
	status domain.TargetStatus,
) (*domain.PublishTarget, error) {
	var id int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			"INSERT INTO publish_targets (post_id, platform, scheduled_at, status) VALUES (?, ?, ?, ?)",
			postID, platform, scheduledAt, status,
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create publish target: %w", err)
	}

	return r.GetTarget(ctx, id)
}

func (r *PostRepository) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	var post domain.Post
	query := "SELECT id, title, caption, media_url, created_at, updated_at FROM posts WHERE id = ?"

	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	targets, err := r.GetTargetsByPost(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Targets = targets

	return &post, nil
}

func (r *PostRepository) GetPosts(ctx context.Context, page, pageSize int) ([]domain.Post, int64, error) {
	offset := (page - 1) * pageSize

	var totalCount int64
	if err := r.db.GetContext(ctx, &totalCount, "SELECT COUNT(*) FROM posts"); err != nil {
		return nil, 0, fmt.Errorf("failed to count posts: %w", err)
	}

	var posts []domain.Post
	query := `
		SELECT id, title, caption, media_url, created_at, updated_at
		FROM posts
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	if err := r.db.SelectContext(ctx, &posts, query, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to get posts: %w", err)
	}

	return posts, totalCount, nil
}

func (r *PostRepository) GetTarget(ctx context.Context, id int64) (*domain.PublishTarget, error) {
	var target domain.PublishTarget
	query := "SELECT " + targetColumns + " FROM publish_targets WHERE id = ?"

	if err := r.db.GetContext(ctx, &target, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get publish target: %w", err)
	}

	return &target, nil
}

func (r *PostRepository) GetTargetsByPost(ctx context.Context, postID int64) ([]domain.PublishTarget, error) {
	var targets []domain.PublishTarget
	query := "SELECT " + targetColumns + " FROM publish_targets WHERE post_id = ? ORDER BY scheduled_at ASC"

	if err := r.db.SelectContext(ctx, &targets, query, postID); err != nil {
		return nil, fmt.Errorf("failed to get publish targets: %w", err)
	}

	return targets, nil
}

func (r *PostRepository) GetTargets(
	ctx context.Context,
	status *domain.TargetStatus,
	page, pageSize int,
) ([]domain.PublishTarget, int64, error) {
	offset := (page - 1) * pageSize
	var totalCount int64
	var targets []domain.PublishTarget

	if status != nil {
		countQuery := "SELECT COUNT(*) FROM publish_targets WHERE status = ?"
		if err := r.db.GetContext(ctx, &totalCount, countQuery, *status); err != nil {
			return nil, 0, fmt.Errorf("failed to count publish targets: %w", err)
		}

		query := "SELECT " + targetColumns + ` FROM publish_targets
			WHERE status = ? ORDER BY scheduled_at DESC LIMIT ? OFFSET ?`
		if err := r.db.SelectContext(ctx, &targets, query, *status, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get publish targets: %w", err)
		}
	} else {
		countQuery := "SELECT COUNT(*) FROM publish_targets"
		if err := r.db.GetContext(ctx, &totalCount, countQuery); err != nil {
			return nil, 0, fmt.Errorf("failed to count publish targets: %w", err)
		}

		query := "SELECT " + targetColumns + ` FROM publish_targets
			ORDER BY scheduled_at DESC LIMIT ? OFFSET ?`
		if err := r.db.SelectContext(ctx, &targets, query, pageSize, offset); err != nil {
			return nil, 0, fmt.Errorf("failed to get publish targets: %w", err)
		}
	}

	return targets, totalCount, nil
}

// GetDueTargets returns pending targets whose schedule time has
// arrived. Targets awaiting approval never have status pending, so the
// query skips them by construction.
func (r *PostRepository) GetDueTargets(ctx context.Context, now time.Time, limit int) ([]domain.PublishTarget, error) {
	var targets []domain.PublishTarget
	query := "SELECT " + targetColumns + ` FROM publish_targets
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT ?`

	if err := r.db.SelectContext(ctx, &targets, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to get due targets: %w", err)
	}

	return targets, nil
}

// transition performs one CAS status update. It reports false when the
// row no longer holds the expected status, which callers treat as
// "someone else already acted on this target".
func (r *PostRepository) transition(ctx context.Context, query string, args ...any) (bool, error) {
	var claimed bool

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		claimed = rows > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to transition target: %w", err)
	}

	return claimed, nil
}

// ClaimTarget moves pending -> queued. Only one scheduler tick can win
// the claim, which keeps overlapping ticks from double-submitting.
func (r *PostRepository) ClaimTarget(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx,
		"UPDATE publish_targets SET status = 'queued', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'",
		id,
	)
}

// ReleaseTarget undoes a claim when the executor queue is full.
func (r *PostRepository) ReleaseTarget(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx,
		"UPDATE publish_targets SET status = 'pending', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'queued'",
		id,
	)
}

func (r *PostRepository) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx,
		"UPDATE publish_targets SET status = 'publishing', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'queued'",
		id,
	)
}

// MarkPublished records a successful dispatch. A false return means
// the target left publishing (cancelled mid-flight) and the result
// must be discarded.
func (r *PostRepository) MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) (bool, error) {
	return r.transition(ctx,
		`UPDATE publish_targets
		SET status = 'published', platform_post_id = ?, published_at = ?, last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'publishing'`,
		platformPostID, publishedAt, id,
	)
}

// RescheduleTarget defers a failed target back to the scheduler for a
// later outer-level attempt.
func (r *PostRepository) RescheduleTarget(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) (bool, error) {
	return r.transition(ctx,
		`UPDATE publish_targets
		SET status = 'pending', scheduled_at = ?, attempt_count = attempt_count + 1, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'publishing'`,
		nextAttemptAt, lastError, id,
	)
}

func (r *PostRepository) MarkFailed(ctx context.Context, id int64, lastError string) (bool, error) {
	return r.transition(ctx,
		`UPDATE publish_targets
		SET status = 'failed', attempt_count = attempt_count + 1, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'publishing'`,
		lastError, id,
	)
}

func (r *PostRepository) SetAwaitingApproval(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx,
		"UPDATE publish_targets SET status = 'awaiting_approval', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'pending'",
		id,
	)
}

// ApproveTarget feeds an approved target back into the normal
// pending -> queued -> published flow.
func (r *PostRepository) ApproveTarget(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx,
		"UPDATE publish_targets SET status = 'pending', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'awaiting_approval'",
		id,
	)
}

func (r *PostRepository) RejectTarget(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx,
		"UPDATE publish_targets SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = 'awaiting_approval'",
		id,
	)
}

// CancelPostTargets marks every non-terminal target of a post
// cancelled and returns how many were affected.
func (r *PostRepository) CancelPostTargets(ctx context.Context, postID int64) (int64, error) {
	var cancelled int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`UPDATE publish_targets
			SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
			WHERE post_id = ? AND status IN ('pending', 'awaiting_approval', 'queued', 'publishing')`,
			postID,
		)
		if err != nil {
			return err
		}
		cancelled, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cancel post targets: %w", err)
	}

	return cancelled, nil
}

// RequeueStuck resets targets left queued or publishing by a crashed
// run so the next tick can pick them up again. Called once at boot.
func (r *PostRepository) RequeueStuck(ctx context.Context) (int64, error) {
	var requeued int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			"UPDATE publish_targets SET status = 'pending', updated_at = CURRENT_TIMESTAMP WHERE status IN ('queued', 'publishing')",
		)
		if err != nil {
			return err
		}
		requeued, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stuck targets: %w", err)
	}

	return requeued, nil
}

func (r *PostRepository) ReplayFailedTarget(ctx context.Context, id int64) error {
	ok, err := r.transition(ctx,
		`UPDATE publish_targets
		SET status = 'pending', attempt_count = 0, last_error = NULL, platform_post_id = NULL,
			scheduled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'failed'`,
		id,
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no failed target found with id %d", id)
	}
	return nil
}

func (r *PostRepository) ReplayAllFailed(ctx context.Context) (int64, error) {
	var replayed int64

	err := r.retry.Do(ctx, func(ctx context.Context) error {
		result, err := r.db.ExecContext(ctx,
			`UPDATE publish_targets
			SET status = 'pending', attempt_count = 0, last_error = NULL, platform_post_id = NULL,
				scheduled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
			WHERE status = 'failed'`,
		)
		if err != nil {
			return err
		}
		replayed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replay failed targets: %w", err)
	}

	return replayed, nil
}

// TargetStats counts targets by status for the dashboard.
type TargetStats struct {
	Pending          int64 `db:"pending" json:"pending"`
	AwaitingApproval int64 `db:"awaiting_approval" json:"awaitingApproval"`
	Queued           int64 `db:"queued" json:"queued"`
	Publishing       int64 `db:"publishing" json:"publishing"`
	Published        int64 `db:"published" json:"published"`
	Failed           int64 `db:"failed" json:"failed"`
	Cancelled        int64 `db:"cancelled" json:"cancelled"`
}

func (r *PostRepository) GetStats(ctx context.Context) (*TargetStats, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)           AS pending,
			COALESCE(SUM(CASE WHEN status = 'awaiting_approval' THEN 1 ELSE 0 END), 0) AS awaiting_approval,
			COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0)            AS queued,
			COALESCE(SUM(CASE WHEN status = 'publishing' THEN 1 ELSE 0 END), 0)        AS publishing,
			COALESCE(SUM(CASE WHEN status = 'published' THEN 1 ELSE 0 END), 0)         AS published,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)            AS failed,
			COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0)         AS cancelled
		FROM publish_targets
	`

	var stats TargetStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get target stats: %w", err)
	}

	return &stats, nil
}
