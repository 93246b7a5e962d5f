package domain

import "time"

type TargetStatus string

const (
	StatusPending          TargetStatus = "pending"
	StatusAwaitingApproval TargetStatus = "awaiting_approval"
	StatusQueued           TargetStatus = "queued"
	StatusPublishing       TargetStatus = "publishing"
	StatusPublished        TargetStatus = "published"
	StatusFailed           TargetStatus = "failed"
	StatusCancelled        TargetStatus = "cancelled"
)

// Terminal reports whether a target can never change status again.
func (s TargetStatus) Terminal() bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCancelled
}

const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformWhatsApp  = "whatsapp"
)

// RequiresApproval reports whether a platform needs human sign-off
// before its targets become schedulable. WhatsApp business messaging
// goes out to real contacts, so it is gated.
func RequiresApproval(platform string) bool {
	return platform == PlatformWhatsApp
}

// KnownPlatform reports whether we have an adapter for the platform.
func KnownPlatform(platform string) bool {
	switch platform {
	case PlatformFacebook, PlatformInstagram, PlatformTikTok, PlatformWhatsApp:
		return true
	}
	return false
}

// Post is one authored content item. Content is opaque to the engine;
// targets own all scheduling state.
type Post struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Caption   string    `db:"caption" json:"caption"`
	MediaURL  string    `db:"media_url" json:"mediaUrl"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Targets []PublishTarget `json:"targets,omitempty"`
}

// PublishTarget is one platform leg of a Post's schedule.
type PublishTarget struct {
	ID             int64        `db:"id" json:"id"`
	PostID         int64        `db:"post_id" json:"postId"`
	Platform       string       `db:"platform" json:"platform"`
	ScheduledAt    time.Time    `db:"scheduled_at" json:"scheduledAt"`
	Status         TargetStatus `db:"status" json:"status"`
	AttemptCount   int          `db:"attempt_count" json:"attemptCount"`
	LastError      *string      `db:"last_error" json:"lastError,omitempty"`
	PlatformPostID *string      `db:"platform_post_id" json:"platformPostId,omitempty"`
	PublishedAt    *time.Time   `db:"published_at" json:"publishedAt,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updatedAt"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest correlates one awaiting_approval target to the
// reviewer contact that must answer it. At most one open request per
// target exists at a time.
type ApprovalRequest struct {
	ID              int64          `db:"id" json:"id"`
	TargetID        int64          `db:"target_id" json:"targetId"`
	ContactPhone    string         `db:"contact_phone" json:"contactPhone"`
	Status          ApprovalStatus `db:"status" json:"status"`
	ResponseMessage *string        `db:"response_message" json:"responseMessage,omitempty"`
	RespondedAt     *time.Time     `db:"responded_at" json:"respondedAt,omitempty"`
	ExpiresAt       time.Time      `db:"expires_at" json:"expiresAt"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

// PublishedTargetCache is the valkey payload for a published target.
type PublishedTargetCache struct {
	Platform       string    `json:"platform"`
	PlatformPostID string    `json:"platformPostId"`
	PublishedAt    time.Time `json:"publishedAt"`
}
