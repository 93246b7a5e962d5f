package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/internal/repository"
	"github.com/arteai/publish-engine/pkg/logger"
	"github.com/arteai/publish-engine/pkg/whatsapp"
)

// approvalTTL is how long a reviewer has to answer before the request
// lapses and the target is cancelled.
const approvalTTL = 48 * time.Hour

// postStore is the slice of PostRepository the service needs.
type postStore interface {
	CreatePost(ctx context.Context, title, caption, mediaURL string) (*domain.Post, error)
	CreateTarget(ctx context.Context, postID int64, platform string, scheduledAt time.Time, status domain.TargetStatus) (*domain.PublishTarget, error)
	GetPost(ctx context.Context, id int64) (*domain.Post, error)
	GetPosts(ctx context.Context, page, pageSize int) ([]domain.Post, int64, error)
	GetTarget(ctx context.Context, id int64) (*domain.PublishTarget, error)
	GetTargetsByPost(ctx context.Context, postID int64) ([]domain.PublishTarget, error)
	ApproveTarget(ctx context.Context, id int64) (bool, error)
	RejectTarget(ctx context.Context, id int64) (bool, error)
	CancelPostTargets(ctx context.Context, postID int64) (int64, error)
	ReplayFailedTarget(ctx context.Context, id int64) error
	ReplayAllFailed(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*repository.TargetStats, error)
}

// approvalStore is the slice of ApprovalRepository the service needs.
type approvalStore interface {
	CreateApprovalRequest(ctx context.Context, targetID int64, contactPhone string, expiresAt time.Time) (*domain.ApprovalRequest, error)
	GetOpenApprovalByContact(ctx context.Context, contactPhone string, now time.Time) (*domain.ApprovalRequest, error)
	GetOpenApprovalByTarget(ctx context.Context, targetID int64) (*domain.ApprovalRequest, error)
	ResolveApproval(ctx context.Context, id int64, status domain.ApprovalStatus, responseMessage string, respondedAt time.Time) (bool, error)
	ExpireOpenApprovalsForPost(ctx context.Context, postID int64) (int64, error)
}

// reviewerNotifier mirrors the pkg/whatsapp client methods used for the
// approval conversation.
type reviewerNotifier interface {
	Configured() bool
	SendText(ctx context.Context, to, body string) (string, error)
	SendApprovalRequest(ctx context.Context, to string, msg whatsapp.ApprovalMessage) (string, error)
}

// PublicationReader mirrors the redis client read side.
type PublicationReader interface {
	GetAllCachedPublications(ctx context.Context) (map[int64]*domain.PublishedTargetCache, error)
}

// PostService owns the post lifecycle: creation with its platform
// fan-out, the WhatsApp approval conversation, cancellation and
// failure replay.
type PostService struct {
	posts         postStore
	approvals     approvalStore
	notifier      reviewerNotifier
	cache         PublicationReader
	reviewerPhone string
}

func NewPostService(
	posts postStore,
	approvals approvalStore,
	notifier reviewerNotifier,
	cache PublicationReader,
	reviewerPhone string,
) *PostService {
	return &PostService{
		posts:         posts,
		approvals:     approvals,
		notifier:      notifier,
		cache:         cache,
		reviewerPhone: reviewerPhone,
	}
}

type TargetInput struct {
	Platform    string    `json:"platform" validate:"required"`
	ScheduledAt time.Time `json:"scheduledAt" validate:"required"`
}

type CreatePostInput struct {
	Title    string        `json:"title" validate:"required,max=255"`
	Caption  string        `json:"caption" validate:"required"`
	MediaURL string        `json:"mediaUrl" validate:"omitempty,url"`
	Targets  []TargetInput `json:"targets" validate:"required,min=1,dive"`
}

// CreatePost stores a post and fans it out to one publish target per
// requested platform. WhatsApp targets start in awaiting_approval and
// trigger an approval request to the reviewer.
func (s *PostService) CreatePost(ctx context.Context, input CreatePostInput) (*domain.Post, error) {
	now := time.Now()
	for _, t := range input.Targets {
		if !domain.KnownPlatform(t.Platform) {
			return nil, fmt.Errorf("unknown platform: %s", t.Platform)
		}
		if !t.ScheduledAt.After(now) {
			return nil, fmt.Errorf("scheduled time for %s must be in the future", t.Platform)
		}
	}

	post, err := s.posts.CreatePost(ctx, input.Title, input.Caption, input.MediaURL)
	if err != nil {
		return nil, err
	}

	platforms := make([]string, 0, len(input.Targets))
	for _, t := range input.Targets {
		platforms = append(platforms, t.Platform)
	}

	for _, t := range input.Targets {
		status := domain.StatusPending
		if domain.RequiresApproval(t.Platform) {
			status = domain.StatusAwaitingApproval
		}

		target, err := s.posts.CreateTarget(ctx, post.ID, t.Platform, t.ScheduledAt.UTC(), status)
		if err != nil {
			return nil, err
		}

		if status == domain.StatusAwaitingApproval {
			if err := s.openApprovalRequest(ctx, post, target, platforms); err != nil {
				logger.Warnf("Failed to open approval request for target %d: %v", target.ID, err)
			}
		}
	}

	return s.posts.GetPost(ctx, post.ID)
}

func (s *PostService) openApprovalRequest(ctx context.Context, post *domain.Post, target *domain.PublishTarget, platforms []string) error {
	if s.reviewerPhone == "" {
		return fmt.Errorf("no reviewer phone configured")
	}

	request, err := s.approvals.CreateApprovalRequest(ctx, target.ID, normalizePhone(s.reviewerPhone), time.Now().Add(approvalTTL))
	if err != nil {
		return err
	}

	if !s.notifier.Configured() {
		logger.Warnf("WhatsApp not configured, approval request %d awaits manual resolution", request.ID)
		return nil
	}

	_, err = s.notifier.SendApprovalRequest(ctx, s.reviewerPhone, whatsapp.ApprovalMessage{
		Title:       post.Title,
		Caption:     post.Caption,
		ImageURL:    post.MediaURL,
		Platforms:   platforms,
		ScheduledAt: target.ScheduledAt,
	})
	if err != nil {
		return err
	}

	logger.Infof("Approval request %d sent to reviewer for target %d", request.ID, target.ID)
	return nil
}

// RequestApproval re-sends the approval prompt for a target that is
// still awaiting a reviewer answer.
func (s *PostService) RequestApproval(ctx context.Context, targetID int64) error {
	target, err := s.posts.GetTarget(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("no target found with id %d", targetID)
	}
	if target.Status != domain.StatusAwaitingApproval {
		return fmt.Errorf("target %d is %s, not awaiting approval", targetID, target.Status)
	}

	post, err := s.posts.GetPost(ctx, target.PostID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %d no longer exists", target.PostID)
	}

	platforms := make([]string, 0, len(post.Targets))
	for _, t := range post.Targets {
		platforms = append(platforms, t.Platform)
	}

	open, err := s.approvals.GetOpenApprovalByTarget(ctx, targetID)
	if err != nil {
		return err
	}
	if open == nil {
		return s.openApprovalRequest(ctx, post, target, platforms)
	}

	if !s.notifier.Configured() {
		return fmt.Errorf("WhatsApp not configured")
	}

	_, err = s.notifier.SendApprovalRequest(ctx, s.reviewerPhone, whatsapp.ApprovalMessage{
		Title:       post.Title,
		Caption:     post.Caption,
		ImageURL:    post.MediaURL,
		Platforms:   platforms,
		ScheduledAt: target.ScheduledAt,
	})
	return err
}

// Decision classifies a reviewer reply.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionUnknown  Decision = "unknown"
)

var (
	approvalKeywords  = []string{"aprovar", "aprovado", "sim", "ok"}
	rejectionKeywords = []string{"rejeitar", "rejeitado", "não", "nao"}
)

// ClassifyReply maps a button id or free-text reply to a decision.
// Button ids win over text.
func ClassifyReply(buttonID, text string) Decision {
	switch buttonID {
	case "aprovar":
		return DecisionApproved
	case "rejeitar":
		return DecisionRejected
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range rejectionKeywords {
		if strings.Contains(normalized, kw) {
			return DecisionRejected
		}
	}
	for _, kw := range approvalKeywords {
		if strings.Contains(normalized, kw) {
			return DecisionApproved
		}
	}

	return DecisionUnknown
}

// HandleApprovalResponse resolves the reviewer's open approval request
// from an inbound WhatsApp message. Duplicate or late replies are
// acknowledged without effect.
func (s *PostService) HandleApprovalResponse(ctx context.Context, contactPhone, text, buttonID string) error {
	decision := ClassifyReply(buttonID, text)
	phone := normalizePhone(contactPhone)

	if decision == DecisionUnknown {
		logger.Debugf("Unrecognized reply from %s: %q", phone, text)
		s.sendReply(ctx, contactPhone, "Por favor, responda com *Aprovar* ou *Rejeitar*.")
		return nil
	}

	request, err := s.approvals.GetOpenApprovalByContact(ctx, phone, time.Now())
	if err != nil {
		return err
	}
	if request == nil {
		logger.Debugf("No open approval request for %s, ignoring reply", phone)
		return nil
	}

	status := domain.ApprovalApproved
	if decision == DecisionRejected {
		status = domain.ApprovalRejected
	}

	response := text
	if response == "" {
		response = buttonID
	}

	resolved, err := s.approvals.ResolveApproval(ctx, request.ID, status, response, time.Now())
	if err != nil {
		return err
	}
	if !resolved {
		// Duplicate webhook delivery or a racing reply already won.
		logger.Debugf("Approval request %d already resolved, ignoring duplicate reply", request.ID)
		return nil
	}

	if decision == DecisionApproved {
		if _, err := s.posts.ApproveTarget(ctx, request.TargetID); err != nil {
			return err
		}
		logger.Infof("Target %d approved by %s", request.TargetID, phone)
		s.sendReply(ctx, contactPhone, "✅ *Post aprovado com sucesso!*\n\nEle será publicado no horário agendado. 🚀")
		return nil
	}

	if _, err := s.posts.RejectTarget(ctx, request.TargetID); err != nil {
		return err
	}
	logger.Infof("Target %d rejected by %s", request.TargetID, phone)
	s.sendReply(ctx, contactPhone, "❌ *Post rejeitado.*\n\nA publicação foi cancelada. Você pode criar uma nova versão e reenviar para aprovação.")
	return nil
}

func (s *PostService) sendReply(ctx context.Context, to, body string) {
	if !s.notifier.Configured() {
		return
	}
	if _, err := s.notifier.SendText(ctx, to, body); err != nil {
		logger.Warnf("Failed to send reply to %s: %v", to, err)
	}
}

func (s *PostService) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	return s.posts.GetPost(ctx, id)
}

func (s *PostService) GetPosts(ctx context.Context, page, pageSize int) ([]domain.Post, int64, error) {
	posts, total, err := s.posts.GetPosts(ctx, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	for i := range posts {
		targets, err := s.posts.GetTargetsByPost(ctx, posts[i].ID)
		if err != nil {
			return nil, 0, err
		}
		posts[i].Targets = targets
	}

	return posts, total, nil
}

// CancelPost cancels every non-terminal target of a post and closes
// any open approval requests. Already published targets stay as they
// are.
func (s *PostService) CancelPost(ctx context.Context, postID int64) (int64, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	if post == nil {
		return 0, fmt.Errorf("no post found with id %d", postID)
	}

	if _, err := s.approvals.ExpireOpenApprovalsForPost(ctx, postID); err != nil {
		return 0, err
	}

	cancelled, err := s.posts.CancelPostTargets(ctx, postID)
	if err != nil {
		return 0, err
	}

	logger.Infof("Cancelled %d targets of post %d", cancelled, postID)
	return cancelled, nil
}

func (s *PostService) ReplayTarget(ctx context.Context, targetID int64) error {
	return s.posts.ReplayFailedTarget(ctx, targetID)
}

func (s *PostService) ReplayAllFailed(ctx context.Context) (int64, error) {
	return s.posts.ReplayAllFailed(ctx)
}

func (s *PostService) GetStats(ctx context.Context) (*repository.TargetStats, error) {
	return s.posts.GetStats(ctx)
}

func (s *PostService) GetCachedPublications(ctx context.Context) (map[int64]*domain.PublishedTargetCache, error) {
	if s.cache == nil {
		return map[int64]*domain.PublishedTargetCache{}, nil
	}
	return s.cache.GetAllCachedPublications(ctx)
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
