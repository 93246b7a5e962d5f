package service

import (
	"context"
	"testing"
	"time"

	"github.com/arteai/publish-engine/internal/domain"
	"github.com/arteai/publish-engine/internal/repository"
	"github.com/arteai/publish-engine/pkg/whatsapp"
)

//
// Test fakes – only for this file.
//

type fakePostStore struct {
	nextID  int64
	posts   map[int64]*domain.Post
	targets map[int64]*domain.PublishTarget

	approveCalls []int64
	rejectCalls  []int64
	cancelCalls  []int64
	replayCalls  []int64
}

func newFakePostStore() *fakePostStore {
	return &fakePostStore{
		posts:   make(map[int64]*domain.Post),
		targets: make(map[int64]*domain.PublishTarget),
	}
}

func (s *fakePostStore) CreatePost(ctx context.Context, title, caption, mediaURL string) (*domain.Post, error) {
	s.nextID++
	post := &domain.Post{ID: s.nextID, Title: title, Caption: caption, MediaURL: mediaURL}
	s.posts[post.ID] = post
	return post, nil
}

func (s *fakePostStore) CreateTarget(ctx context.Context, postID int64, platform string, scheduledAt time.Time, status domain.TargetStatus) (*domain.PublishTarget, error) {
	s.nextID++
	target := &domain.PublishTarget{ID: s.nextID, PostID: postID, Platform: platform, ScheduledAt: scheduledAt, Status: status}
	s.targets[target.ID] = target
	return target, nil
}

func (s *fakePostStore) GetPost(ctx context.Context, id int64) (*domain.Post, error) {
	post, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	targets, _ := s.GetTargetsByPost(ctx, id)
	copied.Targets = targets
	return &copied, nil
}

func (s *fakePostStore) GetPosts(ctx context.Context, page, pageSize int) ([]domain.Post, int64, error) {
	return nil, 0, nil
}

func (s *fakePostStore) GetTarget(ctx context.Context, id int64) (*domain.PublishTarget, error) {
	target, ok := s.targets[id]
	if !ok {
		return nil, nil
	}
	copied := *target
	return &copied, nil
}

func (s *fakePostStore) GetTargetsByPost(ctx context.Context, postID int64) ([]domain.PublishTarget, error) {
	var targets []domain.PublishTarget
	for _, t := range s.targets {
		if t.PostID == postID {
			targets = append(targets, *t)
		}
	}
	return targets, nil
}

func (s *fakePostStore) ApproveTarget(ctx context.Context, id int64) (bool, error) {
	s.approveCalls = append(s.approveCalls, id)
	if t, ok := s.targets[id]; ok && t.Status == domain.StatusAwaitingApproval {
		t.Status = domain.StatusPending
		return true, nil
	}
	return false, nil
}

func (s *fakePostStore) RejectTarget(ctx context.Context, id int64) (bool, error) {
	s.rejectCalls = append(s.rejectCalls, id)
	if t, ok := s.targets[id]; ok && t.Status == domain.StatusAwaitingApproval {
		t.Status = domain.StatusCancelled
		return true, nil
	}
	return false, nil
}

func (s *fakePostStore) CancelPostTargets(ctx context.Context, postID int64) (int64, error) {
	s.cancelCalls = append(s.cancelCalls, postID)
	var cancelled int64
	for _, t := range s.targets {
		if t.PostID == postID && !t.Status.Terminal() {
			t.Status = domain.StatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *fakePostStore) ReplayFailedTarget(ctx context.Context, id int64) error {
	s.replayCalls = append(s.replayCalls, id)
	return nil
}

func (s *fakePostStore) ReplayAllFailed(ctx context.Context) (int64, error) { return 0, nil }

func (s *fakePostStore) GetStats(ctx context.Context) (*repository.TargetStats, error) {
	return &repository.TargetStats{}, nil
}

type fakeApprovalStore struct {
	nextID   int64
	requests map[int64]*domain.ApprovalRequest

	expireForPostCalls []int64
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{requests: make(map[int64]*domain.ApprovalRequest)}
}

func (s *fakeApprovalStore) CreateApprovalRequest(ctx context.Context, targetID int64, contactPhone string, expiresAt time.Time) (*domain.ApprovalRequest, error) {
	s.nextID++
	request := &domain.ApprovalRequest{
		ID:           s.nextID,
		TargetID:     targetID,
		ContactPhone: contactPhone,
		Status:       domain.ApprovalPending,
		ExpiresAt:    expiresAt,
	}
	s.requests[request.ID] = request
	return request, nil
}

func (s *fakeApprovalStore) GetOpenApprovalByContact(ctx context.Context, contactPhone string, now time.Time) (*domain.ApprovalRequest, error) {
	for _, r := range s.requests {
		if r.ContactPhone == contactPhone && r.Status == domain.ApprovalPending && r.ExpiresAt.After(now) {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeApprovalStore) GetOpenApprovalByTarget(ctx context.Context, targetID int64) (*domain.ApprovalRequest, error) {
	for _, r := range s.requests {
		if r.TargetID == targetID && r.Status == domain.ApprovalPending {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeApprovalStore) ResolveApproval(ctx context.Context, id int64, status domain.ApprovalStatus, responseMessage string, respondedAt time.Time) (bool, error) {
	r, ok := s.requests[id]
	if !ok || r.Status != domain.ApprovalPending {
		return false, nil
	}
	r.Status = status
	r.ResponseMessage = &responseMessage
	r.RespondedAt = &respondedAt
	return true, nil
}

func (s *fakeApprovalStore) ExpireOpenApprovalsForPost(ctx context.Context, postID int64) (int64, error) {
	s.expireForPostCalls = append(s.expireForPostCalls, postID)
	return 0, nil
}

type fakeNotifier struct {
	configured bool
	sendErr    error

	texts         []string
	approvalCalls []whatsapp.ApprovalMessage
}

func (n *fakeNotifier) Configured() bool { return n.configured }

func (n *fakeNotifier) SendText(ctx context.Context, to, body string) (string, error) {
	n.texts = append(n.texts, body)
	return "wamid.text", n.sendErr
}

func (n *fakeNotifier) SendApprovalRequest(ctx context.Context, to string, msg whatsapp.ApprovalMessage) (string, error) {
	n.approvalCalls = append(n.approvalCalls, msg)
	return "wamid.approval", n.sendErr
}

func newTestService() (*PostService, *fakePostStore, *fakeApprovalStore, *fakeNotifier) {
	posts := newFakePostStore()
	approvals := newFakeApprovalStore()
	notifier := &fakeNotifier{configured: true}
	svc := NewPostService(posts, approvals, notifier, nil, "+55 11 99999-0000")
	return svc, posts, approvals, notifier
}

func futureTargets(platforms ...string) []TargetInput {
	targets := make([]TargetInput, 0, len(platforms))
	for _, p := range platforms {
		targets = append(targets, TargetInput{Platform: p, ScheduledAt: time.Now().Add(time.Hour)})
	}
	return targets
}

func TestCreatePost_FansOutTargets(t *testing.T) {
	svc, _, approvals, notifier := newTestService()

	post, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title:   "Launch",
		Caption: "hello",
		Targets: futureTargets("facebook", "whatsapp"),
	})
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}
	if len(post.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(post.Targets))
	}

	statuses := make(map[string]domain.TargetStatus)
	for _, target := range post.Targets {
		statuses[target.Platform] = target.Status
	}
	if statuses["facebook"] != domain.StatusPending {
		t.Errorf("expected facebook target pending, got %s", statuses["facebook"])
	}
	if statuses["whatsapp"] != domain.StatusAwaitingApproval {
		t.Errorf("expected whatsapp target awaiting approval, got %s", statuses["whatsapp"])
	}

	if len(approvals.requests) != 1 {
		t.Fatalf("expected one approval request, got %d", len(approvals.requests))
	}
	if len(notifier.approvalCalls) != 1 {
		t.Fatalf("expected one approval prompt, got %d", len(notifier.approvalCalls))
	}
	if notifier.approvalCalls[0].Title != "Launch" {
		t.Errorf("expected prompt to carry the post title, got %q", notifier.approvalCalls[0].Title)
	}
}

func TestCreatePost_RejectsUnknownPlatform(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title:   "Launch",
		Caption: "hello",
		Targets: futureTargets("myspace"),
	})
	if err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestCreatePost_RejectsPastSchedule(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title:   "Launch",
		Caption: "hello",
		Targets: []TargetInput{{Platform: "facebook", ScheduledAt: time.Now().Add(-time.Minute)}},
	})
	if err == nil {
		t.Fatalf("expected error for past schedule")
	}
}

func TestClassifyReply(t *testing.T) {
	cases := []struct {
		buttonID string
		text     string
		want     Decision
	}{
		{"aprovar", "", DecisionApproved},
		{"rejeitar", "", DecisionRejected},
		{"", "Aprovar", DecisionApproved},
		{"", "aprovado!", DecisionApproved},
		{"", "Sim", DecisionApproved},
		{"", "ok", DecisionApproved},
		{"", "Rejeitar", DecisionRejected},
		{"", "não", DecisionRejected},
		{"", "nao, pode cancelar", DecisionRejected},
		{"", "talvez amanhã", DecisionUnknown},
		{"", "", DecisionUnknown},
	}

	for _, tc := range cases {
		if got := ClassifyReply(tc.buttonID, tc.text); got != tc.want {
			t.Errorf("ClassifyReply(%q, %q) = %s, want %s", tc.buttonID, tc.text, got, tc.want)
		}
	}
}

func setupAwaitingTarget(t *testing.T, svc *PostService, posts *fakePostStore, approvals *fakeApprovalStore) *domain.ApprovalRequest {
	t.Helper()

	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title:   "Launch",
		Caption: "hello",
		Targets: futureTargets("whatsapp"),
	})
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}
	if len(approvals.requests) != 1 {
		t.Fatalf("expected one approval request, got %d", len(approvals.requests))
	}
	for _, r := range approvals.requests {
		return r
	}
	return nil
}

func TestHandleApprovalResponse_ApprovesTarget(t *testing.T) {
	svc, posts, approvals, notifier := newTestService()
	request := setupAwaitingTarget(t, svc, posts, approvals)

	err := svc.HandleApprovalResponse(context.Background(), "5511999990000", "", "aprovar")
	if err != nil {
		t.Fatalf("HandleApprovalResponse returned error: %v", err)
	}

	if approvals.requests[request.ID].Status != domain.ApprovalApproved {
		t.Errorf("expected request approved, got %s", approvals.requests[request.ID].Status)
	}
	if posts.targets[request.TargetID].Status != domain.StatusPending {
		t.Errorf("expected target back to pending, got %s", posts.targets[request.TargetID].Status)
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("expected one confirmation message, got %d", len(notifier.texts))
	}
}

func TestHandleApprovalResponse_RejectsTarget(t *testing.T) {
	svc, posts, approvals, _ := newTestService()
	request := setupAwaitingTarget(t, svc, posts, approvals)

	err := svc.HandleApprovalResponse(context.Background(), "5511999990000", "não, melhor não", "")
	if err != nil {
		t.Fatalf("HandleApprovalResponse returned error: %v", err)
	}

	if approvals.requests[request.ID].Status != domain.ApprovalRejected {
		t.Errorf("expected request rejected, got %s", approvals.requests[request.ID].Status)
	}
	if posts.targets[request.TargetID].Status != domain.StatusCancelled {
		t.Errorf("expected target cancelled, got %s", posts.targets[request.TargetID].Status)
	}
}

func TestHandleApprovalResponse_DuplicateReplyIsNoOp(t *testing.T) {
	svc, posts, approvals, _ := newTestService()
	request := setupAwaitingTarget(t, svc, posts, approvals)

	if err := svc.HandleApprovalResponse(context.Background(), "5511999990000", "sim", ""); err != nil {
		t.Fatalf("first reply returned error: %v", err)
	}
	// The second reply finds no open request and must not flip anything.
	if err := svc.HandleApprovalResponse(context.Background(), "5511999990000", "rejeitar", ""); err != nil {
		t.Fatalf("second reply returned error: %v", err)
	}

	if approvals.requests[request.ID].Status != domain.ApprovalApproved {
		t.Errorf("expected first answer to stand, got %s", approvals.requests[request.ID].Status)
	}
	if len(posts.rejectCalls) != 0 {
		t.Errorf("expected no rejection after duplicate reply, got %v", posts.rejectCalls)
	}
}

func TestHandleApprovalResponse_UnknownReplyAsksForClarification(t *testing.T) {
	svc, posts, approvals, notifier := newTestService()
	setupAwaitingTarget(t, svc, posts, approvals)

	if err := svc.HandleApprovalResponse(context.Background(), "5511999990000", "talvez", ""); err != nil {
		t.Fatalf("HandleApprovalResponse returned error: %v", err)
	}

	if len(posts.approveCalls)+len(posts.rejectCalls) != 0 {
		t.Errorf("expected no target transition for an unknown reply")
	}
	if len(notifier.texts) != 1 {
		t.Fatalf("expected a clarification message, got %d", len(notifier.texts))
	}
}

func TestHandleApprovalResponse_UnknownContactIgnored(t *testing.T) {
	svc, posts, approvals, _ := newTestService()
	setupAwaitingTarget(t, svc, posts, approvals)

	if err := svc.HandleApprovalResponse(context.Background(), "5599888887777", "aprovar", ""); err != nil {
		t.Fatalf("HandleApprovalResponse returned error: %v", err)
	}

	if len(posts.approveCalls) != 0 {
		t.Errorf("expected no approval from an unknown contact")
	}
}

func TestCancelPost_ExpiresApprovalsAndCancelsTargets(t *testing.T) {
	svc, _, approvals, _ := newTestService()

	post, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title:   "Launch",
		Caption: "hello",
		Targets: futureTargets("facebook", "whatsapp"),
	})
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}

	cancelled, err := svc.CancelPost(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("CancelPost returned error: %v", err)
	}
	if cancelled != 2 {
		t.Errorf("expected 2 cancelled targets, got %d", cancelled)
	}
	if len(approvals.expireForPostCalls) != 1 {
		t.Errorf("expected open approvals to be expired, got %v", approvals.expireForPostCalls)
	}
}

func TestCancelPost_MissingPost(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.CancelPost(context.Background(), 42); err == nil {
		t.Fatalf("expected error for missing post")
	}
}

func TestRequestApproval_RejectsWrongState(t *testing.T) {
	svc, posts, _, _ := newTestService()

	post, err := posts.CreatePost(context.Background(), "Launch", "hello", "")
	if err != nil {
		t.Fatalf("CreatePost returned error: %v", err)
	}
	target, err := posts.CreateTarget(context.Background(), post.ID, "facebook", time.Now().Add(time.Hour), domain.StatusPending)
	if err != nil {
		t.Fatalf("CreateTarget returned error: %v", err)
	}

	if err := svc.RequestApproval(context.Background(), target.ID); err == nil {
		t.Fatalf("expected error for a target not awaiting approval")
	}
	if err := svc.RequestApproval(context.Background(), 999); err == nil {
		t.Fatalf("expected error for a missing target")
	}
}
