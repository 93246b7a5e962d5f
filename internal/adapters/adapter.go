package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arteai/publish-engine/internal/domain"
)

// PublishRequest carries everything an adapter needs for one dispatch.
// Credentials live in configuration; the engine never persists them.
type PublishRequest struct {
	TargetID int64
	PostID   int64
	Title    string
	Caption  string
	MediaURL string
}

// Adapter publishes one target to its network and returns the
// platform-assigned post id verbatim. Failures must be classified into
// the tagged domain.PublishError; adapters leave no partial state in
// the store (the executor persists outcomes).
type Adapter interface {
	Platform() string
	Publish(ctx context.Context, req PublishRequest) (string, error)
}

// Registry maps platform names to their adapter.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Platform()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		platforms = append(platforms, p)
	}
	return platforms
}

// graphError is the Graph API error envelope shared by the Meta
// platforms (and mirrored closely enough by TikTok's error object).
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func newAPIClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// classifyResponse turns an HTTP outcome into a tagged publish error.
// Transport failures and timeouts are transient; 429 is rate-limited
// honoring Retry-After; 5xx is transient; everything else the platform
// rejected deliberately and retrying will not help.
func classifyResponse(platform string, resp *resty.Response, err error, apiErr *graphError) error {
	if err != nil {
		return domain.Transient(platform, "request failed", err)
	}

	code := resp.StatusCode()
	message := fmt.Sprintf("unexpected status %d", code)
	if apiErr != nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	switch {
	case code == http.StatusTooManyRequests:
		return domain.RateLimited(platform, message, parseRetryAfter(resp), nil)
	case code >= http.StatusInternalServerError:
		return domain.Transient(platform, message, nil)
	default:
		return domain.Permanent(platform, message, nil)
	}
}

func parseRetryAfter(resp *resty.Response) time.Duration {
	header := resp.Header().Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
