package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
)

// FacebookAdapter posts a photo to a Facebook page through the Graph
// API photos edge.
type FacebookAdapter struct {
	client      *resty.Client
	pageID      string
	accessToken string
}

func NewFacebookAdapter(cfg environments.PlatformsConfig, timeout time.Duration) *FacebookAdapter {
	return &FacebookAdapter{
		client:      newAPIClient(timeout).SetBaseURL(cfg.GraphAPIBaseURL),
		pageID:      cfg.FacebookPageID,
		accessToken: cfg.FacebookToken,
	}
}

func (a *FacebookAdapter) Platform() string {
	return domain.PlatformFacebook
}

type facebookPhotoResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

func (a *FacebookAdapter) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if a.accessToken == "" || a.pageID == "" {
		return "", domain.Permanent(a.Platform(), "Facebook page not connected", nil)
	}
	if req.MediaURL == "" {
		return "", domain.Permanent(a.Platform(), "media not found", nil)
	}

	var (
		result facebookPhotoResponse
		apiErr graphError
	)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"url":          req.MediaURL,
			"caption":      req.Caption,
			"access_token": a.accessToken,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/" + a.pageID + "/photos")

	if err != nil || resp.StatusCode() != http.StatusOK {
		return "", classifyResponse(a.Platform(), resp, err, &apiErr)
	}

	// The photos edge may return either a photo id or a page post id.
	if result.PostID != "" {
		return result.PostID, nil
	}
	return result.ID, nil
}
