package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
)

// InstagramAdapter publishes through the Graph API two-step flow:
// create a media container, then publish it.
type InstagramAdapter struct {
	client      *resty.Client
	accountID   string
	accessToken string
}

func NewInstagramAdapter(cfg environments.PlatformsConfig, timeout time.Duration) *InstagramAdapter {
	return &InstagramAdapter{
		client:      newAPIClient(timeout).SetBaseURL(cfg.GraphAPIBaseURL),
		accountID:   cfg.InstagramAccountID,
		accessToken: cfg.InstagramToken,
	}
}

func (a *InstagramAdapter) Platform() string {
	return domain.PlatformInstagram
}

type instagramMediaResponse struct {
	ID string `json:"id"`
}

func (a *InstagramAdapter) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if a.accessToken == "" || a.accountID == "" {
		return "", domain.Permanent(a.Platform(), "Instagram account not connected", nil)
	}
	if req.MediaURL == "" {
		return "", domain.Permanent(a.Platform(), "media not found", nil)
	}

	containerID, err := a.createContainer(ctx, req)
	if err != nil {
		return "", err
	}

	return a.publishContainer(ctx, containerID)
}

func (a *InstagramAdapter) createContainer(ctx context.Context, req PublishRequest) (string, error) {
	var (
		result instagramMediaResponse
		apiErr graphError
	)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"image_url":    req.MediaURL,
			"caption":      req.Caption,
			"access_token": a.accessToken,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/" + a.accountID + "/media")

	if err != nil || resp.StatusCode() != http.StatusOK {
		return "", classifyResponse(a.Platform(), resp, err, &apiErr)
	}

	return result.ID, nil
}

func (a *InstagramAdapter) publishContainer(ctx context.Context, containerID string) (string, error) {
	var (
		result instagramMediaResponse
		apiErr graphError
	)

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"creation_id":  containerID,
			"access_token": a.accessToken,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/" + a.accountID + "/media_publish")

	if err != nil || resp.StatusCode() != http.StatusOK {
		return "", classifyResponse(a.Platform(), resp, err, &apiErr)
	}

	return result.ID, nil
}
