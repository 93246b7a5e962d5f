package adapters

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/arteai/publish-engine/environments"
	"github.com/arteai/publish-engine/internal/domain"
)

const tiktokTitleLimit = 150

// TikTokAdapter publishes through the Content Posting API. TikTok only
// accepts video content; image-only posts fail permanently.
type TikTokAdapter struct {
	client      *resty.Client
	accessToken string
}

func NewTikTokAdapter(cfg environments.PlatformsConfig, timeout time.Duration) *TikTokAdapter {
	return &TikTokAdapter{
		client:      newAPIClient(timeout).SetBaseURL(cfg.TikTokAPIBaseURL),
		accessToken: cfg.TikTokToken,
	}
}

func (a *TikTokAdapter) Platform() string {
	return domain.PlatformTikTok
}

type tiktokPublishResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *TikTokAdapter) Publish(ctx context.Context, req PublishRequest) (string, error) {
	if a.accessToken == "" {
		return "", domain.Permanent(a.Platform(), "TikTok account not connected", nil)
	}
	if req.MediaURL == "" {
		return "", domain.Permanent(a.Platform(), "TikTok requires video content", nil)
	}

	// Truncate on rune boundaries; captions are frequently Portuguese
	// and a byte slice could split an accented character.
	title := req.Caption
	if runes := []rune(title); len(runes) > tiktokTitleLimit {
		title = string(runes[:tiktokTitleLimit])
	}

	var result tiktokPublishResponse

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(a.accessToken).
		SetBody(map[string]any{
			"post_info": map[string]any{
				"title":           title,
				"privacy_level":   "PUBLIC_TO_EVERYONE",
				"disable_duet":    false,
				"disable_comment": false,
				"disable_stitch":  false,
			},
			"source_info": map[string]any{
				"source":    "PULL_FROM_URL",
				"video_url": req.MediaURL,
			},
		}).
		SetResult(&result).
		Post("/post/publish/video/init/")

	if err != nil || resp.StatusCode() != http.StatusOK {
		return "", classifyResponse(a.Platform(), resp, err, nil)
	}

	// TikTok reports failures inside a 200 envelope.
	if result.Error.Code != "" && result.Error.Code != "ok" {
		return "", domain.Permanent(a.Platform(), result.Error.Message, nil)
	}

	return result.Data.PublishID, nil
}
