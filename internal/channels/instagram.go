package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/campaign-hub/backend/internal/models"
)

// InstagramAdapter publishes through the Instagram Graph API container flow:
// create a media container, then publish it.
type InstagramAdapter struct {
	api *apiClient
}

func NewInstagramAdapter(baseURL string, timeout time.Duration) *InstagramAdapter {
	return &InstagramAdapter{api: newAPIClient("instagram", firstNonEmpty(baseURL, graphAPIBaseURL), timeout)}
}

func (a *InstagramAdapter) Channel() models.Channel { return models.ChannelInstagram }
func (a *InstagramAdapter) Provider() string        { return "instagram" }

func (a *InstagramAdapter) Send(ctx context.Context, content Content, _ Target, cred Credential) (*Result, error) {
	meta, _ := content.Metadata.(models.InstagramMetadata)
	accountID := firstNonEmpty(meta.AccountID, cred.AccountID)
	if accountID == "" {
		return nil, rejected(a.Provider(), "no instagram business account id")
	}
	if len(content.MediaURLs) == 0 {
		return nil, rejected(a.Provider(), "instagram posts require a media url")
	}

	container := map[string]any{"caption": caption(content)}
	if meta.MediaType == "REELS" {
		container["media_type"] = "REELS"
		container["video_url"] = content.MediaURLs[0]
	} else {
		container["image_url"] = content.MediaURLs[0]
	}

	var created struct {
		ID string `json:"id"`
	}
	if _, err := a.api.postJSON(ctx, cred.AccessToken, "/"+accountID+"/media", container, &created, nil); err != nil {
		return nil, err
	}

	if created.ID == "" {
		return nil, newError(a.Provider(), ErrorKindUnknown, 0, fmt.Errorf("media container: %w", ErrNoExternalID))
	}

	var media struct {
		ID string `json:"id"`
	}
	in := map[string]any{"creation_id": created.ID}
	if _, err := a.api.postJSON(ctx, cred.AccessToken, "/"+accountID+"/media_publish", in, &media, nil); err != nil {
		return nil, err
	}

	return published(a.Provider(), media.ID)
}
