package channels

import (
	"context"
	"time"

	"github.com/campaign-hub/backend/internal/models"
)

const graphAPIBaseURL = "https://graph.facebook.com/v19.0"

// FacebookAdapter publishes to a Facebook page feed.
type FacebookAdapter struct {
	api *apiClient
}

func NewFacebookAdapter(baseURL string, timeout time.Duration) *FacebookAdapter {
	return &FacebookAdapter{api: newAPIClient("facebook", firstNonEmpty(baseURL, graphAPIBaseURL), timeout)}
}

func (a *FacebookAdapter) Channel() models.Channel { return models.ChannelFacebook }
func (a *FacebookAdapter) Provider() string        { return "facebook" }

func (a *FacebookAdapter) Send(ctx context.Context, content Content, _ Target, cred Credential) (*Result, error) {
	meta, _ := content.Metadata.(models.FacebookMetadata)
	pageID := firstNonEmpty(meta.PageID, cred.AccountID)
	if pageID == "" {
		return nil, rejected(a.Provider(), "no page id for facebook post")
	}

	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}

	if len(content.MediaURLs) > 0 {
		in := map[string]any{
			"url":       content.MediaURLs[0],
			"caption":   caption(content),
			"published": true,
		}
		if _, err := a.api.postJSON(ctx, cred.AccessToken, "/"+pageID+"/photos", in, &out, nil); err != nil {
			return nil, err
		}
	} else {
		in := map[string]any{"message": content.Text}
		if content.Link != "" {
			in["link"] = content.Link
		}
		if _, err := a.api.postJSON(ctx, cred.AccessToken, "/"+pageID+"/feed", in, &out, nil); err != nil {
			return nil, err
		}
	}

	return published(a.Provider(), firstNonEmpty(out.PostID, out.ID))
}
