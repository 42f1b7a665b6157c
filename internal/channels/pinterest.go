package channels

import (
	"context"
	"time"

	"github.com/campaign-hub/backend/internal/models"
)

const pinterestBaseURL = "https://api.pinterest.com/v5"

type PinterestAdapter struct {
	api *apiClient
}

func NewPinterestAdapter(baseURL string, timeout time.Duration) *PinterestAdapter {
	return &PinterestAdapter{api: newAPIClient("pinterest", firstNonEmpty(baseURL, pinterestBaseURL), timeout)}
}

func (a *PinterestAdapter) Channel() models.Channel { return models.ChannelPinterest }
func (a *PinterestAdapter) Provider() string        { return "pinterest" }

func (a *PinterestAdapter) Send(ctx context.Context, content Content, _ Target, cred Credential) (*Result, error) {
	meta, _ := content.Metadata.(models.PinterestMetadata)
	boardID := firstNonEmpty(meta.BoardID, cred.AccountID)
	if boardID == "" {
		return nil, rejected(a.Provider(), "no pinterest board id")
	}
	if len(content.MediaURLs) == 0 {
		return nil, rejected(a.Provider(), "pins require an image url")
	}

	in := map[string]any{
		"board_id":    boardID,
		"description": content.Text,
		"media_source": map[string]any{
			"source_type": "image_url",
			"url":         content.MediaURLs[0],
		},
	}
	if content.Subject != "" {
		in["title"] = content.Subject
	}
	if link := firstNonEmpty(meta.Link, content.Link); link != "" {
		in["link"] = link
	}
	if meta.AltText != "" {
		in["alt_text"] = meta.AltText
	}

	var out struct {
		ID string `json:"id"`
	}
	if _, err := a.api.postJSON(ctx, cred.AccessToken, "/pins", in, &out, nil); err != nil {
		return nil, err
	}
	return published(a.Provider(), out.ID)
}
