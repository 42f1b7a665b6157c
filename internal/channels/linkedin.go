package channels

import (
	"context"
	"strings"
	"time"

	"github.com/campaign-hub/backend/internal/models"
)

const linkedInBaseURL = "https://api.linkedin.com/v2"

type LinkedInAdapter struct {
	api *apiClient
}

func NewLinkedInAdapter(baseURL string, timeout time.Duration) *LinkedInAdapter {
	return &LinkedInAdapter{api: newAPIClient("linkedin", firstNonEmpty(baseURL, linkedInBaseURL), timeout)}
}

func (a *LinkedInAdapter) Channel() models.Channel { return models.ChannelLinkedIn }
func (a *LinkedInAdapter) Provider() string        { return "linkedin" }

func (a *LinkedInAdapter) Send(ctx context.Context, content Content, _ Target, cred Credential) (*Result, error) {
	meta, _ := content.Metadata.(models.LinkedInMetadata)
	author := firstNonEmpty(meta.AuthorURN, authorURN(cred.AccountID))
	if author == "" {
		return nil, rejected(a.Provider(), "no linkedin author")
	}

	share := map[string]any{
		"shareCommentary":    map[string]any{"text": content.Text},
		"shareMediaCategory": "NONE",
	}
	if content.Link != "" {
		share["shareMediaCategory"] = "ARTICLE"
		share["media"] = []map[string]any{{"status": "READY", "originalUrl": content.Link}}
	}

	in := map[string]any{
		"author":          author,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": share},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": firstNonEmpty(meta.Visibility, "PUBLIC"),
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	headers := map[string]string{"X-Restli-Protocol-Version": "2.0.0"}
	respHeader, err := a.api.postJSON(ctx, cred.AccessToken, "/ugcPosts", in, &out, headers)
	if err != nil {
		return nil, err
	}

	return published(a.Provider(), firstNonEmpty(respHeader.Get("X-Restli-Id"), out.ID))
}

// authorURN accepts either a full URN or a bare organization id.
func authorURN(accountID string) string {
	if accountID == "" || strings.HasPrefix(accountID, "urn:li:") {
		return accountID
	}
	return "urn:li:organization:" + accountID
}
