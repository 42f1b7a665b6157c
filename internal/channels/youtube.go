package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/campaign-hub/backend/internal/models"
)

const youTubeUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=multipart&part=snippet,status"

// YouTubeAdapter uploads the post's first media url as a video.
type YouTubeAdapter struct {
	api       *apiClient
	uploadURL string
	fetch     *http.Client
}

func NewYouTubeAdapter(uploadURL string, timeout time.Duration) *YouTubeAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YouTubeAdapter{
		api:       newAPIClient("youtube", "", 10*timeout),
		uploadURL: firstNonEmpty(uploadURL, youTubeUploadURL),
		fetch:     &http.Client{Timeout: 10 * timeout},
	}
}

// CallTimeout gives uploads ten times the regular per-call budget.
func (a *YouTubeAdapter) CallTimeout(base time.Duration) time.Duration { return 10 * base }

func (a *YouTubeAdapter) Channel() models.Channel { return models.ChannelYouTube }
func (a *YouTubeAdapter) Provider() string        { return "youtube" }

type youTubeVideo struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

func (a *YouTubeAdapter) Send(ctx context.Context, content Content, _ Target, cred Credential) (*Result, error) {
	if len(content.MediaURLs) == 0 {
		return nil, rejected(a.Provider(), "youtube posts require a video url")
	}
	meta, _ := content.Metadata.(models.YouTubeMetadata)

	var video youTubeVideo
	video.Snippet.Title = truncate(firstNonEmpty(meta.Title, content.Subject, content.Text), 100)
	video.Snippet.Description = caption(content)
	video.Snippet.Tags = meta.Tags
	video.Snippet.CategoryID = firstNonEmpty(meta.CategoryID, "22")
	video.Status.PrivacyStatus = firstNonEmpty(meta.Privacy, "public")
	if video.Snippet.Title == "" {
		return nil, rejected(a.Provider(), "youtube videos require a title")
	}

	src, err := a.openMedia(ctx, content.MediaURLs[0])
	if err != nil {
		return nil, err
	}
	defer src.Body.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadBody(mw, video, src))
	}()

	headers := map[string]string{"Content-Type": "multipart/related; boundary=" + mw.Boundary()}
	var out struct {
		ID string `json:"id"`
	}
	if _, err := a.api.do(ctx, cred.AccessToken, http.MethodPost, a.uploadURL, pr, headers, &out); err != nil {
		_ = pr.Close()
		return nil, err
	}
	return published(a.Provider(), out.ID)
}

func (a *YouTubeAdapter) openMedia(ctx context.Context, mediaURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, rejected(a.Provider(), "invalid video url: %v", err)
	}
	resp, err := a.fetch.Do(req)
	if err != nil {
		return nil, newError(a.Provider(), ErrorKindUnknown, 0, fmt.Errorf("fetch video: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, rejected(a.Provider(), "fetch video returned %d", resp.StatusCode)
	}
	return resp, nil
}

func writeUploadBody(mw *multipart.Writer, video youTubeVideo, src *http.Response) error {
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return err
	}
	if err := json.NewEncoder(metaPart).Encode(video); err != nil {
		return err
	}

	contentType := src.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/*"
	}
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {contentType}})
	if err != nil {
		return err
	}
	if _, err := io.Copy(mediaPart, src.Body); err != nil {
		return err
	}
	return mw.Close()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
