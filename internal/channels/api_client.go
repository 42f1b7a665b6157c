package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// apiClient talks JSON to a social platform REST API with a bearer token.
type apiClient struct {
	provider   string
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(provider, baseURL string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &apiClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *apiClient) authorized(ctx context.Context, token string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

func (c *apiClient) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// postJSON sends in as JSON and decodes the response into out.
func (c *apiClient) postJSON(ctx context.Context, token, path string, in, out any, headers map[string]string) (http.Header, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, newError(c.provider, ErrorKindContentRejected, 0, err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return c.do(ctx, token, http.MethodPost, path, bytes.NewReader(body), headers, out)
}

func (c *apiClient) do(ctx context.Context, token, method, path string, body io.Reader, headers map[string]string, out any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, newError(c.provider, ErrorKindUnknown, 0, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.authorized(ctx, token).Do(req)
	if err != nil {
		return nil, newError(c.provider, ErrorKindUnknown, 0, fmt.Errorf("%s unavailable: %w", c.provider, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.Header, newError(c.provider, KindForStatus(resp.StatusCode), resp.StatusCode,
			fmt.Errorf("%s returned %d: %s", c.provider, resp.StatusCode, strings.TrimSpace(string(b))))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.Header, newError(c.provider, ErrorKindUnknown, resp.StatusCode, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.Header, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// caption joins the post text and link the way social platforms render them.
func caption(content Content) string {
	if content.Link == "" || strings.Contains(content.Text, content.Link) {
		return content.Text
	}
	if content.Text == "" {
		return content.Link
	}
	return content.Text + "\n\n" + content.Link
}
