// Package pocket talks to the Pocket bookmarking API: the OAuth handshake and
// incremental retrieval of saved items.
package pocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
)

// DefaultBaseURL is the Pocket v3 API root.
const DefaultBaseURL = "https://getpocket.com/v3/"

// Client is a minimal Pocket API client.
type Client struct {
	base *url.URL
	http *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("pocket: invalid base url %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// RequestToken starts the OAuth flow and returns the request token.
func (c *Client) RequestToken(ctx context.Context, consumerKey, redirectURI string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	err := c.post(ctx, "oauth/request", map[string]any{
		"consumer_key": consumerKey,
		"redirect_uri": redirectURI,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Code == "" {
		return "", apperr.Upstream(errors.New("pocket: empty request token"))
	}
	return out.Code, nil
}

// AuthorizeURL is where the user approves the request token.
func (c *Client) AuthorizeURL(code, redirectURI string) string {
	u := url.URL{Scheme: c.base.Scheme, Host: c.base.Host, Path: "/auth/authorize"}
	q := url.Values{}
	q.Set("request_token", code)
	q.Set("redirect_uri", redirectURI)
	u.RawQuery = q.Encode()
	return u.String()
}

// AccessToken exchanges an approved request token for an access token.
func (c *Client) AccessToken(ctx context.Context, consumerKey, code string) (token, username string, err error) {
	var out struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	err = c.post(ctx, "oauth/authorize", map[string]any{
		"consumer_key": consumerKey,
		"code":         code,
	}, &out)
	if err != nil {
		return "", "", err
	}
	if out.AccessToken == "" {
		return "", "", apperr.Upstream(errors.New("pocket: empty access token"))
	}
	return out.AccessToken, out.Username, nil
}

type item struct {
	ItemID        string `json:"item_id"`
	GivenURL      string `json:"given_url"`
	ResolvedURL   string `json:"resolved_url"`
	GivenTitle    string `json:"given_title"`
	ResolvedTitle string `json:"resolved_title"`
	Excerpt       string `json:"excerpt"`
	IsArticle     string `json:"is_article"`
	Status        string `json:"status"`
	TimeAdded     string `json:"time_added"`
}

// statusDeleted marks items removed from the Pocket list.
const statusDeleted = "2"

// Retrieve returns every item changed after since, oldest first.
// A zero since retrieves the whole list.
func (c *Client) Retrieve(ctx context.Context, consumerKey, accessToken string, since time.Time) ([]models.ExternalItem, error) {
	req := map[string]any{
		"consumer_key": consumerKey,
		"access_token": accessToken,
		"sort":         "newest",
	}
	if !since.IsZero() {
		req["since"] = since.Unix()
	}
	var out struct {
		List json.RawMessage `json:"list"`
	}
	if err := c.post(ctx, "get", req, &out); err != nil {
		return nil, err
	}

	// An empty list is sent as [] rather than {}.
	raw := bytes.TrimSpace(out.List)
	if len(raw) == 0 || raw[0] != '{' {
		return []models.ExternalItem{}, nil
	}
	var byID map[string]item
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, apperr.Upstream(fmt.Errorf("pocket: decode list: %w", err))
	}

	items := make([]models.ExternalItem, 0, len(byID))
	for id, it := range byID {
		if it.ItemID == "" {
			it.ItemID = id
		}
		items = append(items, it.external())
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (it item) external() models.ExternalItem {
	added, _ := strconv.ParseInt(it.TimeAdded, 10, 64)
	return models.ExternalItem{
		ID:        it.ItemID,
		URL:       firstNonEmpty(it.ResolvedURL, it.GivenURL),
		Title:     firstNonEmpty(it.ResolvedTitle, it.GivenTitle),
		Excerpt:   it.Excerpt,
		IsArticle: it.IsArticle == "1",
		Archived:  it.Status == statusDeleted,
		AddedAt:   time.Unix(added, 0).UTC(),
	}
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := c.base.ResolveReference(&url.URL{Path: endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return apperr.Upstream(fmt.Errorf("pocket: %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := resp.Header.Get("X-Error")
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		err := fmt.Errorf("pocket: %s: HTTP %d: %s", endpoint, resp.StatusCode, reason)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", apperr.ErrRefused, err)
		}
		return apperr.Upstream(err)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(out); err != nil {
		return apperr.Upstream(fmt.Errorf("pocket: %s: decode: %w", endpoint, err))
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
