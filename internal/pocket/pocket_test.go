package pocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/testutil"
)

// fakePocket records requests and answers like the Pocket v3 API.
type fakePocket struct {
	mu       sync.Mutex
	requests map[string][]map[string]any
	list     string
	status   int
}

func (f *fakePocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.requests[r.URL.Path] = append(f.requests[r.URL.Path], body)

	if r.Header.Get("X-Accept") != "application/json" {
		http.Error(w, "missing X-Accept", http.StatusBadRequest)
		return
	}
	if f.status != 0 {
		w.Header().Set("X-Error", "Invalid consumer key.")
		w.WriteHeader(f.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v3/oauth/request":
		_, _ = w.Write([]byte(`{"code":"req-code","state":null}`))
	case "/v3/oauth/authorize":
		_, _ = w.Write([]byte(`{"access_token":"acc-token","username":"reader"}`))
	case "/v3/get":
		_, _ = w.Write([]byte(`{"status":1,"complete":1,"list":` + f.list + `}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakePocket) last(path string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.requests[path]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

func testClient(t *testing.T) (*Client, *fakePocket) {
	t.Helper()
	fake := &fakePocket{requests: map[string][]map[string]any{}, list: "[]"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL + "/v3")
	require.NoError(t, err)
	return c, fake
}

const twoItems = `{
  "229279689": {"item_id":"229279689","resolved_url":"http://example.com/article","given_url":"http://ex.com/a",
    "resolved_title":"Article","excerpt":"An excerpt","is_article":"1","status":"0","time_added":"1700000200"},
  "229279690": {"item_id":"229279690","given_url":"http://example.com/video","given_title":"Video",
    "excerpt":"ignored","is_article":"0","status":"2","time_added":"1700000100"}
}`

func TestRetrieve(t *testing.T) {
	c, fake := testClient(t)
	fake.list = twoItems

	items, err := c.Retrieve(context.Background(), "key", "tok", time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "229279690", items[0].ID, "oldest first")
	assert.True(t, items[0].Archived)
	assert.False(t, items[0].IsArticle)
	assert.Equal(t, "Video", items[0].Title)
	assert.Equal(t, "http://example.com/video", items[0].URL)

	assert.Equal(t, "http://example.com/article", items[1].URL, "resolved url preferred")
	assert.True(t, items[1].IsArticle)
	assert.Equal(t, "An excerpt", items[1].Excerpt)
	assert.Equal(t, time.Unix(1700000200, 0).UTC(), items[1].AddedAt)

	req := fake.last("/v3/get")
	assert.Equal(t, "key", req["consumer_key"])
	assert.Equal(t, "tok", req["access_token"])
	assert.Equal(t, "newest", req["sort"])
	assert.EqualValues(t, 1700000000, req["since"])
}

func TestRetrieveEmptyListQuirk(t *testing.T) {
	c, fake := testClient(t)
	items, err := c.Retrieve(context.Background(), "key", "tok", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotContains(t, fake.last("/v3/get"), "since", "zero watermark sends no since")
}

func TestClientErrors(t *testing.T) {
	c, fake := testClient(t)

	fake.mu.Lock()
	fake.status = http.StatusServiceUnavailable
	fake.mu.Unlock()
	_, err := c.RequestToken(context.Background(), "key", "http://localhost/cb")
	assert.True(t, apperr.IsRetryable(err))

	fake.mu.Lock()
	fake.status = http.StatusForbidden
	fake.mu.Unlock()
	_, err = c.RequestToken(context.Background(), "key", "http://localhost/cb")
	assert.ErrorIs(t, err, apperr.ErrRefused)
	assert.Contains(t, err.Error(), "Invalid consumer key.")
}

func TestAuthorizeURL(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	got, err := url.Parse(c.AuthorizeURL("abc", "http://localhost:5000/pocket/callback?state=n"))
	require.NoError(t, err)
	assert.Equal(t, "getpocket.com", got.Host)
	assert.Equal(t, "/auth/authorize", got.Path)
	assert.Equal(t, "abc", got.Query().Get("request_token"))
	assert.Equal(t, "http://localhost:5000/pocket/callback?state=n", got.Query().Get("redirect_uri"))
}

func TestSessionHandshake(t *testing.T) {
	c, fake := testClient(t)
	db := testutil.TestDB(t)
	s := NewSession(c, db, "http://localhost:5000/pocket/callback")

	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, StateUnconfigured, st.State)
	_, err = s.Credentials()
	assert.ErrorIs(t, err, apperr.ErrRefused)
	_, err = s.Complete(context.Background(), "anything")
	assert.ErrorIs(t, err, apperr.ErrRefused, "complete before begin")

	authURL, err := s.Begin(context.Background(), "consumer")
	require.NoError(t, err)
	st, _ = s.Status()
	assert.Equal(t, StateRequestedToken, st.State)
	assert.Equal(t, "req-code", st.Code)

	u, _ := url.Parse(authURL)
	assert.Equal(t, "req-code", u.Query().Get("request_token"))
	redirect, _ := url.Parse(u.Query().Get("redirect_uri"))
	nonce := redirect.Query().Get("state")
	assert.Equal(t, st.Nonce, nonce)
	assert.Equal(t, u.Query().Get("redirect_uri"), fake.last("/v3/oauth/request")["redirect_uri"])

	_, err = s.Complete(context.Background(), "forged")
	assert.ErrorIs(t, err, apperr.ErrRefused)

	creds, err := s.Complete(context.Background(), nonce)
	require.NoError(t, err)
	assert.Equal(t, StateAuthorized, creds.State)
	assert.Equal(t, "acc-token", creds.AccessToken)
	assert.Equal(t, "reader", creds.Username)
	assert.Equal(t, "req-code", fake.last("/v3/oauth/authorize")["code"])

	creds, err = s.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "consumer", creds.ConsumerKey)
}

func TestBeginValidation(t *testing.T) {
	c, _ := testClient(t)
	db := testutil.TestDB(t)
	_, err := NewSession(c, db, "http://localhost/cb").Begin(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = NewSession(c, db, "/relative").Begin(context.Background(), "key")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSourceRequiresAuthorization(t *testing.T) {
	c, fake := testClient(t)
	db := testutil.TestDB(t)
	src := NewSource(c, NewSession(c, db, "http://localhost/cb"))

	_, err := src.Retrieve(context.Background(), time.Time{})
	assert.ErrorIs(t, err, apperr.ErrRefused)

	require.NoError(t, db.SaveSetting(SettingKind, Credentials{State: StateAuthorized, ConsumerKey: "k", AccessToken: "t"}))
	fake.list = twoItems
	items, err := src.Retrieve(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "pocket", src.Name())
}
