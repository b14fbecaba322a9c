// internal/adapter/feed/twitter.go

package feed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	twitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/rotisserie/eris"

	"regionalert/internal/domain/feed"
)

// TwitterConfig contains configuration for the X/Twitter timeline source
type TwitterConfig struct {
	BearerToken string
	Host        string
	MaxResults  int
}

type bearerAuthorizer struct {
	token string
}

func (a bearerAuthorizer) Add(req *http.Request) {
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", a.token))
}

// TwitterSource reads official account timelines through the v2 API
type TwitterSource struct {
	client     *twitter.Client
	maxResults int
}

var _ feed.TimelineSource = (*TwitterSource)(nil)

// NewTwitterSource creates a timeline source. A nil httpClient uses a client
// with a 15 second timeout.
func NewTwitterSource(cfg TwitterConfig, httpClient *http.Client) *TwitterSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Host == "" {
		cfg.Host = "https://api.twitter.com"
	}
	if cfg.MaxResults < 5 || cfg.MaxResults > 100 {
		cfg.MaxResults = 20
	}
	return &TwitterSource{
		client: &twitter.Client{
			Authorizer: bearerAuthorizer{token: cfg.BearerToken},
			Client:     httpClient,
			Host:       cfg.Host,
		},
		maxResults: cfg.MaxResults,
	}
}

// Timeline returns posts by accountID newer than sinceID, oldest first.
func (s *TwitterSource) Timeline(ctx context.Context, accountID, sinceID string) ([]feed.Entry, error) {
	opts := twitter.UserTweetTimelineOpts{
		TweetFields: []twitter.TweetField{twitter.TweetFieldCreatedAt},
		MaxResults:  s.maxResults,
		SinceID:     sinceID,
	}

	resp, err := s.client.UserTweetTimeline(ctx, accountID, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "feed: fetch timeline for %s", accountID)
	}
	if resp == nil || resp.Raw == nil {
		return nil, nil
	}

	tweets := resp.Raw.Tweets
	entries := make([]feed.Entry, 0, len(tweets))
	// The API lists newest first.
	for i := len(tweets) - 1; i >= 0; i-- {
		t := tweets[i]
		if t == nil {
			continue
		}
		e := feed.Entry{ID: t.ID, Text: t.Text}
		if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			e.PostedAt = ts
		}
		entries = append(entries, e)
	}

	return entries, nil
}
