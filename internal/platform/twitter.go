package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
)

const TweetMaxChars = 280

// TwitterAdapter posts through the v2 create tweet endpoint. Media are
// attached as links appended to the text.
type TwitterAdapter struct {
	baseURL string
	client  *http.Client
}

func NewTwitterAdapter(baseURL string, client *http.Client) *TwitterAdapter {
	return &TwitterAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultClient(client),
	}
}

func (a *TwitterAdapter) Key() string { return constraints.PlatformTwitter }

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (a *TwitterAdapter) Publish(ctx context.Context, content string, media []v1.MediaRef, credential string) Result {
	text := strings.TrimSpace(content)
	for _, m := range media {
		text += " " + m.URL
	}
	n := utf8.RuneCountInString(text)
	if n > TweetMaxChars {
		return Failure(CodeInvalidContent, fmt.Sprintf("tweet has %d characters, limit is %d", n, TweetMaxChars), v1.Permanent)
	}

	req, err := newJSONRequest(ctx, http.MethodPost, a.baseURL+"/2/tweets", credential, tweetRequest{Text: text})
	if err != nil {
		return Failure(CodeInvalidContent, err.Error(), v1.Permanent)
	}
	var out tweetResponse
	if _, f := doJSON(a.client, a.Key(), req, &out); f != nil {
		return *f
	}
	if out.Data.ID == "" {
		return Failure(CodeBadResponse, "twitter response has no tweet id", v1.Permanent)
	}
	return Succeeded(out.Data.ID, map[string]any{"characters": n})
}
