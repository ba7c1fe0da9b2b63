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

const LinkedInMaxChars = 3000

// LinkedInAdapter shares a post as the member who owns the credential.
type LinkedInAdapter struct {
	baseURL string
	client  *http.Client
}

func NewLinkedInAdapter(baseURL string, client *http.Client) *LinkedInAdapter {
	return &LinkedInAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultClient(client),
	}
}

func (a *LinkedInAdapter) Key() string { return constraints.PlatformLinkedIn }

type linkedInUserInfo struct {
	Sub string `json:"sub"`
}

type ugcMedia struct {
	Status      string `json:"status"`
	OriginalURL string `json:"originalUrl"`
}

type ugcShareContent struct {
	ShareCommentary struct {
		Text string `json:"text"`
	} `json:"shareCommentary"`
	ShareMediaCategory string     `json:"shareMediaCategory"`
	Media              []ugcMedia `json:"media,omitempty"`
}

type ugcPost struct {
	Author          string                     `json:"author"`
	LifecycleState  string                     `json:"lifecycleState"`
	SpecificContent map[string]ugcShareContent `json:"specificContent"`
	Visibility      map[string]string          `json:"visibility"`
}

func (a *LinkedInAdapter) Publish(ctx context.Context, content string, media []v1.MediaRef, credential string) Result {
	if n := utf8.RuneCountInString(content); n > LinkedInMaxChars {
		return Failure(CodeInvalidContent, fmt.Sprintf("post has %d characters, limit is %d", n, LinkedInMaxChars), v1.Permanent)
	}

	req, err := newJSONRequest(ctx, http.MethodGet, a.baseURL+"/v2/userinfo", credential, nil)
	if err != nil {
		return Failure(CodeInvalidContent, err.Error(), v1.Permanent)
	}
	var me linkedInUserInfo
	if _, f := doJSON(a.client, a.Key(), req, &me); f != nil {
		return *f
	}
	if me.Sub == "" {
		return Failure(CodeBadResponse, "linkedin userinfo has no member id", v1.Permanent)
	}

	share := ugcShareContent{ShareMediaCategory: "NONE"}
	share.ShareCommentary.Text = content
	if len(media) > 0 {
		share.ShareMediaCategory = "ARTICLE"
		for _, m := range media {
			share.Media = append(share.Media, ugcMedia{Status: "READY", OriginalURL: m.URL})
		}
	}
	post := ugcPost{
		Author:          "urn:li:person:" + me.Sub,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]ugcShareContent{"com.linkedin.ugc.ShareContent": share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	req, err = newJSONRequest(ctx, http.MethodPost, a.baseURL+"/v2/ugcPosts", credential, post)
	if err != nil {
		return Failure(CodeInvalidContent, err.Error(), v1.Permanent)
	}
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	var out struct {
		ID string `json:"id"`
	}
	header, f := doJSON(a.client, a.Key(), req, &out)
	if f != nil {
		return *f
	}
	id := header.Get("X-RestLi-Id")
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return Failure(CodeBadResponse, "linkedin response has no post id", v1.Permanent)
	}
	return Succeeded(id, map[string]any{"author": post.Author, "mediaCount": len(media)})
}
