package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	v1 "postflow/pkg/api/v1"
	"postflow/pkg/constraints"
)

const youTubeMaxTitle = 100

// YouTubeAdapter uploads the first video media ref with a resumable upload
// session. The first line of content becomes the title. Media are fetched
// with a separate client that only reaches public addresses.
type YouTubeAdapter struct {
	baseURL string
	client  *http.Client
	media   *http.Client
}

func NewYouTubeAdapter(baseURL string, client *http.Client) *YouTubeAdapter {
	return &YouTubeAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultClient(client),
		media:   NewMediaClient(0),
	}
}

func (a *YouTubeAdapter) Key() string { return constraints.PlatformYouTube }

type videoResource struct {
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

func (a *YouTubeAdapter) Publish(ctx context.Context, content string, media []v1.MediaRef, credential string) Result {
	video, ok := firstVideo(media)
	if !ok {
		return Failure(CodeMediaRequired, "youtube needs a video media reference", v1.Permanent)
	}

	var meta videoResource
	meta.Snippet.Title = videoTitle(content)
	meta.Snippet.Description = content
	meta.Status.PrivacyStatus = "public"

	initURL := a.baseURL + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"
	req, err := newJSONRequest(ctx, http.MethodPost, initURL, credential, meta)
	if err != nil {
		return Failure(CodeInvalidContent, err.Error(), v1.Permanent)
	}
	req.Header.Set("X-Upload-Content-Type", "video/*")
	header, f := doJSON(a.client, a.Key(), req, nil)
	if f != nil {
		return *f
	}
	location := header.Get("Location")
	if location == "" {
		return Failure(CodeBadResponse, "youtube did not return an upload location", v1.Permanent)
	}

	src, err := http.NewRequestWithContext(ctx, http.MethodGet, video.URL, nil)
	if err != nil {
		return Failure(CodeMediaUnavailable, fmt.Sprintf("invalid media url: %v", err), v1.Permanent)
	}
	srcResp, err := a.media.Do(src)
	if errors.Is(err, ErrBlockedAddress) {
		return Failure(CodeMediaUnavailable, err.Error(), v1.Permanent)
	}
	if err != nil {
		return transportFailure("media host", err)
	}
	defer srcResp.Body.Close()
	if srcResp.StatusCode < 200 || srcResp.StatusCode > 299 {
		return Failure(CodeMediaUnavailable,
			fmt.Sprintf("media fetch returned %d", srcResp.StatusCode), Classify(srcResp.StatusCode))
	}

	upload, err := http.NewRequestWithContext(ctx, http.MethodPut, location, srcResp.Body)
	if err != nil {
		return Failure(CodeBadResponse, err.Error(), v1.Permanent)
	}
	upload.ContentLength = srcResp.ContentLength
	upload.Header.Set("Authorization", "Bearer "+credential)
	if ct := srcResp.Header.Get("Content-Type"); ct != "" {
		upload.Header.Set("Content-Type", ct)
	} else {
		upload.Header.Set("Content-Type", "application/octet-stream")
	}

	var out struct {
		ID string `json:"id"`
	}
	if _, f := doJSON(a.client, a.Key(), upload, &out); f != nil {
		return *f
	}
	if out.ID == "" {
		return Failure(CodeBadResponse, "youtube response has no video id", v1.Permanent)
	}

	metrics := map[string]any{"title": meta.Snippet.Title}
	if srcResp.ContentLength >= 0 {
		metrics["bytes"] = srcResp.ContentLength
	}
	return Succeeded(out.ID, metrics)
}

func firstVideo(media []v1.MediaRef) (v1.MediaRef, bool) {
	for _, m := range media {
		if strings.HasPrefix(m.Type, "video") {
			return m, true
		}
	}
	return v1.MediaRef{}, false
}

func videoTitle(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) > youTubeMaxTitle {
		title = string([]rune(title)[:youTubeMaxTitle])
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}
