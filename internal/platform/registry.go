package platform

import (
	"net/http"

	"postflow/internal/config"
)

// NewDefaultRegistry wires the built-in adapters against the configured
// API base URLs.
func NewDefaultRegistry(cfg config.PlatformsConfig, client *http.Client) *Registry {
	return NewRegistry(
		NewTwitterAdapter(cfg.TwitterBaseURL, client),
		NewLinkedInAdapter(cfg.LinkedInBaseURL, client),
		NewYouTubeAdapter(cfg.YouTubeBaseURL, client),
	)
}
