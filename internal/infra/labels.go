package infra

import (
	"strings"

	"github.com/eliteGoblin/screentimed/internal/domain"
)

// knownLabels maps common process names to friendly display labels.
// Anything not listed falls back to the raw identifier.
var knownLabels = map[string]string{
	"chrome":          "Chrome",
	"google chrome":   "Chrome",
	"chromium":        "Chromium",
	"firefox":         "Firefox",
	"safari":          "Safari",
	"slack":           "Slack",
	"discord":         "Discord",
	"spotify":         "Spotify",
	"code":            "VS Code",
	"idea":            "IntelliJ IDEA",
	"goland":          "GoLand",
	"terminal":        "Terminal",
	"iterm2":          "iTerm2",
	"alacritty":       "Alacritty",
	"zoom":            "Zoom",
	"zoom.us":         "Zoom",
	"telegram":        "Telegram",
	"steam":           "Steam",
	"obsidian":        "Obsidian",
	"notion":          "Notion",
	"thunderbird":     "Thunderbird",
	"mail":            "Mail",
	"finder":          "Finder",
	"microsoft teams": "Teams",
}

// StaticLabelResolver implements domain.LabelResolver with a fixed lookup
// table. Resolve never fails: unknown identifiers come back unchanged.
type StaticLabelResolver struct{}

// NewStaticLabelResolver creates the resolver.
func NewStaticLabelResolver() *StaticLabelResolver {
	return &StaticLabelResolver{}
}

// Resolve maps an application identifier to a display label.
func (r *StaticLabelResolver) Resolve(appID string) string {
	if label, ok := knownLabels[strings.ToLower(appID)]; ok {
		return label
	}
	return appID
}

// Ensure StaticLabelResolver implements domain.LabelResolver.
var _ domain.LabelResolver = (*StaticLabelResolver)(nil)
