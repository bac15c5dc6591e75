// Package policy holds built-in knowledge about well-known applications:
// fallback display names and ready-made blocklist presets.
package policy

import "github.com/eliteGoblin/focusd/appguard/internal/domain"

// PlaceholderLabel is shown when an app cannot be named at all.
const PlaceholderLabel = "This app"

// knownLabels maps well-known identifiers to display names.
// Mobile package names and desktop WM_CLASS values share the table.
var knownLabels = map[domain.AppID]string{
	// Android packages
	"com.instagram.android":      "Instagram",
	"com.facebook.katana":        "Facebook",
	"com.facebook.lite":          "Facebook Lite",
	"com.facebook.orca":          "Messenger",
	"com.zhiliaoapp.musically":   "TikTok",
	"com.ss.android.ugc.trill":   "TikTok",
	"com.twitter.android":        "X",
	"com.snapchat.android":       "Snapchat",
	"com.whatsapp":               "WhatsApp",
	"com.google.android.youtube": "YouTube",
	"com.reddit.frontpage":       "Reddit",
	"com.pinterest":              "Pinterest",
	"org.telegram.messenger":     "Telegram",
	"com.discord":                "Discord",
	"com.linkedin.android":       "LinkedIn",
	"com.tumblr":                 "Tumblr",
	"com.instagram.barcelona":    "Threads",
	"tv.twitch.android.app":      "Twitch",

	// Desktop WM_CLASS / process names
	"discord":            "Discord",
	"Discord":            "Discord",
	"slack":              "Slack",
	"Slack":              "Slack",
	"telegram-desktop":   "Telegram",
	"TelegramDesktop":    "Telegram",
	"whatsapp-for-linux": "WhatsApp",
	"steam":              "Steam",
	"Steam":              "Steam",
	"steamwebhelper":     "Steam",
	"dota2":              "Dota 2",
	"signal":             "Signal",
	"Signal":             "Signal",
}

// KnownLabel returns the built-in display name for id, if any.
func KnownLabel(id domain.AppID) (string, bool) {
	label, ok := knownLabels[id]
	return label, ok
}
