package models

import "strings"

// RecordingHost is a platform user whose recordings are ingested for a site.
// PlatformUserID may be empty until resolved through the people directory.
type RecordingHost struct {
	Email          string `yaml:"email" json:"email"`
	PlatformUserID string `yaml:"platform_user_id,omitempty" json:"platform_user_id,omitempty"`
}

// MonitoredRoom is a message room announcements are posted to.
type MonitoredRoom struct {
	RoomID      string `yaml:"room_id" json:"room_id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
}

// SiteConfig is one configured meeting-platform tenant. The *Ref fields are secret store paths.
type SiteConfig struct {
	SiteURL         string          `yaml:"site_url" json:"site_url"`
	ClientIDRef     string          `yaml:"client_id_ref" json:"-"`
	ClientSecretRef string          `yaml:"client_secret_ref" json:"-"`
	AccessTokenRef  string          `yaml:"access_token_ref" json:"-"`
	RefreshTokenRef string          `yaml:"refresh_token_ref" json:"-"`
	RecordingHosts  []RecordingHost `yaml:"recording_hosts" json:"recording_hosts"`
	MonitoredRooms  []MonitoredRoom `yaml:"monitored_rooms" json:"monitored_rooms"`
}

// NormalizeSiteURL lower-cases and strips scheme and trailing slash so
// "https://Acme.webex.com/" and "acme.webex.com" compare equal.
func NormalizeSiteURL(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	return strings.TrimRight(s, "/")
}
