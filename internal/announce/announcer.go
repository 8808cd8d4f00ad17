// Package announce posts approval notices to a site's monitored rooms.
package announce

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

const postTimeout = 10 * time.Second

// SiteLookup returns the configuration of a site.
type SiteLookup interface {
	Site(siteURL string) (models.SiteConfig, bool)
}

// TokenSource yields a valid access token for a site.
type TokenSource interface {
	GetValidToken(ctx context.Context, siteURL string) (string, error)
}

// Messenger posts a markdown message to a room.
type Messenger interface {
	PostMessage(ctx context.Context, token, roomID, markdown string) error
}

// Announcer posts messages to monitored rooms. Failures are logged and never
// surface to the caller.
type Announcer struct {
	sites     SiteLookup
	tokens    TokenSource
	messenger Messenger
	logger    *zap.Logger
}

// NewAnnouncer creates an announcer.
func NewAnnouncer(sites SiteLookup, tokens TokenSource, messenger Messenger, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Announcer{sites: sites, tokens: tokens, messenger: messenger, logger: logger}
}

// Announce posts markdown to every monitored room of rec's site.
func (a *Announcer) Announce(ctx context.Context, rec *models.Recording, markdown string) {
	log := a.logger.With(zap.String("recording_id", rec.ID), zap.String("site", rec.SiteURL))
	site, ok := a.sites.Site(rec.SiteURL)
	if !ok {
		log.Warn("announce skipped: site not configured")
		return
	}
	if len(site.MonitoredRooms) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postTimeout)
	defer cancel()
	token, err := a.tokens.GetValidToken(ctx, site.SiteURL)
	if err != nil {
		log.Warn("announce skipped: no token", zap.Error(err))
		return
	}
	posted := 0
	for _, room := range site.MonitoredRooms {
		if err := a.messenger.PostMessage(ctx, token, room.RoomID, markdown); err != nil {
			log.Warn("announce failed", zap.String("room", room.DisplayName), zap.String("room_id", room.RoomID), zap.Error(err))
			continue
		}
		posted++
	}
	log.Info("recording announced", zap.Int("rooms", posted), zap.Int("configured", len(site.MonitoredRooms)))
}
