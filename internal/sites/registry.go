// Package sites holds the configured meeting-platform sites and resolves webhook
// identities to a site and its recording hosts.
package sites

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

// Directory resolves a host email to a platform user id.
type Directory interface {
	LookupPersonID(ctx context.Context, siteURL, email string) (string, error)
}

// File is the on-disk layout of the sites file.
type File struct {
	Sites []models.SiteConfig `yaml:"sites"`
}

// Resolution is the outcome of matching a webhook to a site. Host is set when the
// webhook identified a configured host; Candidates is the ordered list of hosts to
// try when fetching metadata.
type Resolution struct {
	Site       models.SiteConfig
	Host       *models.RecordingHost
	Candidates []models.RecordingHost
}

// Registry is the in-memory site table. Safe for concurrent use.
type Registry struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	sites map[string]models.SiteConfig
	dir   Directory
}

// LoadFile reads and validates a sites file.
func LoadFile(path string) ([]models.SiteConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse sites file: %w", err)
	}
	if err := Validate(f.Sites); err != nil {
		return nil, err
	}
	return f.Sites, nil
}

// Validate checks required fields and site URL uniqueness.
func Validate(sites []models.SiteConfig) error {
	seen := make(map[string]bool, len(sites))
	for i, s := range sites {
		key := models.NormalizeSiteURL(s.SiteURL)
		if key == "" {
			return fmt.Errorf("sites[%d]: site_url is required", i)
		}
		if seen[key] {
			return fmt.Errorf("sites[%d]: duplicate site_url %q", i, s.SiteURL)
		}
		seen[key] = true
		if s.ClientIDRef == "" || s.ClientSecretRef == "" || s.RefreshTokenRef == "" {
			return fmt.Errorf("site %q: client_id_ref, client_secret_ref and refresh_token_ref are required", s.SiteURL)
		}
		for j, h := range s.RecordingHosts {
			if strings.TrimSpace(h.Email) == "" {
				return fmt.Errorf("site %q: recording_hosts[%d]: email is required", s.SiteURL, j)
			}
		}
	}
	return nil
}

// NewRegistry builds a registry from already loaded sites.
func NewRegistry(sites []models.SiteConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Validate(sites); err != nil {
		return nil, err
	}
	r := &Registry{logger: logger}
	r.sites = index(sites)
	return r, nil
}

// Open loads the sites file at path. The path is remembered for Reload and Watch.
func Open(path string, logger *zap.Logger) (*Registry, error) {
	sites, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := NewRegistry(sites, logger)
	if err != nil {
		return nil, err
	}
	r.path = path
	return r, nil
}

// SetDirectory installs the people directory used for lazy host id resolution.
func (r *Registry) SetDirectory(d Directory) {
	r.mu.Lock()
	r.dir = d
	r.mu.Unlock()
}

// Site returns the configuration for siteURL.
func (r *Registry) Site(siteURL string) (models.SiteConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sites[models.NormalizeSiteURL(siteURL)]
	return s, ok
}

// Sites returns every configured site.
func (r *Registry) Sites() []models.SiteConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SiteConfig, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	return out
}

// Reload re-reads the sites file. Host ids already resolved are carried over
// for hosts whose file entry has none.
func (r *Registry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("reload: registry has no backing file")
	}
	sites, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	next := index(sites)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, site := range next {
		old, ok := r.sites[key]
		if !ok {
			continue
		}
		for i, h := range site.RecordingHosts {
			if h.PlatformUserID != "" {
				continue
			}
			if prev := findByEmail(old.RecordingHosts, h.Email); prev >= 0 {
				site.RecordingHosts[i].PlatformUserID = old.RecordingHosts[prev].PlatformUserID
			}
		}
		next[key] = site
	}
	r.sites = next
	r.logger.Info("sites reloaded", zap.Int("count", len(next)))
	return nil
}

// ResolveSite matches a webhook to a configured site and host. A user id match
// wins over an email match. With no identity on the webhook every host of the
// site becomes a candidate. Returns NotConfiguredError when nothing matches.
func (r *Registry) ResolveSite(ctx context.Context, siteURL, hostUserID, hostEmail string) (*Resolution, error) {
	site, ok := r.Site(siteURL)
	if !ok {
		return nil, &apperrors.NotConfiguredError{SiteURL: siteURL}
	}
	if hostUserID == "" && hostEmail == "" {
		if len(site.RecordingHosts) == 0 {
			return nil, &apperrors.NotConfiguredError{SiteURL: siteURL}
		}
		return &Resolution{Site: site, Candidates: site.RecordingHosts}, nil
	}

	if hostUserID != "" {
		idx := findByUserID(site.RecordingHosts, hostUserID)
		if idx < 0 && r.resolveHostIDs(ctx, site) {
			site, _ = r.Site(siteURL)
			idx = findByUserID(site.RecordingHosts, hostUserID)
		}
		if idx >= 0 {
			return matched(site, idx), nil
		}
	}
	if hostEmail != "" {
		if idx := findByEmail(site.RecordingHosts, hostEmail); idx >= 0 {
			return matched(site, idx), nil
		}
	}
	return nil, &apperrors.NotConfiguredError{SiteURL: siteURL, HostUserID: hostUserID, HostEmail: hostEmail}
}

// resolveHostIDs looks up ids for hosts that have none. Reports whether any id was stored.
func (r *Registry) resolveHostIDs(ctx context.Context, site models.SiteConfig) bool {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()
	if dir == nil {
		return false
	}

	resolved := make(map[string]string)
	for _, h := range site.RecordingHosts {
		if h.PlatformUserID != "" {
			continue
		}
		id, err := dir.LookupPersonID(ctx, site.SiteURL, h.Email)
		if err != nil {
			r.logger.Warn("host id lookup failed", zap.String("site", site.SiteURL), zap.String("email", h.Email), zap.Error(err))
			continue
		}
		resolved[strings.ToLower(h.Email)] = id
	}
	if len(resolved) == 0 {
		return false
	}

	key := models.NormalizeSiteURL(site.SiteURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sites[key]
	if !ok {
		return false
	}
	hosts := make([]models.RecordingHost, len(cur.RecordingHosts))
	copy(hosts, cur.RecordingHosts)
	for i, h := range hosts {
		if id, ok := resolved[strings.ToLower(h.Email)]; ok && h.PlatformUserID == "" {
			hosts[i].PlatformUserID = id
			r.logger.Info("host id resolved", zap.String("site", cur.SiteURL), zap.String("email", h.Email), zap.String("user_id", id))
		}
	}
	cur.RecordingHosts = hosts
	r.sites[key] = cur
	return true
}

func matched(site models.SiteConfig, idx int) *Resolution {
	host := site.RecordingHosts[idx]
	return &Resolution{Site: site, Host: &host, Candidates: []models.RecordingHost{host}}
}

func findByUserID(hosts []models.RecordingHost, id string) int {
	for i, h := range hosts {
		if h.PlatformUserID != "" && h.PlatformUserID == id {
			return i
		}
	}
	return -1
}

func findByEmail(hosts []models.RecordingHost, email string) int {
	email = strings.TrimSpace(email)
	for i, h := range hosts {
		if strings.EqualFold(strings.TrimSpace(h.Email), email) {
			return i
		}
	}
	return -1
}

func index(sites []models.SiteConfig) map[string]models.SiteConfig {
	m := make(map[string]models.SiteConfig, len(sites))
	for _, s := range sites {
		m[models.NormalizeSiteURL(s.SiteURL)] = s
	}
	return m
}
