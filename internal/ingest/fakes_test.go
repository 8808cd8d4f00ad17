package ingest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/apperrors"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/platform"
	"github.com/Netsync-Automation/PracticeTools-sub004/internal/sites"
)

type fakeTokens struct {
	mu          sync.Mutex
	err         error
	invalidated int
}

func (f *fakeTokens) GetValidToken(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

func (f *fakeTokens) Invalidate(string) {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

// fakePlatform serves metadata per recording id. If hostOnly is set for a recording,
// only that host email may see it.
type fakePlatform struct {
	mu        sync.Mutex
	details   map[string]*platform.RecordingDetails
	hostOnly  map[string]string
	files     map[string]string
	metaCalls int
	hostsSeen []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		details:  make(map[string]*platform.RecordingDetails),
		hostOnly: make(map[string]string),
		files:    make(map[string]string),
	}
}

func (f *fakePlatform) addRecording(id, meetingID, mediaLink, transcriptLink string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[id] = &platform.RecordingDetails{
		ID:         id,
		MeetingID:  meetingID,
		Topic:      "Weekly sync",
		CreateTime: time.Date(2024, 1, 27, 17, 0, 0, 0, time.UTC),
		TemporaryDirectDownloadLinks: &platform.DownloadLinks{
			RecordingDownloadLink:  mediaLink,
			TranscriptDownloadLink: transcriptLink,
		},
	}
}

func (f *fakePlatform) setTranscriptLink(id, link string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[id].TemporaryDirectDownloadLinks.TranscriptDownloadLink = link
}

func (f *fakePlatform) GetRecording(_ context.Context, _, id, hostEmail string) (*platform.RecordingDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metaCalls++
	f.hostsSeen = append(f.hostsSeen, hostEmail)
	d, ok := f.details[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if only, ok := f.hostOnly[id]; ok && only != hostEmail {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	links := *d.TemporaryDirectDownloadLinks
	cp.TemporaryDirectDownloadLinks = &links
	return &cp, nil
}

func (f *fakePlatform) Download(_ context.Context, _, link string) (*platform.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.files[link]
	if !ok {
		return nil, &apperrors.TransientNetworkError{Op: "download", Status: 503}
	}
	return &platform.Download{Body: io.NopCloser(bytes.NewReader([]byte(body))), Size: int64(len(body))}, nil
}

func (f *fakePlatform) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metaCalls
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string]string
	puts    int
}

func (m *memBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string]string)
	}
	m.objects[key] = string(raw)
	m.puts++
	return "blob://" + key, nil
}

// hangingPlatform never answers metadata requests before ctx is done.
type hangingPlatform struct {
	*fakePlatform
}

func (p hangingPlatform) GetRecording(ctx context.Context, _, _, _ string) (*platform.RecordingDetails, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// cancelAfterPut cancels the caller's context once the object is written.
type cancelAfterPut struct {
	*memBlobs
	cancel context.CancelFunc
}

func (b cancelAfterPut) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	url, err := b.memBlobs.Put(ctx, key, body, size, contentType)
	b.cancel()
	return url, err
}

type memRecordings struct {
	mu   sync.Mutex
	recs map[string]*models.Recording
}

func newMemRecordings() *memRecordings {
	return &memRecordings{recs: make(map[string]*models.Recording)}
}

func (m *memRecordings) Upsert(_ context.Context, rec *models.Recording) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[rec.ID]
	if !ok {
		cp := *rec
		cp.TranscriptStatus = models.TranscriptStatusPending
		cp.CreatedAt = time.Now()
		m.recs[rec.ID] = &cp
		*rec = cp
		return true, nil
	}
	cur.MediaURL, cur.MediaKey, cur.ContentType, cur.FileSize = rec.MediaURL, rec.MediaKey, rec.ContentType, rec.FileSize
	if rec.Topic != "" {
		cur.Topic = rec.Topic
	}
	*rec = *cur
	return false, nil
}

func (m *memRecordings) ListByMeeting(_ context.Context, meetingID string) ([]models.Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Recording
	for _, r := range m.recs {
		if r.MeetingID == meetingID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRecordings) SaveTranscript(ctx context.Context, id, text, url, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.TranscriptText, r.TranscriptURL, r.TranscriptKey = text, url, key
	r.TranscriptStatus = models.TranscriptStatusAvailable
	r.NextTranscriptRetryAt = nil
	return nil
}

func (m *memRecordings) SaveTranscriptRetry(ctx context.Context, id string, count int, status string, next *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.TranscriptRetryCount, r.TranscriptStatus, r.NextTranscriptRetryAt = count, status, next
	return nil
}

func (m *memRecordings) get(id string) (models.Recording, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return models.Recording{}, false
	}
	return *r, true
}

func (m *memRecordings) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type memActivity struct {
	mu      sync.Mutex
	entries []models.WebhookLogEntry
}

func (m *memActivity) Append(_ context.Context, e *models.WebhookLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memActivity) last(t *testing.T) models.WebhookLogEntry {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.entries)
	return m.entries[len(m.entries)-1]
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(ev models.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *capturePublisher) ofType(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	worker   *Worker
	platform *fakePlatform
	tokens   *fakeTokens
	blobs    *memBlobs
	recs     *memRecordings
	activity *memActivity
	events   *capturePublisher
	clock    *time.Time
}

const testSiteURL = "s1.webex.com"

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	registry, err := sites.NewRegistry([]models.SiteConfig{{
		SiteURL:         testSiteURL,
		ClientIDRef:     "s1/id",
		ClientSecretRef: "s1/secret",
		RefreshTokenRef: "s1/refresh",
		RecordingHosts: []models.RecordingHost{
			{Email: "alice@s1.com", PlatformUserID: "u1"},
			{Email: "bob@s1.com", PlatformUserID: "u2"},
		},
	}}, nil)
	require.NoError(t, err)

	h := &harness{
		platform: newFakePlatform(),
		tokens:   &fakeTokens{},
		blobs:    &memBlobs{},
		recs:     newMemRecordings(),
		activity: &memActivity{},
		events:   &capturePublisher{},
	}
	h.worker, err = NewWorker(Deps{
		Sites:      registry,
		Tokens:     h.tokens,
		Platform:   h.platform,
		Blobs:      h.blobs,
		Recordings: h.recs,
		Activity:   h.activity,
		Events:     h.events,
	}, opts, nil)
	require.NoError(t, err)

	clock := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	h.clock = &clock
	h.worker.now = func() time.Time { return *h.clock }
	return h
}

func recordingPayload(id, hostUserID, hostEmail string) *WebhookPayload {
	return &WebhookPayload{
		Resource: ResourceRecordings,
		Event:    "created",
		Data: WebhookData{
			ID:         id,
			MeetingID:  "m-" + id,
			SiteURL:    "https://" + testSiteURL,
			HostUserID: hostUserID,
			HostEmail:  hostEmail,
		},
	}
}
