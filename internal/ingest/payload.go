package ingest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Netsync-Automation/PracticeTools-sub004/internal/models"
)

// Platform resource names.
const (
	ResourceRecordings  = "recordings"
	ResourceTranscripts = "meetingTranscripts"
)

//go:embed schemas/webhook.json
var webhookSchema []byte

const webhookSchemaURL = "https://practicetools.local/schemas/webhook.json"

// WebhookPayload is an inbound platform webhook delivery.
type WebhookPayload struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Resource  string      `json:"resource"`
	Event     string      `json:"event"`
	OrgID     string      `json:"orgId"`
	CreatedBy string      `json:"createdBy"`
	ActorID   string      `json:"actorId"`
	Data      WebhookData `json:"data"`
}

// WebhookData identifies the artifact the event is about. For transcript events ID is
// the transcript id and MeetingID links it to recordings.
type WebhookData struct {
	ID         string `json:"id"`
	MeetingID  string `json:"meetingId"`
	SiteURL    string `json:"siteUrl"`
	HostUserID string `json:"hostUserId"`
	HostEmail  string `json:"hostEmail"`
	Topic      string `json:"topic"`
	CreateTime string `json:"createTime"`
}

// CreatedAt parses CreateTime, returning the zero time when absent or malformed.
func (d WebhookData) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, d.CreateTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Validator checks webhook bodies against the embedded JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the webhook schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(webhookSchema))
	if err != nil {
		return nil, fmt.Errorf("parse webhook schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(webhookSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	sch, err := c.Compile(webhookSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Decode validates raw against the schema, checks that it carries the resource
// expected for webhookType, and decodes it.
func (v *Validator) Decode(webhookType string, raw []byte) (*WebhookPayload, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("invalid payload: %s", flatten(err))
	}
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if want := resourceFor(webhookType); p.Resource != want {
		return nil, fmt.Errorf("invalid payload: resource %q, want %q", p.Resource, want)
	}
	return &p, nil
}

func resourceFor(webhookType string) string {
	if webhookType == models.WebhookTypeTranscripts {
		return ResourceTranscripts
	}
	return ResourceRecordings
}

func flatten(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}
