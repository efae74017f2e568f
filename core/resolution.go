package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// ResolutionMode controls the initial status of generated items.
type ResolutionMode string

const (
	// ResolutionAuto approves generated items immediately, except CRM actions.
	ResolutionAuto ResolutionMode = "auto"
	// ResolutionPropose leaves every generated item pending.
	ResolutionPropose ResolutionMode = "propose"
	// ResolutionNone skips resolution generation.
	ResolutionNone ResolutionMode = "none"
)

// Valid reports whether m is a known resolution mode.
func (m ResolutionMode) Valid() bool {
	return m == ResolutionAuto || m == ResolutionPropose || m == ResolutionNone
}

// ItemType tags the payload of a resolution item.
type ItemType string

const (
	ItemMission  ItemType = "mission"
	ItemProject  ItemType = "project"
	ItemDocument ItemType = "document"
	ItemCRM      ItemType = "crm"
	ItemFollowUp ItemType = "follow_up"
	ItemEvent    ItemType = "event"
	ItemQuote    ItemType = "quote"
)

// ItemTypes lists every known item type.
var ItemTypes = []ItemType{ItemMission, ItemProject, ItemDocument, ItemCRM, ItemFollowUp, ItemEvent, ItemQuote}

// ItemStatus is the lifecycle status of a resolution item.
// pending -> approved|rejected; approved -> created. created and rejected are terminal.
type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemApproved ItemStatus = "approved"
	ItemRejected ItemStatus = "rejected"
	ItemCreated  ItemStatus = "created"
)

// ExtractionOutcome records how the structured extraction went.
type ExtractionOutcome string

const (
	ExtractionOK        ExtractionOutcome = "ok"
	ExtractionEmpty     ExtractionOutcome = "empty"
	ExtractionMalformed ExtractionOutcome = "malformed"
	ExtractionSkipped   ExtractionOutcome = "skipped"
)

// ErrInvalidPayload is returned when a payload misses required fields or its
// type tag is unknown.
var ErrInvalidPayload = errors.New("invalid resolution payload")

// ItemExecutor performs the domain side effect for each item type and returns
// the created record's ID. key is the item ID and must be used by
// implementations to make retries idempotent.
//
// Every payload type dispatches to exactly one method, so adding an item type
// requires extending this interface and every implementation.
type ItemExecutor interface {
	CreateMission(ctx context.Context, key string, p MissionPayload) (string, error)
	CreateProject(ctx context.Context, key string, p ProjectPayload) (string, error)
	CreateDocument(ctx context.Context, key string, p DocumentPayload) (string, error)
	ApplyCRM(ctx context.Context, key string, p CRMPayload) (string, error)
	ScheduleFollowUp(ctx context.Context, key string, p FollowUpPayload) (string, error)
	ScheduleEvent(ctx context.Context, key string, p EventPayload) (string, error)
	CreateQuote(ctx context.Context, key string, p QuotePayload) (string, error)
}

// Payload is the closed sum type of item payloads.
type Payload interface {
	Kind() ItemType
	Validate() error
	dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error)
}

// MissionPayload is a task to be assigned.
type MissionPayload struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

func (MissionPayload) Kind() ItemType { return ItemMission }

func (p MissionPayload) Validate() error { return requireField("title", p.Title) }

func (p MissionPayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.CreateMission(ctx, key, p)
}

// ProjectPayload groups work under a named project.
type ProjectPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Milestones  []string `json:"milestones,omitempty"`
}

func (ProjectPayload) Kind() ItemType { return ItemProject }

func (p ProjectPayload) Validate() error { return requireField("name", p.Name) }

func (p ProjectPayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.CreateProject(ctx, key, p)
}

// DocumentPayload requests a document draft.
type DocumentPayload struct {
	Title   string   `json:"title"`
	Format  string   `json:"format,omitempty"`
	Outline []string `json:"outline,omitempty"`
}

func (DocumentPayload) Kind() ItemType { return ItemDocument }

func (p DocumentPayload) Validate() error { return requireField("title", p.Title) }

func (p DocumentPayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.CreateDocument(ctx, key, p)
}

// CRMPayload mutates a CRM record. Never auto-approved.
type CRMPayload struct {
	Action   string            `json:"action"`
	Entity   string            `json:"entity"`
	EntityID string            `json:"entity_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func (CRMPayload) Kind() ItemType { return ItemCRM }

func (p CRMPayload) Validate() error {
	if err := requireField("action", p.Action); err != nil {
		return err
	}
	return requireField("entity", p.Entity)
}

func (p CRMPayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.ApplyCRM(ctx, key, p)
}

// FollowUpPayload schedules a follow-up touchpoint.
type FollowUpPayload struct {
	Subject string `json:"subject"`
	Owner   string `json:"owner,omitempty"`
	DueDate string `json:"due_date,omitempty"`
	Channel string `json:"channel,omitempty"`
}

func (FollowUpPayload) Kind() ItemType { return ItemFollowUp }

func (p FollowUpPayload) Validate() error { return requireField("subject", p.Subject) }

func (p FollowUpPayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.ScheduleFollowUp(ctx, key, p)
}

// EventPayload schedules a meeting or session.
type EventPayload struct {
	Title           string   `json:"title"`
	StartsAt        string   `json:"starts_at,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Attendees       []string `json:"attendees,omitempty"`
}

func (EventPayload) Kind() ItemType { return ItemEvent }

func (p EventPayload) Validate() error { return requireField("title", p.Title) }

func (p EventPayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.ScheduleEvent(ctx, key, p)
}

// QuoteLine is one priced line of a quote.
type QuoteLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// QuotePayload drafts a quote for a client.
type QuotePayload struct {
	Client   string      `json:"client"`
	Currency string      `json:"currency,omitempty"`
	Lines    []QuoteLine `json:"lines,omitempty"`
}

func (QuotePayload) Kind() ItemType { return ItemQuote }

func (p QuotePayload) Validate() error { return requireField("client", p.Client) }

func (p QuotePayload) dispatch(ctx context.Context, ex ItemExecutor, key string) (string, error) {
	return ex.CreateQuote(ctx, key, p)
}

// Total returns the sum of all quote lines.
func (p QuotePayload) Total() float64 {
	var total float64
	for _, l := range p.Lines {
		total += l.Quantity * l.UnitPrice
	}
	return total
}

func requireField(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidPayload, field)
	}
	return nil
}

// Dispatch routes an item's payload to the matching executor method using the
// item ID as idempotency key.
func Dispatch(ctx context.Context, ex ItemExecutor, item ResolutionItem) (string, error) {
	if item.Payload == nil {
		return "", fmt.Errorf("%w: item %s has no payload", ErrInvalidPayload, item.ID)
	}
	return item.Payload.dispatch(ctx, ex, item.ID)
}

// DecodePayload decodes raw JSON into the payload type named by t. With
// strict set, unknown fields are rejected.
func DecodePayload(t ItemType, raw json.RawMessage, strict bool) (Payload, error) {
	var p Payload
	var err error
	switch t {
	case ItemMission:
		p, err = decodeInto[MissionPayload](raw, strict)
	case ItemProject:
		p, err = decodeInto[ProjectPayload](raw, strict)
	case ItemDocument:
		p, err = decodeInto[DocumentPayload](raw, strict)
	case ItemCRM:
		p, err = decodeInto[CRMPayload](raw, strict)
	case ItemFollowUp:
		p, err = decodeInto[FollowUpPayload](raw, strict)
	case ItemEvent:
		p, err = decodeInto[EventPayload](raw, strict)
	case ItemQuote:
		p, err = decodeInto[QuotePayload](raw, strict)
	default:
		return nil, fmt.Errorf("%w: unknown item type %q", ErrInvalidPayload, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrInvalidPayload, t, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s payload: %w", t, err)
	}
	return p, nil
}

func decodeInto[T Payload](raw json.RawMessage, strict bool) (Payload, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// ResolutionItem is one proposed follow-up work item.
type ResolutionItem struct {
	ID            string     `json:"id"`
	Type          ItemType   `json:"type"`
	Status        ItemStatus `json:"status"`
	Payload       Payload    `json:"-"`
	SourceExcerpt string     `json:"source_excerpt,omitempty"`
	CreatedID     string     `json:"created_id,omitempty"`
	Error         string     `json:"error,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type itemJSON struct {
	ID            string          `json:"id"`
	Type          ItemType        `json:"type"`
	Status        ItemStatus      `json:"status"`
	Payload       json.RawMessage `json:"payload"`
	SourceExcerpt string          `json:"source_excerpt,omitempty"`
	CreatedID     string          `json:"created_id,omitempty"`
	Error         string          `json:"error,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarshalJSON encodes the payload under "payload" next to its type tag.
func (i ResolutionItem) MarshalJSON() ([]byte, error) {
	raw := json.RawMessage("null")
	if i.Payload != nil {
		b, err := json.Marshal(i.Payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return json.Marshal(itemJSON{
		ID: i.ID, Type: i.Type, Status: i.Status, Payload: raw,
		SourceExcerpt: i.SourceExcerpt, CreatedID: i.CreatedID, Error: i.Error, UpdatedAt: i.UpdatedAt,
	})
}

// UnmarshalJSON decodes the payload according to the type tag.
func (i *ResolutionItem) UnmarshalJSON(data []byte) error {
	var aux itemJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*i = ResolutionItem{
		ID: aux.ID, Type: aux.Type, Status: aux.Status,
		SourceExcerpt: aux.SourceExcerpt, CreatedID: aux.CreatedID, Error: aux.Error, UpdatedAt: aux.UpdatedAt,
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		return nil
	}
	p, err := DecodePayload(aux.Type, aux.Payload, false)
	if err != nil {
		return err
	}
	i.Payload = p
	return nil
}

// Clone copies the item including reference-typed payload fields.
func (i ResolutionItem) Clone() ResolutionItem {
	switch p := i.Payload.(type) {
	case ProjectPayload:
		p.Milestones = slices.Clone(p.Milestones)
		i.Payload = p
	case DocumentPayload:
		p.Outline = slices.Clone(p.Outline)
		i.Payload = p
	case CRMPayload:
		p.Fields = maps.Clone(p.Fields)
		i.Payload = p
	case EventPayload:
		p.Attendees = slices.Clone(p.Attendees)
		i.Payload = p
	case QuotePayload:
		p.Lines = slices.Clone(p.Lines)
		i.Payload = p
	}
	return i
}

// ResolutionPackage is the set of follow-up items extracted from a closed session.
type ResolutionPackage struct {
	Items       []ResolutionItem  `json:"items"`
	Mode        ResolutionMode    `json:"mode"`
	Extraction  ExtractionOutcome `json:"extraction"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Clone returns a deep copy.
func (p *ResolutionPackage) Clone() *ResolutionPackage {
	if p == nil {
		return nil
	}
	c := *p
	c.Items = make([]ResolutionItem, len(p.Items))
	for i, it := range p.Items {
		c.Items[i] = it.Clone()
	}
	return &c
}

// Item returns a pointer to the item with the given ID inside the package.
func (p *ResolutionPackage) Item(id string) (*ResolutionItem, bool) {
	for i := range p.Items {
		if p.Items[i].ID == id {
			return &p.Items[i], true
		}
	}
	return nil, false
}

// Count returns how many items are in the given status.
func (p *ResolutionPackage) Count(status ItemStatus) int {
	n := 0
	for _, it := range p.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}
