package resolution

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/extract"
)

var (
	// ErrNoExtraction is returned when the reply holds no JSON block at all.
	ErrNoExtraction = errors.New("no extraction block in reply")
	// ErrMalformedExtraction is returned when a block exists but violates the schema.
	ErrMalformedExtraction = errors.New("malformed extraction block")
)

type extraction struct {
	Items *[]extractedItem `json:"items"`
}

type extractedItem struct {
	Type          core.ItemType   `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	SourceExcerpt string          `json:"source_excerpt"`
}

// Extract parses the items of a fenced {"items":[...]} block. Unknown fields,
// unknown item types and payloads missing required fields make the whole
// block malformed. A well-formed block with no items yields an empty slice
// and no error. Extracted items are pending.
func Extract(text string) ([]core.ResolutionItem, error) {
	block, ok := extract.FencedJSON(text)
	if !ok {
		return nil, ErrNoExtraction
	}

	var ex extraction
	if err := extract.DecodeStrict(block, &ex); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	if ex.Items == nil {
		return nil, fmt.Errorf("%w: missing items", ErrMalformedExtraction)
	}

	now := time.Now().UTC()
	items := make([]core.ResolutionItem, 0, len(*ex.Items))
	for i, raw := range *ex.Items {
		if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
			return nil, fmt.Errorf("%w: item %d has no payload", ErrMalformedExtraction, i)
		}
		p, err := core.DecodePayload(raw.Type, raw.Payload, true)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrMalformedExtraction, i, err)
		}
		items = append(items, core.ResolutionItem{
			ID:            core.NewID(),
			Type:          p.Kind(),
			Status:        core.ItemPending,
			Payload:       p,
			SourceExcerpt: strings.TrimSpace(raw.SourceExcerpt),
			UpdatedAt:     now,
		})
	}
	return items, nil
}

// ApplyPolicy sets the initial status of freshly extracted items. In auto
// mode everything is approved except CRM actions, which stay pending.
func ApplyPolicy(items []core.ResolutionItem, mode core.ResolutionMode) []core.ResolutionItem {
	out := make([]core.ResolutionItem, len(items))
	for i, it := range items {
		it = it.Clone()
		it.Status = core.ItemPending
		if mode == core.ResolutionAuto && it.Type != core.ItemCRM {
			it.Status = core.ItemApproved
		}
		out[i] = it
	}
	return out
}
