package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/roundtable/core"
)

const threeItems = "Here is the package:\n```json\n" + `{"items": [
  {"type": "mission", "payload": {"title": "Draft pricing page", "assignee": "ben"}, "source_excerpt": "Ben will draft the page."},
  {"type": "mission", "payload": {"title": "Run pilot"}, "source_excerpt": "Let's pilot with two customers."},
  {"type": "crm", "payload": {"action": "update", "entity": "account", "fields": {"tier": "gold"}}, "source_excerpt": "Upgrade Acme to gold."}
]}` + "\n```"

func TestExtract(t *testing.T) {
	t.Run("typed items", func(t *testing.T) {
		items, err := Extract(threeItems)
		require.NoError(t, err)
		require.Len(t, items, 3)

		assert.Equal(t, core.ItemMission, items[0].Type)
		assert.Equal(t, core.ItemPending, items[0].Status)
		assert.NotEmpty(t, items[0].ID)
		assert.Equal(t, "Ben will draft the page.", items[0].SourceExcerpt)
		mission, ok := items[0].Payload.(core.MissionPayload)
		require.True(t, ok)
		assert.Equal(t, "ben", mission.Assignee)

		crm, ok := items[2].Payload.(core.CRMPayload)
		require.True(t, ok)
		assert.Equal(t, "gold", crm.Fields["tier"])
	})

	t.Run("empty block is success", func(t *testing.T) {
		items, err := Extract("```json\n{\"items\": []}\n```")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("no block", func(t *testing.T) {
		_, err := Extract("Nothing was agreed.")
		assert.ErrorIs(t, err, ErrNoExtraction)
	})

	malformed := map[string]string{
		"syntax":          "```json\n{\"items\": [\n```",
		"missing items":   "```json\n{}\n```",
		"unknown field":   "```json\n{\"items\": [], \"notes\": \"x\"}\n```",
		"unknown type":    "```json\n{\"items\": [{\"type\": \"invoice\", \"payload\": {}}]}\n```",
		"missing payload": "```json\n{\"items\": [{\"type\": \"mission\"}]}\n```",
		"missing title":   "```json\n{\"items\": [{\"type\": \"mission\", \"payload\": {\"assignee\": \"ben\"}}]}\n```",
		"unknown payload": "```json\n{\"items\": [{\"type\": \"mission\", \"payload\": {\"title\": \"x\", \"color\": \"red\"}}]}\n```",
	}
	for name, text := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(text)
			assert.ErrorIs(t, err, ErrMalformedExtraction)
		})
	}
}

func TestApplyPolicy(t *testing.T) {
	items, err := Extract(threeItems)
	require.NoError(t, err)

	auto := ApplyPolicy(items, core.ResolutionAuto)
	assert.Equal(t, core.ItemApproved, auto[0].Status)
	assert.Equal(t, core.ItemApproved, auto[1].Status)
	assert.Equal(t, core.ItemPending, auto[2].Status)

	propose := ApplyPolicy(items, core.ResolutionPropose)
	for _, it := range propose {
		assert.Equal(t, core.ItemPending, it.Status)
	}

	// input untouched
	assert.Equal(t, core.ItemPending, items[0].Status)
}
