package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockExecutor records executor calls for dispatch tests.
type MockExecutor struct{ mock.Mock }

func (m *MockExecutor) CreateMission(ctx context.Context, key string, p MissionPayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) CreateProject(ctx context.Context, key string, p ProjectPayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) CreateDocument(ctx context.Context, key string, p DocumentPayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) ApplyCRM(ctx context.Context, key string, p CRMPayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) ScheduleFollowUp(ctx context.Context, key string, p FollowUpPayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) ScheduleEvent(ctx context.Context, key string, p EventPayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func (m *MockExecutor) CreateQuote(ctx context.Context, key string, p QuotePayload) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}

func TestDispatch_RoutesByPayloadType(t *testing.T) {
	ex := &MockExecutor{}
	ex.On("ApplyCRM", mock.Anything, "item-1", mock.MatchedBy(func(p CRMPayload) bool {
		return p.Action == "update" && p.Fields["stage"] == "won"
	})).Return("crm-42", nil).Once()
	ex.On("CreateQuote", mock.Anything, "item-2", mock.Anything).Return("q-7", nil).Once()

	id, err := Dispatch(context.Background(), ex, ResolutionItem{
		ID:      "item-1",
		Type:    ItemCRM,
		Payload: CRMPayload{Action: "update", Entity: "deal", Fields: map[string]string{"stage": "won"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "crm-42", id)

	id, err = Dispatch(context.Background(), ex, ResolutionItem{
		ID:      "item-2",
		Type:    ItemQuote,
		Payload: QuotePayload{Client: "Acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "q-7", id)

	ex.AssertExpectations(t)
	ex.AssertNotCalled(t, "CreateMission", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_NoPayload(t *testing.T) {
	_, err := Dispatch(context.Background(), &MockExecutor{}, ResolutionItem{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		typ     ItemType
		raw     string
		strict  bool
		wantErr bool
	}{
		{name: "mission", typ: ItemMission, raw: `{"title":"Draft pilot plan","assignee":"ana"}`},
		{name: "missing required", typ: ItemMission, raw: `{"assignee":"ana"}`, wantErr: true},
		{name: "crm needs entity", typ: ItemCRM, raw: `{"action":"update"}`, wantErr: true},
		{name: "unknown type", typ: ItemType("memo"), raw: `{}`, wantErr: true},
		{name: "lenient unknown field", typ: ItemFollowUp, raw: `{"subject":"Call","mood":"good"}`},
		{name: "strict unknown field", typ: ItemFollowUp, raw: `{"subject":"Call","mood":"good"}`, strict: true, wantErr: true},
		{name: "bad json", typ: ItemEvent, raw: `{"title":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayload(tt.typ, json.RawMessage(tt.raw), tt.strict)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, p.Kind())
		})
	}
}

func TestResolutionItem_JSONRoundTripKeepsPayloadType(t *testing.T) {
	in := ResolutionItem{
		ID:      "i1",
		Type:    ItemEvent,
		Status:  ItemPending,
		Payload: EventPayload{Title: "Kickoff", Attendees: []string{"a", "b"}},
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"payload":{"title":"Kickoff"`)

	var out ResolutionItem
	require.NoError(t, json.Unmarshal(b, &out))
	ev, ok := out.Payload.(EventPayload)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, ev.Attendees)
}

func TestResolutionPackage_CloneItemCount(t *testing.T) {
	pkg := &ResolutionPackage{
		Mode: ResolutionPropose,
		Items: []ResolutionItem{
			{ID: "1", Type: ItemProject, Status: ItemPending, Payload: ProjectPayload{Name: "P", Milestones: []string{"m1"}}},
			{ID: "2", Type: ItemFollowUp, Status: ItemApproved, Payload: FollowUpPayload{Subject: "s"}},
		},
	}

	c := pkg.Clone()
	c.Items[0].Payload.(ProjectPayload).Milestones[0] = "changed"
	c.Items[1].Status = ItemCreated

	assert.Equal(t, "m1", pkg.Items[0].Payload.(ProjectPayload).Milestones[0])
	assert.Equal(t, 1, pkg.Count(ItemPending))
	assert.Equal(t, 1, pkg.Count(ItemApproved))

	it, ok := pkg.Item("2")
	require.True(t, ok)
	it.Status = ItemRejected
	assert.Equal(t, ItemRejected, pkg.Items[1].Status)

	_, ok = pkg.Item("missing")
	assert.False(t, ok)
	assert.Nil(t, (*ResolutionPackage)(nil).Clone())
}

func TestQuotePayload_Total(t *testing.T) {
	q := QuotePayload{Client: "Acme", Lines: []QuoteLine{{Quantity: 2, UnitPrice: 10}, {Quantity: 1, UnitPrice: 5.5}}}
	assert.InDelta(t, 25.5, q.Total(), 1e-9)
}

func TestResolutionMode_Valid(t *testing.T) {
	assert.True(t, ResolutionNone.Valid())
	assert.False(t, ResolutionMode("later").Valid())
	assert.True(t, RoutingSmart.Valid())
	assert.False(t, RoutingMode("random").Valid())
}
