package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest() *ItemRequest {
	return NewItemRequest("REQ-001", "EMP-WINDER", "EMP-STORE", []RequestLine{
		{MaterialID: "MAT-COPPER", Quantity: 5},
		{MaterialID: "MAT-BEARING", Quantity: 2},
	}, false, "")
}

// TestNewItemRequest tests request filing
func TestNewItemRequest(t *testing.T) {
	r := newTestRequest()

	require.NotNil(t, r)
	assert.Equal(t, "REQ-001", r.RequestID)
	assert.Equal(t, "EMP-WINDER", r.RequestedBy)
	assert.Equal(t, "EMP-STORE", r.StoreKeeperID)
	assert.Len(t, r.Lines, 2)
	assert.False(t, r.IsProcessRequest)
	assert.Nil(t, r.Approved)
	assert.Nil(t, r.Declined)
	assert.False(t, r.MaterialGiven)
	assert.False(t, r.IsDecided())

	require.Len(t, r.DomainEvents, 1)
	requested, ok := r.DomainEvents[0].(*MaterialRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, "EMP-WINDER", requested.RequestedBy)
	assert.Equal(t, "EMP-STORE", requested.StoreKeeperID)
}

// TestNewItemRequestForProcess tests the process linkage on a request
func TestNewItemRequestForProcess(t *testing.T) {
	r := NewItemRequest("REQ-002", "EMP-WINDER", "EMP-STORE", []RequestLine{
		{MaterialID: "MAT-COPPER", Quantity: 3},
	}, true, "PROC-9")

	assert.True(t, r.IsProcessRequest)
	assert.Equal(t, "PROC-9", r.ProcessID)

	requested, ok := r.DomainEvents[0].(*MaterialRequestedEvent)
	require.True(t, ok)
	assert.Equal(t, "PROC-9", requested.ProcessID)
}

// TestItemRequestDecide tests the set-once decision
func TestItemRequestDecide(t *testing.T) {
	tests := []struct {
		name         string
		setupRequest func() *ItemRequest
		decision     RequestDecision
		remarks      string
		expectError  error
	}{
		{
			name:         "Approve pending request",
			setupRequest: newTestRequest,
			decision:     DecisionApprove,
			expectError:  nil,
		},
		{
			name:         "Decline with remarks",
			setupRequest: newTestRequest,
			decision:     DecisionDecline,
			remarks:      "over budget",
			expectError:  nil,
		},
		{
			name:         "Decline requires remarks",
			setupRequest: newTestRequest,
			decision:     DecisionDecline,
			expectError:  ErrDeclineRemarksRequired,
		},
		{
			name: "Cannot decide twice",
			setupRequest: func() *ItemRequest {
				r := newTestRequest()
				require.NoError(t, r.Decide(DecisionApprove, "EMP-MGR", ""))
				return r
			},
			decision:    DecisionDecline,
			remarks:     "changed my mind",
			expectError: ErrRequestAlreadyProcessed,
		},
		{
			name: "Cannot approve after decline",
			setupRequest: func() *ItemRequest {
				r := newTestRequest()
				require.NoError(t, r.Decide(DecisionDecline, "EMP-MGR", "no stock"))
				return r
			},
			decision:    DecisionApprove,
			expectError: ErrRequestAlreadyProcessed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.setupRequest()
			err := r.Decide(tt.decision, "EMP-MGR", tt.remarks)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}

			require.NoError(t, err)
			assert.True(t, r.IsDecided())
			assert.Equal(t, "EMP-MGR", r.DecidedBy)

			switch tt.decision {
			case DecisionApprove:
				assert.True(t, *r.Approved)
				assert.False(t, *r.Declined)
			case DecisionDecline:
				assert.False(t, *r.Approved)
				assert.True(t, *r.Declined)
			}

			events := r.DomainEvents
			decided, ok := events[len(events)-1].(*RequestDecidedEvent)
			require.True(t, ok)
			assert.Equal(t, string(tt.decision), decided.Decision)
		})
	}
}

// TestItemRequestSanctionGate tests the hand-over preconditions
func TestItemRequestSanctionGate(t *testing.T) {
	tests := []struct {
		name         string
		setupRequest func() *ItemRequest
		expectError  error
	}{
		{
			name: "Approved request can be sanctioned",
			setupRequest: func() *ItemRequest {
				r := newTestRequest()
				require.NoError(t, r.Decide(DecisionApprove, "EMP-MGR", ""))
				return r
			},
			expectError: nil,
		},
		{
			name:         "Undecided request cannot",
			setupRequest: newTestRequest,
			expectError:  ErrRequestNotApproved,
		},
		{
			name: "Declined request cannot",
			setupRequest: func() *ItemRequest {
				r := newTestRequest()
				require.NoError(t, r.Decide(DecisionDecline, "EMP-MGR", "no"))
				return r
			},
			expectError: ErrRequestDeclined,
		},
		{
			name: "Already given cannot be sanctioned again",
			setupRequest: func() *ItemRequest {
				r := newTestRequest()
				require.NoError(t, r.Decide(DecisionApprove, "EMP-MGR", ""))
				r.MarkSanctioned()
				return r
			},
			expectError: ErrMaterialAlreadyGiven,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.setupRequest()
			err := r.CanSanction()

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestMarkSanctioned tests the hand-over record
func TestMarkSanctioned(t *testing.T) {
	r := newTestRequest()
	require.NoError(t, r.Decide(DecisionApprove, "EMP-MGR", ""))

	r.MarkSanctioned()

	assert.True(t, r.MaterialGiven)
	require.NotNil(t, r.SanctionedAt)

	events := r.DomainEvents
	sanctioned, ok := events[len(events)-1].(*MaterialSanctionedEvent)
	require.True(t, ok)
	assert.Equal(t, "EMP-WINDER", sanctioned.RequestedBy)
}

// TestNextStageFor tests flow resolution
func TestNextStageFor(t *testing.T) {
	flows := []StageFlow{
		{ProductName: "SOLAR PUMP SET", ItemType: ItemTypeService, CurrentStage: "Disassemble", NextStage: "Testing"},
		{ProductName: "SOLAR PUMP SET", ItemType: ItemTypeService, CurrentStage: "Winding", NextStage: "Testing"},
	}

	next, ok := NextStageFor(flows, "Disassemble")
	assert.True(t, ok)
	assert.Equal(t, "Testing", next)

	_, ok = NextStageFor(flows, "Testing")
	assert.False(t, ok)

	_, ok = NextStageFor(nil, "Disassemble")
	assert.False(t, ok)
}

// TestDefaultRoleProfiles tests the built-in role mapping
func TestDefaultRoleProfiles(t *testing.T) {
	profiles := DefaultRoleProfiles()

	disassemble, ok := profiles["Disassemble"]
	require.True(t, ok)
	assert.Equal(t, ItemTypeService, disassemble.ItemType)
	assert.Equal(t, StageDisassemble, disassemble.InitialStage)

	mpc, ok := profiles["MPC Work"]
	require.True(t, ok)
	assert.Equal(t, ItemTypeNew, mpc.ItemType)
	assert.Equal(t, "MPC Work", mpc.InitialStage)

	_, ok = profiles["Painter"]
	assert.False(t, ok)
}
