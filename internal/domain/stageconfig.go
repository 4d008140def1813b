package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StageFlow is one hop of a product's configured stage sequence. Flows are
// keyed by product name and item type; a current stage with no configured
// next hop is terminal.
type StageFlow struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	ProductName  string             `bson:"productName"`
	ItemType     ItemType           `bson:"itemType"`
	CurrentStage string             `bson:"currentStage"`
	NextStage    string             `bson:"nextStage"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

// NextStageFor resolves the next stage from a set of flow rows. The second
// return value is false when the current stage has no outgoing hop.
func NextStageFor(flows []StageFlow, currentStage string) (string, bool) {
	for _, f := range flows {
		if f.CurrentStage == currentStage {
			return f.NextStage, true
		}
	}
	return "", false
}

// FailureRedirect maps a failure reason to the recovery stage the unit is
// rerouted to, per product and item type.
type FailureRedirect struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ProductName   string             `bson:"productName"`
	ItemType      ItemType           `bson:"itemType"`
	Reason        string             `bson:"reason"`
	RedirectStage string             `bson:"redirectStage"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

// RoleProfile binds an employee role to the item type and entry stage of the
// processes it registers.
type RoleProfile struct {
	ItemType     ItemType
	InitialStage string
}

// DefaultRoleProfiles returns the built-in role mapping. Deployments can
// extend it through configuration.
func DefaultRoleProfiles() map[string]RoleProfile {
	return map[string]RoleProfile{
		"Disassemble": {ItemType: ItemTypeService, InitialStage: StageDisassemble},
		"MPC Work":    {ItemType: ItemTypeNew, InitialStage: "MPC Work"},
	}
}
