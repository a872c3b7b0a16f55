package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeEmail canonicalizes an email for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Plan is the stored subscription plan of a user.
type Plan string

const (
	PlanNone        Plan = "none"
	PlanClient      Plan = "client"
	PlanEmpresarial Plan = "empresarial"
)

// Role is the coarse authorization role derived from a plan.
type Role string

const (
	RoleClient      Role = "client"
	RoleEmpresarial Role = "empresarial"
)

// RoleForPlan derives the role from a stored plan value. Any value other
// than "empresarial" (including "none", the zero value and arbitrary
// strings) maps to client. The role is never stored: it is recomputed per
// request so a billing change takes effect immediately.
func RoleForPlan(p Plan) Role {
	if p == PlanEmpresarial {
		return RoleEmpresarial
	}
	return RoleClient
}

// IntegrationConfig carries the connection settings of an external database
// integration. The URI is a user-supplied MongoDB connection string and must
// never be echoed to other tenants.
type IntegrationConfig struct {
	URI string `bson:"uri" json:"uri,omitempty"`
}

// Integration is one external database connection configured by a user.
type Integration struct {
	ID        string             `bson:"id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Connected bool               `bson:"connected" json:"connected"`
	Config    *IntegrationConfig `bson:"config,omitempty" json:"config,omitempty"`
}

// Usable reports whether the integration can be dialed.
func (i *Integration) Usable() bool {
	return i != nil && i.Connected && i.Config != nil && i.Config.URI != ""
}

// User is an application account.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Email    string             `bson:"email" json:"email"`
	Password string             `bson:"password" json:"-"`
	Image    string             `bson:"image,omitempty" json:"image,omitempty"`

	Plan Plan `bson:"plan" json:"plan"`

	// Billing fields, mutated only by the activation flow.
	PlanPaidAt              *time.Time `bson:"planPaidAt,omitempty" json:"planPaidAt,omitempty"`
	PlanExpiresAt           *time.Time `bson:"planExpiresAt,omitempty" json:"planExpiresAt,omitempty"`
	PlanLastTransactionHash string     `bson:"planLastTransactionHash,omitempty" json:"-"`
	PlanExternalID          string     `bson:"planExternalId,omitempty" json:"-"`

	Integrations []Integration `bson:"integrations" json:"integrations,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Role returns the coarse role for this user.
func (u *User) Role() Role { return RoleForPlan(u.Plan) }

// PlanActive reports whether the plan grants access at the given instant:
// plan set and not yet expired.
func (u *User) PlanActive(now time.Time) bool {
	return u.Plan != "" && u.Plan != PlanNone &&
		u.PlanExpiresAt != nil && u.PlanExpiresAt.After(now)
}

// Integration returns the integration with the given id, or nil.
func (u *User) Integration(id string) *Integration {
	for i := range u.Integrations {
		if u.Integrations[i].ID == id {
			return &u.Integrations[i]
		}
	}
	return nil
}
