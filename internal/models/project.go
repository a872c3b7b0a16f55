package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectPaused   ProjectStatus = "paused"
	ProjectArchived ProjectStatus = "archived"
)

// ValidProjectStatus reports whether s is one of the known states.
func ValidProjectStatus(s ProjectStatus) bool {
	return s == ProjectActive || s == ProjectPaused || s == ProjectArchived
}

// LinkedClient is a client account granted access to a project, identified
// by email. Name and UserID are resolved opportunistically when a matching
// account exists at link time.
type LinkedClient struct {
	Email  string              `bson:"email" json:"email"`
	Name   string              `bson:"name,omitempty" json:"name,omitempty"`
	UserID *primitive.ObjectID `bson:"userId,omitempty" json:"-"`
}

// Project is owned by one empresarial user and grants linked clients access
// to the license collections linked to it.
type Project struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Slug          string             `bson:"slug" json:"slug"`
	Status        ProjectStatus      `bson:"status" json:"status"`
	Owner         primitive.ObjectID `bson:"owner" json:"-"`
	LinkedClients []LinkedClient     `bson:"linkedClients" json:"linkedClients"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// HasLinkedClient reports whether the given email (already lowercased)
// appears in the project's linked clients.
func (p *Project) HasLinkedClient(email string) bool {
	for _, c := range p.LinkedClients {
		if c.Email == email {
			return true
		}
	}
	return false
}
