package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session is a device session created at login. The token column holds the
// cookie JWT so the current session can be flagged and a revoked session's
// token can be blacklisted for its remaining lifetime.
type Session struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"userId" json:"-"`
	Device     string             `bson:"device" json:"device"`
	Location   string             `bson:"location" json:"location"`
	IP         string             `bson:"ip" json:"-"`
	Token      string             `bson:"token" json:"-"`
	LastActive time.Time          `bson:"lastActive" json:"lastActive"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
