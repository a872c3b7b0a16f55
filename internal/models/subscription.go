package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubscriptionKeys are the client-side encryption keys of a Web Push
// subscription.
type SubscriptionKeys struct {
	P256dh string `bson:"p256dh" json:"p256dh"`
	Auth   string `bson:"auth" json:"auth"`
}

// NotificationSubscription stores one push endpoint per user together with
// the status keys the user wants to be notified about.
type NotificationSubscription struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"-"`
	Endpoint  string             `bson:"endpoint" json:"endpoint"`
	Keys      SubscriptionKeys   `bson:"keys" json:"keys"`
	Statuses  []string           `bson:"statuses" json:"statuses"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}
