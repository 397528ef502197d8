package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Groups []SubscriptionGroup `gorm:"foreignKey:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscriptionGroup links a subscription to a group code it follows.
type SubscriptionGroup struct {
	Endpoint  string `gorm:"primaryKey"`
	GroupCode string `gorm:"primaryKey;size:16;index"`
}
