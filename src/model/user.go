package model

import "time"

// User is the read-only identity supplied by the platform's auth and KYC
// collaborators. This engine never writes back to it; KYCCompleted gates
// market orders and dynamic pricing.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:100;uniqueIndex" json:"username"`
	KYCCompleted bool      `gorm:"column:kyc_completed" json:"kyc_completed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for users.
func (User) TableName() string {
	return "users"
}
