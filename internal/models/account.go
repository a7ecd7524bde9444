package models

import (
	"time"
)

// Account roles.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// UsageKind names one of the per-account request counters.
type UsageKind string

const (
	UsageChat   UsageKind = "chatRequests"
	UsageVoice  UsageKind = "voiceRequests"
	UsageVision UsageKind = "visionRequests"
)

// Valid reports whether k is one of the known counters.
func (k UsageKind) Valid() bool {
	switch k {
	case UsageChat, UsageVoice, UsageVision:
		return true
	}
	return false
}

// Account represents a registered user
type Account struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"size:50;not null;uniqueIndex:idx_accounts_username" json:"username"`
	Email        string     `gorm:"size:255;not null;uniqueIndex:idx_accounts_email" json:"email"`
	PasswordHash string     `gorm:"column:password;not null" json:"-"` // Never return password in JSON
	Role         string     `gorm:"size:16;not null" json:"role"`
	Active       bool       `gorm:"not null" json:"isActive"`
	Verified     bool       `gorm:"not null" json:"isVerified"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	LoginCount   int        `gorm:"not null;default:0" json:"loginCount"`
	Profile      Profile    `gorm:"embedded;embeddedPrefix:profile_" json:"profile"`
	Usage        Usage      `gorm:"embedded;embeddedPrefix:usage_" json:"apiUsage"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Profile holds optional personalization settings.
type Profile struct {
	FirstName string `gorm:"size:100" json:"firstName,omitempty"`
	LastName  string `gorm:"size:100" json:"lastName,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Bio       string `gorm:"size:500" json:"bio,omitempty"`
	Language  string `gorm:"size:16" json:"language"`
	Timezone  string `gorm:"size:64" json:"timezone,omitempty"`
	Voice     string `gorm:"size:32" json:"voicePreference"`
	Theme     string `gorm:"size:8" json:"theme"`
}

// Usage counts requests since LastReset.
type Usage struct {
	ChatRequests   int64     `gorm:"not null;default:0" json:"chatRequests"`
	VoiceRequests  int64     `gorm:"not null;default:0" json:"voiceRequests"`
	VisionRequests int64     `gorm:"not null;default:0" json:"visionRequests"`
	LastReset      time.Time `json:"lastReset"`
}

// Column returns the storage column backing kind.
func (k UsageKind) Column() string {
	switch k {
	case UsageVoice:
		return "usage_voice_requests"
	case UsageVision:
		return "usage_vision_requests"
	default:
		return "usage_chat_requests"
	}
}

// RegisterRequest is the body of POST /api/auth/register
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RoleUpdateRequest is the body of PUT /api/admin/users/:id/role
type RoleUpdateRequest struct {
	Role string `json:"role"`
}

// ActiveUpdateRequest is the body of PUT /api/admin/users/:id/active
type ActiveUpdateRequest struct {
	Active *bool `json:"isActive"`
}
