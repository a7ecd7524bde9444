package models

import (
	"time"

	"gorm.io/datatypes"
)

// FeatureCategories is the closed set of catalog categories.
var FeatureCategories = []string{
	"Ask Dwiju",
	"Dwiju Teacher",
	"Dwiju Doctor",
	"Dwiju Supreme Judge",
	"Dwiju Farmer",
	"Dwiju Business",
	"Dwiju Entertainment",
	"Dwiju Home",
	"Dwiju Travel",
	"Dwiju Security",
	"Dwiju Developer",
	"Dwiju Research",
	"Dwiju Social",
	"Dwiju Advanced",
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	for _, known := range FeatureCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Feature is a catalog entry describing one assistant capability.
type Feature struct {
	ID          int                         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Title       string                      `gorm:"size:200;not null" json:"title"`
	Description string                      `gorm:"type:text;not null" json:"description"`
	Category    string                      `gorm:"size:64;not null;index" json:"category"`
	Tags        datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`
	Active      bool                        `gorm:"not null;index" json:"isActive"`
	Locked      bool                        `gorm:"not null" json:"isLocked"`
	Priority    int                         `gorm:"not null;default:0" json:"priority"`
	Version     string                      `gorm:"size:32" json:"version"`
	CreatedBy   string                      `gorm:"size:36" json:"createdBy,omitempty"`
	UpdatedBy   string                      `gorm:"size:36" json:"updatedBy,omitempty"`
	Metadata    datatypes.JSONMap           `gorm:"type:jsonb" json:"metadata"`
	Slug        string                      `gorm:"-" json:"slug"`
	CreatedAt   time.Time                   `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// FeatureInput is the writable part of a feature.
type FeatureInput struct {
	ID          int            `json:"id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Tags        []string       `json:"tags,omitempty"`
	Active      *bool          `json:"isActive,omitempty"`
	Locked      *bool          `json:"isLocked,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	Version     string         `json:"version,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FeaturePatch is a partial update. Nil fields are left unchanged.
type FeaturePatch struct {
	Title       *string        `json:"title,omitempty"`
	Description *string        `json:"description,omitempty"`
	Category    *string        `json:"category,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Active      *bool          `json:"isActive,omitempty"`
	Locked      *bool          `json:"isLocked,omitempty"`
	Priority    *int           `json:"priority,omitempty"`
	Version     *string        `json:"version,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// BulkImportRequest is the body of POST /api/features/bulk-import
type BulkImportRequest struct {
	Features  []FeatureInput `json:"features"`
	Overwrite bool           `json:"overwrite"`
}

// BulkImportResult reports a bulk import.
type BulkImportResult struct {
	Imported int               `json:"imported"`
	Skipped  int               `json:"skipped"`
	Errors   []BulkImportError `json:"errors"`
}

// BulkImportError describes one rejected item.
type BulkImportError struct {
	ID    int    `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Error string `json:"error"`
}

// CategoryGroup is one entry of the categories listing.
type CategoryGroup struct {
	Category string           `json:"category"`
	Count    int              `json:"count"`
	Features []FeatureSummary `json:"features"`
}

// FeatureSummary is a feature reduced for category listings.
type FeatureSummary struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
