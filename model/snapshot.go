package model

import (
	"time"

	"gorm.io/datatypes"
)

// Snapshot is the single versioned local save slot for a user's state
// tree, written on every mutating action and read once at startup.
type Snapshot struct {
	Key       string         `gorm:"primaryKey;size:128" json:"key"`
	Version   int            `gorm:"not null" json:"version"`
	Data      datatypes.JSON `json:"data"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Snapshot) TableName() string { return "snapshots" }
