package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/huugi-star/potenote-scanner-sub001/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotStore persists the state tree as a single versioned JSON
// snapshot row per storage key.
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// StorageKey returns the fixed local storage key for a user.
func StorageKey(userID string) string {
	return "user_state:" + userID
}

// Load reads the snapshot for key. Returns (nil, false, nil) when no
// snapshot exists yet.
func (s *SnapshotStore) Load(key string) (*model.UserState, bool, error) {
	var snap model.Snapshot
	err := s.db.Where("key = ?", key).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tree model.UserState
	if err := json.Unmarshal(snap.Data, &tree); err != nil {
		return nil, false, fmt.Errorf("state: corrupt snapshot %s: %w", key, err)
	}
	if tree.Version > model.StateVersion {
		return nil, false, fmt.Errorf("state: snapshot %s has version %d, newer than supported %d",
			key, tree.Version, model.StateVersion)
	}
	normalize(&tree)
	return &tree, true, nil
}

// Save upserts the snapshot for key.
func (s *SnapshotStore) Save(key string, tree *model.UserState) error {
	tree.Version = model.StateVersion
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	snap := model.Snapshot{Key: key, Version: tree.Version, Data: datatypes.JSON(data)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"version", "data", "updated_at"}),
	}).Create(&snap).Error
}

// normalize re-creates nil maps/slices dropped by JSON round-trips.
func normalize(tree *model.UserState) {
	if tree.Progression.DailyCounters == nil {
		tree.Progression.DailyCounters = make(map[string]*model.DailyCounter)
	}
	if tree.Scans == nil {
		tree.Scans = make(map[string]*model.WordScan)
	}
	if tree.Dex == nil {
		tree.Dex = make(map[string]*model.DexEntry)
	}
}
