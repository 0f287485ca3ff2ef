package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/huugi-star/potenote-scanner-sub001/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is the per-user remote document body: everything except the
// two history subcollections.
type Document struct {
	Progression model.Progression          `json:"progression"`
	Inventory   []model.InventoryEntry     `json:"inventory"`
	Pity        model.GachaPity            `json:"pity"`
	Scans       map[string]*model.WordScan `json:"scans"`
	Dex         map[string]*model.DexEntry `json:"dex"`
}

// RemoteStore is the cloud document store boundary: one document per
// user plus two individually-keyed history subcollections. All writes
// are merge upserts keyed by the same ids used locally, so repeated
// sync attempts are idempotent.
type RemoteStore interface {
	LoadDocument(ctx context.Context, userID string) (*Document, bool, error)
	SaveDocument(ctx context.Context, userID string, doc *Document) error
	FetchHistory(ctx context.Context, userID string, kind model.HistoryKind, limit int) ([]model.HistoryRecord, error)
	UpsertHistory(ctx context.Context, userID string, kind model.HistoryKind, records []model.HistoryRecord) error
}

// GormRemote implements RemoteStore on a gorm database, standing in for
// the hosted document store behind the same interface.
type GormRemote struct {
	db *gorm.DB
}

// NewGormRemote creates a GormRemote.
func NewGormRemote(db *gorm.DB) *GormRemote {
	return &GormRemote{db: db}
}

func (r *GormRemote) LoadDocument(ctx context.Context, userID string) (*Document, bool, error) {
	var row model.UserDocument
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc Document
	if err := json.Unmarshal(row.Data, &doc); err != nil {
		return nil, false, fmt.Errorf("syncer: corrupt remote document for %s: %w", userID, err)
	}
	return &doc, true, nil
}

func (r *GormRemote) SaveDocument(ctx context.Context, userID string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	row := model.UserDocument{UserID: userID, Data: datatypes.JSON(data)}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

func (r *GormRemote) FetchHistory(ctx context.Context, userID string, kind model.HistoryKind, limit int) ([]model.HistoryRecord, error) {
	if kind == model.HistoryKindTranslation {
		var rows []model.TranslationHistoryDoc
		err := r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		records := make([]model.HistoryRecord, len(rows))
		for i, row := range rows {
			records[i] = model.HistoryRecord{
				ID:         row.ID,
				Kind:       kind,
				SourceText: row.SourceText,
				Payload:    json.RawMessage(row.Payload),
				CreatedAt:  row.CreatedAt,
			}
		}
		return records, nil
	}

	var rows []model.QuizHistoryDoc
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]model.HistoryRecord, len(rows))
	for i, row := range rows {
		records[i] = model.HistoryRecord{
			ID:         row.ID,
			Kind:       kind,
			SourceText: row.SourceText,
			Payload:    json.RawMessage(row.Payload),
			CreatedAt:  row.CreatedAt,
		}
	}
	return records, nil
}

func (r *GormRemote) UpsertHistory(ctx context.Context, userID string, kind model.HistoryKind, records []model.HistoryRecord) error {
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_text", "payload"}),
	}
	for _, rec := range records {
		if kind == model.HistoryKindTranslation {
			row := model.TranslationHistoryDoc{
				ID:         rec.ID,
				UserID:     userID,
				SourceText: rec.SourceText,
				Payload:    datatypes.JSON(rec.Payload),
				CreatedAt:  rec.CreatedAt,
			}
			if err := r.db.WithContext(ctx).Clauses(upsert).Create(&row).Error; err != nil {
				return err
			}
			continue
		}
		row := model.QuizHistoryDoc{
			ID:         rec.ID,
			UserID:     userID,
			SourceText: rec.SourceText,
			Payload:    datatypes.JSON(rec.Payload),
			CreatedAt:  rec.CreatedAt,
		}
		if err := r.db.WithContext(ctx).Clauses(upsert).Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}
