package dao

import (
	"context"
	"errors"

	"scholar/scholar/sources/db/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaperDAO struct {
	DB *gorm.DB
}

func NewPaperDAO(db *gorm.DB) *PaperDAO {
	return &PaperDAO{DB: db}
}

// UpsertPaper inserts the paper or refreshes the descriptive fields of the
// row with the same external id. The stored row is written back into paper.
func (dao *PaperDAO) UpsertPaper(ctx context.Context, paper *models.PaperMetadata) error {
	db := dao.DB.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "authors", "abstract", "pdf_url", "published", "updated_at"}),
	}).Create(paper).Error
	if err != nil {
		return err
	}
	return db.Where("external_id = ?", paper.ExternalID).First(paper).Error
}

func (dao *PaperDAO) GetPaperByID(ctx context.Context, id int) (*models.PaperMetadata, error) {
	var paper models.PaperMetadata
	err := dao.DB.WithContext(ctx).First(&paper, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &paper, nil
}

func (dao *PaperDAO) GetPapersByIDs(ctx context.Context, ids []int) ([]models.PaperMetadata, error) {
	var papers []models.PaperMetadata
	if len(ids) == 0 {
		return papers, nil
	}
	err := dao.DB.WithContext(ctx).Where("id IN ?", ids).Order("id asc").Find(&papers).Error
	return papers, err
}

func (dao *PaperDAO) ListPapers(ctx context.Context, limit, offset int) ([]models.PaperMetadata, error) {
	var papers []models.PaperMetadata
	err := dao.DB.WithContext(ctx).Order("updated_at desc").Limit(limit).Offset(offset).Find(&papers).Error
	return papers, err
}

func (dao *PaperDAO) SetStorageKey(ctx context.Context, id int, key string) error {
	return dao.DB.WithContext(ctx).Model(&models.PaperMetadata{}).Where("id = ?", id).Update("storage_key", key).Error
}
