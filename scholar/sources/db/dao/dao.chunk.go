package dao

import (
	"context"

	"scholar/scholar/sources/db/models"

	"gorm.io/gorm"
)

type ChunkDAO struct {
	DB *gorm.DB
}

func NewChunkDAO(db *gorm.DB) *ChunkDAO {
	return &ChunkDAO{DB: db}
}

// ReplaceChunks swaps a paper's chunks for a fresh set and marks the paper
// indexed, in one transaction.
func (dao *ChunkDAO) ReplaceChunks(ctx context.Context, paperID int, chunks []models.PaperChunk) error {
	return dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("paper_id = ?", paperID).Delete(&models.PaperChunk{}).Error; err != nil {
			return err
		}
		for i := range chunks {
			chunks[i].PaperID = paperID
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
				return err
			}
		}
		return tx.Model(&models.PaperMetadata{}).Where("id = ?", paperID).Update("indexed", len(chunks) > 0).Error
	})
}

func (dao *ChunkDAO) GetChunksForPapers(ctx context.Context, paperIDs []int) ([]models.PaperChunk, error) {
	var chunks []models.PaperChunk
	if len(paperIDs) == 0 {
		return chunks, nil
	}
	err := dao.DB.WithContext(ctx).Where("paper_id IN ?", paperIDs).Order("paper_id asc, ordinal asc").Find(&chunks).Error
	return chunks, err
}
