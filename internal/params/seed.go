package params

import (
	"context"
	"fmt"

	"task-tracker-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seed inserts every default whose key is absent. Existing rows are left alone.
func Seed(ctx context.Context, db *gorm.DB, defs []Default) (int, error) {
	inserted := 0
	for _, d := range defs {
		row := models.SystemParameter{
			Key:         d.Key,
			Value:       d.Value,
			ValueType:   d.Type,
			Category:    d.Category,
			Description: d.Description,
		}
		result := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "param_key"}},
			DoNothing: true,
		}).Create(&row)
		if result.Error != nil {
			return inserted, fmt.Errorf("params: seed %s: %w", d.Key, result.Error)
		}
		inserted += int(result.RowsAffected)
	}
	return inserted, nil
}
