package params

import (
	"context"
	"errors"
	"fmt"

	"task-tracker-api/internal/models"

	"gorm.io/gorm"
)

var ErrParameterNotFound = errors.New("parameter not found")

// Service is the admin surface over system_parameters.
type Service struct {
	db       *gorm.DB
	registry *Registry
}

func NewService(db *gorm.DB, registry *Registry) *Service {
	return &Service{db: db, registry: registry}
}

func (s *Service) List(ctx context.Context) ([]models.SystemParameter, error) {
	var rows []models.SystemParameter
	if err := s.db.WithContext(ctx).Order("category, param_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("params: list: %w", err)
	}
	return rows, nil
}

func (s *Service) ByCategory(ctx context.Context, category string) ([]models.SystemParameter, error) {
	var rows []models.SystemParameter
	if err := s.db.WithContext(ctx).Where("category = ?", category).Order("param_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("params: list %s: %w", category, err)
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, key string) (models.SystemParameter, error) {
	var row models.SystemParameter
	err := s.db.WithContext(ctx).Where("param_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, ErrParameterNotFound
	}
	if err != nil {
		return row, fmt.Errorf("params: get %s: %w", key, err)
	}
	return row, nil
}

// Update validates value against the row's declared type, stores it and
// refreshes the registry so the next read sees it.
func (s *Service) Update(ctx context.Context, key, value string) (models.SystemParameter, error) {
	row, err := s.Get(ctx, key)
	if err != nil {
		return row, err
	}
	if _, err := Parse(row.ValueType, value); err != nil {
		return row, err
	}
	if err := s.db.WithContext(ctx).Model(&row).Update("value", value).Error; err != nil {
		return row, fmt.Errorf("params: update %s: %w", key, err)
	}
	row.Value = value
	if err := s.registry.ForceRefresh(ctx); err != nil {
		return row, err
	}
	return row, nil
}

// Refresh forces a registry reload.
func (s *Service) Refresh(ctx context.Context) error {
	return s.registry.ForceRefresh(ctx)
}
