package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/eventdesk/apiserver/types"
)

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]types.Category, error)
	Get(ctx context.Context, id int) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, id int) error
}

// CategoryService encapsulates category use-cases.
type CategoryService struct {
	repo CategoryRepository
}

func NewCategoryService(repo CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

const maxCategoryNameLen = 100

func (s *CategoryService) List(ctx context.Context) ([]types.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) Create(ctx context.Context, name string) (types.Category, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return types.Category{}, invalid("name", "This field is required.")
	case len([]rune(name)) > maxCategoryNameLen:
		return types.Category{}, invalid("name", fmt.Sprintf("Ensure this value has at most %d characters.", maxCategoryNameLen))
	}

	category, err := s.repo.Create(ctx, types.Category{Name: name})
	if err != nil {
		return types.Category{}, fromStoreError(err, "create category", "name", "Category with this Name already exists.")
	}
	return category, nil
}

// Delete removes a category together with its events.
func (s *CategoryService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}
