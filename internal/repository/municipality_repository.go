package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/civic-report-api/internal/models"
)

// MunicipalityRepository reads municipality records owned by the administration module.
type MunicipalityRepository struct {
	db *sqlx.DB
}

// NewMunicipalityRepository constructs the repository.
func NewMunicipalityRepository(db *sqlx.DB) *MunicipalityRepository {
	return &MunicipalityRepository{db: db}
}

// FindByID returns a municipality by identifier. sql.ErrNoRows is returned unwrapped.
func (r *MunicipalityRepository) FindByID(ctx context.Context, id string) (*models.Municipality, error) {
	const query = `SELECT id, name, accepted_categories, boundary_min_lat, boundary_max_lat, boundary_min_lng, boundary_max_lng,
       active, created_at FROM municipalities WHERE id = $1 LIMIT 1`
	var municipality models.Municipality
	if err := r.db.GetContext(ctx, &municipality, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find municipality by id: %w", err)
	}
	return &municipality, nil
}
