package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/proktor-backend/internal/model"
)

// AdminRepository handles admin (proctor/operator) data access.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// GetByEmail retrieves an admin with their role name for login.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	a := &model.Admin{}
	err := r.pool.QueryRow(ctx,
		`SELECT a.id, a.email, a.name, a.password_hash, a.role_id, ro.name,
		        a.created_at, a.updated_at
		 FROM admins a
		 JOIN roles ro ON a.role_id = ro.id
		 WHERE a.email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.RoleID, &a.RoleName,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetPermissions retrieves the permission codes attached to a role.
func (r *AdminRepository) GetPermissions(ctx context.Context, roleID int) ([]string, error) {
	var permissions []string
	err := r.pool.QueryRow(ctx,
		`SELECT permissions FROM roles WHERE id = $1`, roleID).Scan(&permissions)
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

// Create inserts a new admin account. Used by the bootstrap CLI.
func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO admins (email, name, password_hash, role_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		a.Email, a.Name, a.PasswordHash, a.RoleID,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}
