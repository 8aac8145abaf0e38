package repository

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, lookupErr(err, "user %d", id)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("LOWER(correo) = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, lookupErr(err, "user %s", email)
	}
	return &user, nil
}

// ExistsByEmail reports whether an account already uses email.
func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&models.User{}).
		Where("LOWER(correo) = ?", strings.ToLower(email)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return count > 0, nil
}

// Update updates a user.
func (r *UserRepository) Update(user *models.User) error {
	if err := r.db.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the login time.
func (r *UserRepository) UpdateLastLogin(id uint, at time.Time) error {
	return r.db.Model(&models.User{}).Where("id_usuario = ?", id).Update("ultimo_login", at).Error
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(id uint, hash string) error {
	if err := r.db.Model(&models.User{}).Where("id_usuario = ?", id).Update("password", hash).Error; err != nil {
		return fmt.Errorf("failed to update password for user %d: %w", id, err)
	}
	return nil
}

// SetActive toggles the active flag.
func (r *UserRepository) SetActive(id uint, active bool) error {
	res := r.db.Model(&models.User{}).Where("id_usuario = ?", id).Update("activo", active)
	if res.Error != nil {
		return fmt.Errorf("failed to update user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return lookupErr(errNotFound, "user %d", id)
	}
	return nil
}

// AddPoints atomically increments the point balance and recomputes the tier
// from the stored total.
func (r *UserRepository) AddPoints(id uint, points int) (*models.User, error) {
	var user models.User
	err := r.db.Transaction(func(tx *DB) error {
		res := tx.Model(&models.User{}).
			Where("id_usuario = ?", id).
			Update("puntos_acumulados", gorm.Expr("puntos_acumulados + ?", points))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.First(&user, id).Error; err != nil {
			return err
		}
		tier := models.TierForPoints(user.Points)
		if tier != user.Tier {
			user.Tier = tier
			return tx.Model(&models.User{}).Where("id_usuario = ?", id).Update("nivel_donante", tier).Error
		}
		return nil
	})
	if err != nil {
		return nil, lookupErr(err, "user %d", id)
	}
	return &user, nil
}

// List returns a page of users, optionally filtered by active flag.
func (r *UserRepository) List(p Pagination, active *bool) ([]models.User, int64, error) {
	query := r.db.Model(&models.User{})
	if active != nil {
		query = query.Where("activo = ?", *active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := query.Scopes(paginate(p)).Order("fecha_registro DESC").Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

// Search matches text against names, email and national id.
func (r *UserRepository) Search(text string, p Pagination) ([]models.User, int64, error) {
	like := "%" + strings.ToLower(text) + "%"
	query := r.db.Model(&models.User{}).
		Where("LOWER(nombres) LIKE ? OR LOWER(apellidos) LIKE ? OR LOWER(correo) LIKE ? OR cedula LIKE ?", like, like, like, like)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	if err := query.Scopes(paginate(p)).Order("apellidos ASC, nombres ASC").Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to search users: %w", err)
	}
	return users, total, nil
}

// CountByTier returns the number of users per donor tier.
func (r *UserRepository) CountByTier() (map[models.DonorTier]int64, error) {
	type row struct {
		Tier  models.DonorTier
		Count int64
	}

	var rows []row
	err := r.db.Model(&models.User{}).
		Select("nivel_donante AS tier, COUNT(*) AS count").
		Group("nivel_donante").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count users by tier: %w", err)
	}

	out := make(map[models.DonorTier]int64, len(rows))
	for _, row := range rows {
		out[row.Tier] = row.Count
	}
	return out, nil
}

// ListActive returns every active user.
func (r *UserRepository) ListActive() ([]models.User, error) {
	var users []models.User
	err := r.db.Where("activo = ?", true).Order("id_usuario ASC").Find(&users).Error
	return users, err
}
