package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// ErrOutOfStock is returned when a finite reward has no inventory left.
var ErrOutOfStock = errors.New("reward out of stock")

// ErrAlreadyAssigned is returned when the user already holds the reward.
var ErrAlreadyAssigned = errors.New("reward already assigned")

// RewardFilter narrows catalog listings.
type RewardFilter struct {
	Active *bool
	Type   *models.RewardType
}

// RewardRepository handles reward catalog and assignment operations.
type RewardRepository struct {
	db *DB
}

// NewRewardRepository creates a new reward repository.
func NewRewardRepository(db *DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// Create creates a new reward in the catalog.
func (r *RewardRepository) Create(reward *models.Reward) error {
	if err := r.db.Create(reward).Error; err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

// GetByID retrieves a reward by its ID.
func (r *RewardRepository) GetByID(id uint) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.First(&reward, id).Error; err != nil {
		return nil, lookupErr(err, "reward %d", id)
	}
	return &reward, nil
}

// GetByName retrieves a reward by its name.
func (r *RewardRepository) GetByName(name string) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.Where("nombre = ?", name).First(&reward).Error; err != nil {
		return nil, lookupErr(err, "reward %q", name)
	}
	return &reward, nil
}

// List retrieves a page of the catalog ordered by point cost.
func (r *RewardRepository) List(f RewardFilter, p Pagination) ([]models.Reward, int64, error) {
	query := r.db.Model(&models.Reward{})
	if f.Active != nil {
		query = query.Where("activa = ?", *f.Active)
	}
	if f.Type != nil {
		query = query.Where("tipo = ?", *f.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rewards: %w", err)
	}

	var rewards []models.Reward
	err := query.Scopes(paginate(p)).Order("puntos_requeridos ASC, id_recompensa ASC").Find(&rewards).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, total, nil
}

// Update updates an existing reward.
func (r *RewardRepository) Update(reward *models.Reward) error {
	if err := r.db.Save(reward).Error; err != nil {
		return fmt.Errorf("failed to update reward %d: %w", reward.ID, err)
	}
	return nil
}

// Delete deletes a reward by its ID.
func (r *RewardRepository) Delete(id uint) error {
	res := r.db.Delete(&models.Reward{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete reward %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return lookupErr(errNotFound, "reward %d", id)
	}
	return nil
}

// AvailableForUser returns active rewards the user can afford and does not hold yet.
func (r *RewardRepository) AvailableForUser(userID uint, points int) ([]models.Reward, error) {
	held := r.db.Model(&models.UserReward{}).Select("id_recompensa").Where("id_usuario = ?", userID)

	var rewards []models.Reward
	err := r.db.
		Where("activa = ? AND puntos_requeridos <= ?", true, points).
		Where("id_recompensa NOT IN (?)", held).
		Order("puntos_requeridos ASC, id_recompensa ASC").
		Find(&rewards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get available rewards for user %d: %w", userID, err)
	}
	return rewards, nil
}

// Assign inserts the assignment and takes one unit of finite inventory in the same transaction.
func (r *RewardRepository) Assign(ur *models.UserReward, finiteStock bool) error {
	return r.db.Transaction(func(tx *DB) error {
		if finiteStock {
			res := tx.Model(&models.Reward{}).
				Where("id_recompensa = ? AND cantidad_disponible > 0", ur.RewardID).
				Update("cantidad_disponible", gorm.Expr("cantidad_disponible - 1"))
			if res.Error != nil {
				return fmt.Errorf("failed to take inventory of reward %d: %w", ur.RewardID, res.Error)
			}
			if res.RowsAffected == 0 {
				return ErrOutOfStock
			}
		}

		if err := tx.Create(ur).Error; err != nil {
			if IsDuplicate(err) {
				return ErrAlreadyAssigned
			}
			return fmt.Errorf("failed to assign reward %d to user %d: %w", ur.RewardID, ur.UserID, err)
		}
		return nil
	})
}

// HasUserReward checks if a user holds a specific reward.
func (r *RewardRepository) HasUserReward(userID, rewardID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserReward{}).
		Where("id_usuario = ? AND id_recompensa = ?", userID, rewardID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CodeExists reports whether a redemption code is already taken.
func (r *RewardRepository) CodeExists(code string) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserReward{}).Where("codigo_unico = ?", code).Count(&count).Error
	return count > 0, err
}

// GetUserReward retrieves a user's assignment of a reward.
func (r *RewardRepository) GetUserReward(userID, rewardID uint) (*models.UserReward, error) {
	var ur models.UserReward
	err := r.db.
		Preload("Reward").
		Where("id_usuario = ? AND id_recompensa = ?", userID, rewardID).
		First(&ur).Error
	if err != nil {
		return nil, lookupErr(err, "reward %d of user %d", rewardID, userID)
	}
	return &ur, nil
}

// UpdateUserRewardState sets the assignment state, delivery time and notes.
func (r *RewardRepository) UpdateUserRewardState(ur *models.UserReward) error {
	res := r.db.Model(&models.UserReward{}).
		Where("id_usuario = ? AND id_recompensa = ?", ur.UserID, ur.RewardID).
		Updates(map[string]any{
			"estado":        ur.State,
			"fecha_entrega": ur.DeliveredAt,
			"notas":         ur.Notes,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update reward %d of user %d: %w", ur.RewardID, ur.UserID, res.Error)
	}
	return nil
}

// GetUserRewards retrieves all rewards held by a user with reward details preloaded.
func (r *RewardRepository) GetUserRewards(userID uint) ([]models.UserReward, error) {
	var userRewards []models.UserReward
	err := r.db.
		Where("id_usuario = ?", userID).
		Preload("Reward").
		Order("fecha_obtencion DESC").
		Find(&userRewards).Error
	return userRewards, err
}

// GetHoldersCount returns the number of users holding a specific reward.
func (r *RewardRepository) GetHoldersCount(rewardID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.UserReward{}).
		Where("id_recompensa = ?", rewardID).
		Count(&count).Error
	return count, err
}

// CountUserRewardsByType groups a user's rewards by type.
func (r *RewardRepository) CountUserRewardsByType(userID uint) (map[models.RewardType]int64, error) {
	type row struct {
		Type  models.RewardType
		Count int64
	}

	var rows []row
	err := r.db.Model(&models.UserReward{}).
		Select("recompensas.tipo AS type, COUNT(*) AS count").
		Joins("JOIN recompensas ON recompensas.id_recompensa = usuarios_recompensas.id_recompensa").
		Where("usuarios_recompensas.id_usuario = ?", userID).
		Group("recompensas.tipo").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count rewards of user %d: %w", userID, err)
	}

	out := make(map[models.RewardType]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Count
	}
	return out, nil
}
