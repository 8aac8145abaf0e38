package repository

import (
	"fmt"
	"time"

	"github.com/aimd54/sistema-donaciones/internal/models"
)

// NotificationRepository handles in-app notification storage.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification.
func (r *NotificationRepository) Create(n *models.Notification) error {
	if err := r.db.Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListForUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListForUser(userID uint, read *bool, p Pagination) ([]models.Notification, int64, error) {
	query := r.db.Model(&models.Notification{}).Where("id_usuario = ?", userID)
	if read != nil {
		query = query.Where("leida = ?", *read)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	var items []models.Notification
	if err := query.Scopes(paginate(p)).Order("fecha_creacion DESC, id_notificacion DESC").Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead marks one notification of the user as read.
func (r *NotificationRepository) MarkRead(userID, id uint, at time.Time) error {
	res := r.db.Model(&models.Notification{}).
		Where("id_notificacion = ? AND id_usuario = ?", id, userID).
		Updates(map[string]any{"leida": true, "fecha_lectura": at})
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return lookupErr(errNotFound, "notification %d", id)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *NotificationRepository) MarkAllRead(userID uint, at time.Time) (int64, error) {
	res := r.db.Model(&models.Notification{}).
		Where("id_usuario = ? AND leida = ?", userID, false).
		Updates(map[string]any{"leida": true, "fecha_lectura": at})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountUnread returns the number of unread notifications.
func (r *NotificationRepository) CountUnread(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Notification{}).
		Where("id_usuario = ? AND leida = ?", userID, false).
		Count(&count).Error
	return count, err
}
