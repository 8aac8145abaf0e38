package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies user notifications.
type NotificationType string

// Notification types.
const (
	NotificationDonation     NotificationType = "Donacion"
	NotificationSubscription NotificationType = "Suscripcion"
	NotificationCampaign     NotificationType = "Campana"
	NotificationSystem       NotificationType = "Sistema"
)

// Notification is an in-app message addressed to a user.
type Notification struct {
	ID        uint             `gorm:"column:id_notificacion;primaryKey" json:"id_notificacion"`
	UserID    uint             `gorm:"column:id_usuario;not null;index" json:"id_usuario"`
	User      *User            `gorm:"foreignKey:UserID" json:"-"`
	Type      NotificationType `gorm:"column:tipo;size:20;not null" json:"tipo"`
	Title     string           `gorm:"column:titulo;size:255;not null" json:"titulo"`
	Message   string           `gorm:"column:mensaje;type:text;not null" json:"mensaje"`
	Data      datatypes.JSON   `gorm:"column:datos" json:"datos,omitempty"`
	Read      bool             `gorm:"column:leida;not null;index" json:"leida"`
	CreatedAt time.Time        `gorm:"column:fecha_creacion;autoCreateTime" json:"fecha_creacion"`
	ReadAt    *time.Time       `gorm:"column:fecha_lectura" json:"fecha_lectura,omitempty"`
}

// TableName specifies the table name for Notification model.
func (Notification) TableName() string {
	return "notificaciones"
}
