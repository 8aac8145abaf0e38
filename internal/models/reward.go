// Package models defines the persisted domain models of the donation platform.
package models

import (
	"strings"
	"time"
)

// RewardType classifies catalog rewards.
type RewardType string

// Reward types.
const (
	RewardBadge       RewardType = "Insignia"
	RewardCertificate RewardType = "Certificado"
	RewardExperience  RewardType = "Experiencia"
	RewardDiscount    RewardType = "Descuento"
)

// Valid reports whether t is a known reward type.
func (t RewardType) Valid() bool {
	switch t {
	case RewardBadge, RewardCertificate, RewardExperience, RewardDiscount:
		return true
	}
	return false
}

// CodePrefix returns the prefix used for redemption codes of this type.
func (t RewardType) CodePrefix() string {
	p := strings.ToUpper(string(t))
	if len(p) > 4 {
		p = p[:4]
	}
	return p
}

// Reward represents a catalog entry that users can obtain with points.
type Reward struct {
	ID             uint       `gorm:"column:id_recompensa;primaryKey" json:"id_recompensa"`
	Name           string     `gorm:"column:nombre;not null;size:100" json:"nombre"`
	Description    string     `gorm:"column:descripcion;type:text" json:"descripcion"`
	PointsRequired int        `gorm:"column:puntos_requeridos;not null" json:"puntos_requeridos"`
	Type           RewardType `gorm:"column:tipo;size:20;not null" json:"tipo"`
	ImageURL       string     `gorm:"column:imagen_url;size:255" json:"imagen_url,omitempty"`
	Active         bool       `gorm:"column:activa;not null" json:"activa"`
	Stock          *int       `gorm:"column:cantidad_disponible" json:"cantidad_disponible"` // nil = unlimited
	CreatedAt      time.Time  `gorm:"column:fecha_creacion" json:"fecha_creacion"`
}

// TableName specifies the table name for Reward model.
func (Reward) TableName() string {
	return "recompensas"
}

// HasFiniteStock reports whether the reward has a limited inventory.
func (r *Reward) HasFiniteStock() bool {
	return r.Stock != nil
}

// UserRewardState is the state of a reward held by a user.
type UserRewardState string

// User reward states.
const (
	UserRewardPending   UserRewardState = "Pendiente"
	UserRewardDelivered UserRewardState = "Entregada"
	UserRewardRedeemed  UserRewardState = "Canjeada"
	UserRewardExpired   UserRewardState = "Expirada"
)

// Valid reports whether s is a known user reward state.
func (s UserRewardState) Valid() bool {
	switch s {
	case UserRewardPending, UserRewardDelivered, UserRewardRedeemed, UserRewardExpired:
		return true
	}
	return false
}

// UserReward represents a reward assigned to a user.
type UserReward struct {
	UserID      uint            `gorm:"column:id_usuario;primaryKey;autoIncrement:false;uniqueIndex:idx_usuario_recompensa,priority:1" json:"id_usuario"`
	User        *User           `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
	RewardID    uint            `gorm:"column:id_recompensa;primaryKey;autoIncrement:false;uniqueIndex:idx_usuario_recompensa,priority:2" json:"id_recompensa"`
	Reward      *Reward         `gorm:"foreignKey:RewardID" json:"recompensa,omitempty"`
	Code        string          `gorm:"column:codigo_unico;primaryKey;size:50;uniqueIndex:idx_codigo_recompensa" json:"codigo_unico"`
	AwardedAt   time.Time       `gorm:"column:fecha_obtencion;not null" json:"fecha_obtencion"`
	PointsUsed  int             `gorm:"column:puntos_usados;not null" json:"puntos_usados"`
	State       UserRewardState `gorm:"column:estado;size:20;not null" json:"estado"`
	DeliveredAt *time.Time      `gorm:"column:fecha_entrega" json:"fecha_entrega,omitempty"`
	Notes       string          `gorm:"column:notas;type:text" json:"notas,omitempty"`
}

// TableName specifies the table name for UserReward model.
func (UserReward) TableName() string {
	return "usuarios_recompensas"
}
