package models

import (
	"time"
)

// DonorTier is the donor level derived from lifetime points.
type DonorTier string

// Donor tiers, ordered from lowest to highest.
const (
	TierBronze   DonorTier = "Bronce"
	TierSilver   DonorTier = "Plata"
	TierGold     DonorTier = "Oro"
	TierPlatinum DonorTier = "Platino"
)

// Point thresholds for each tier.
const (
	SilverThreshold   = 200
	GoldThreshold     = 500
	PlatinumThreshold = 1000
)

// User roles.
const (
	RoleDonor = "donante"
	RoleAdmin = "admin"
)

// TierForPoints derives the donor tier from a lifetime point total.
func TierForPoints(points int) DonorTier {
	switch {
	case points >= PlatinumThreshold:
		return TierPlatinum
	case points >= GoldThreshold:
		return TierGold
	case points >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// User represents a donor account.
type User struct {
	ID           uint       `gorm:"column:id_usuario;primaryKey" json:"id_usuario"`
	FirstName    string     `gorm:"column:nombres;size:100;not null" json:"nombres"`
	LastName     string     `gorm:"column:apellidos;size:100;not null" json:"apellidos"`
	NationalID   string     `gorm:"column:cedula;size:20" json:"cedula,omitempty"`
	BirthDate    *time.Time `gorm:"column:fecha_nacimiento" json:"fecha_nacimiento,omitempty"`
	Address      string     `gorm:"column:direccion;size:255" json:"direccion,omitempty"`
	City         string     `gorm:"column:ciudad;size:100" json:"ciudad,omitempty"`
	Province     string     `gorm:"column:provincia;size:100" json:"provincia,omitempty"`
	Phone        string     `gorm:"column:telefono;size:20" json:"telefono,omitempty"`
	Email        string     `gorm:"column:correo;uniqueIndex;not null;size:100" json:"correo"`
	PasswordHash string     `gorm:"column:password;size:255" json:"-"`
	Role         string     `gorm:"column:rol;size:20;not null" json:"rol"` // 'donante' or 'admin'
	RegisteredAt time.Time  `gorm:"column:fecha_registro;autoCreateTime" json:"fecha_registro"`
	LastLoginAt  *time.Time `gorm:"column:ultimo_login" json:"ultimo_login,omitempty"`
	Active       bool       `gorm:"column:activo;not null" json:"activo"`
	Points       int        `gorm:"column:puntos_acumulados;not null;default:0" json:"puntos_acumulados"`
	Tier         DonorTier  `gorm:"column:nivel_donante;size:10;not null" json:"nivel_donante"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "usuarios"
}

// FullName returns the display name of the user.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
