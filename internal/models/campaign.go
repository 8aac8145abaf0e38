package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignState is the lifecycle state of a campaign.
type CampaignState string

// Campaign states.
const (
	CampaignActive    CampaignState = "Activa"
	CampaignFinished  CampaignState = "Finalizada"
	CampaignCancelled CampaignState = "Cancelada"
)

// Valid reports whether s is a known campaign state.
func (s CampaignState) Valid() bool {
	switch s {
	case CampaignActive, CampaignFinished, CampaignCancelled:
		return true
	}
	return false
}

// Campaign represents a fundraising campaign.
type Campaign struct {
	ID                uint            `gorm:"column:id_campana;primaryKey" json:"id_campana"`
	Name              string          `gorm:"column:nombre;size:255;not null" json:"nombre"`
	Description       string          `gorm:"column:descripcion;type:text" json:"descripcion"`
	ImageURL          string          `gorm:"column:imagen_url;size:255" json:"imagen_url,omitempty"`
	GoalAmount        decimal.Decimal `gorm:"column:meta_monto;type:decimal(12,2);not null" json:"meta_monto"`
	RaisedAmount      decimal.Decimal `gorm:"column:monto_recaudado;type:decimal(12,2);not null;default:0" json:"monto_recaudado"`
	Emergency         bool            `gorm:"column:es_emergencia;not null;index" json:"es_emergencia"`
	StartDate         time.Time       `gorm:"column:fecha_inicio;not null" json:"fecha_inicio"`
	EndDate           *time.Time      `gorm:"column:fecha_fin" json:"fecha_fin,omitempty"`
	State             CampaignState   `gorm:"column:estado;size:20;not null;index" json:"estado"`
	ImpactDescription string          `gorm:"column:impacto_descripcion;type:text" json:"impacto_descripcion,omitempty"`
	DonationCount     int             `gorm:"column:contador_donaciones;not null;default:0" json:"contador_donaciones"`
	CreatedAt         time.Time       `gorm:"column:fecha_creacion" json:"fecha_creacion"`
	UpdatedAt         time.Time       `gorm:"column:ultima_actualizacion" json:"ultima_actualizacion"`
}

// TableName specifies the table name for Campaign model.
func (Campaign) TableName() string {
	return "campanas"
}

// ProgressPercent returns the raised amount as a percentage of the goal.
func (c *Campaign) ProgressPercent() float64 {
	if !c.GoalAmount.IsPositive() {
		return 0
	}
	pct, _ := c.RaisedAmount.Div(c.GoalAmount).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return pct
}

// CampaignFollower links a user to a campaign they follow.
type CampaignFollower struct {
	UserID     uint      `gorm:"column:id_usuario;primaryKey;autoIncrement:false" json:"id_usuario"`
	CampaignID uint      `gorm:"column:id_campana;primaryKey;autoIncrement:false" json:"id_campana"`
	FollowedAt time.Time `gorm:"column:fecha_seguimiento;autoCreateTime" json:"fecha_seguimiento"`
}

// TableName specifies the table name for CampaignFollower model.
func (CampaignFollower) TableName() string {
	return "usuarios_campanas"
}
