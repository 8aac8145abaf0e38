package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the billing cadence of a subscription.
type Frequency string

// Subscription frequencies.
const (
	FrequencyMonthly   Frequency = "Mensual"
	FrequencyQuarterly Frequency = "Trimestral"
	FrequencyYearly    Frequency = "Anual"
)

// Months returns the number of calendar months in one billing interval.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	}
	return 0
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f.Months() > 0
}

// SubscriptionState is the lifecycle state of a subscription.
type SubscriptionState string

// Subscription states.
const (
	SubscriptionActive    SubscriptionState = "Activa"
	SubscriptionPaused    SubscriptionState = "Pausada"
	SubscriptionCancelled SubscriptionState = "Cancelada"
	SubscriptionFinished  SubscriptionState = "Finalizada"
)

// Subscription is a recurring donation schedule.
type Subscription struct {
	ID                 uint              `gorm:"column:id_suscripcion;primaryKey" json:"id_suscripcion"`
	UserID             uint              `gorm:"column:id_usuario;not null;index" json:"id_usuario"`
	User               *User             `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
	CampaignID         *uint             `gorm:"column:id_campana;index" json:"id_campana,omitempty"`
	Campaign           *Campaign         `gorm:"foreignKey:CampaignID" json:"campana,omitempty"`
	Amount             decimal.Decimal   `gorm:"column:monto;type:decimal(12,2);not null" json:"monto"`
	Frequency          Frequency         `gorm:"column:frecuencia;size:20;not null" json:"frecuencia"`
	StartDate          time.Time         `gorm:"column:fecha_inicio;not null" json:"fecha_inicio"`
	EndDate            *time.Time        `gorm:"column:fecha_fin" json:"fecha_fin,omitempty"`
	NextChargeDate     time.Time         `gorm:"column:proxima_donacion;not null;index" json:"proxima_donacion"`
	State              SubscriptionState `gorm:"column:estado;size:20;not null;index" json:"estado"`
	PaymentMethodID    uint              `gorm:"column:id_metodo_pago;not null;index" json:"id_metodo_pago"`
	PaymentMethod      *PaymentMethod    `gorm:"foreignKey:PaymentMethodID" json:"metodo_pago,omitempty"`
	TotalDonated       decimal.Decimal   `gorm:"column:total_donado;type:decimal(12,2);not null;default:0" json:"total_donado"`
	TotalDonations     int               `gorm:"column:total_donaciones;not null;default:0" json:"total_donaciones"`
	CancellationReason string            `gorm:"column:motivo_cancelacion;type:text" json:"motivo_cancelacion,omitempty"`
	CreatedAt          time.Time         `gorm:"column:fecha_creacion" json:"fecha_creacion"`
	UpdatedAt          time.Time         `gorm:"column:ultima_actualizacion" json:"ultima_actualizacion"`
}

// TableName specifies the table name for Subscription model.
func (Subscription) TableName() string {
	return "suscripciones"
}

// MonthlyEquivalent returns the amount normalized to one month.
func (s *Subscription) MonthlyEquivalent() decimal.Decimal {
	months := s.Frequency.Months()
	if months == 0 {
		return decimal.Zero
	}
	return s.Amount.Div(decimal.NewFromInt(int64(months)))
}
