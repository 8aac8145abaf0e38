package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DonationState is the lifecycle state of a donation.
type DonationState string

// Donation states.
const (
	DonationPending   DonationState = "Pendiente"
	DonationCompleted DonationState = "Completada"
	DonationFailed    DonationState = "Fallida"
	DonationRefunded  DonationState = "Reembolsada"
)

// Valid reports whether s is a known donation state.
func (s DonationState) Valid() bool {
	switch s {
	case DonationPending, DonationCompleted, DonationFailed, DonationRefunded:
		return true
	}
	return false
}

// DefaultCurrency is used when a donation does not carry one.
const DefaultCurrency = "USD"

// Donation is a single monetary contribution, one-off or spawned by a subscription.
type Donation struct {
	ID               uint            `gorm:"column:id_donacion;primaryKey" json:"id_donacion"`
	UserID           *uint           `gorm:"column:id_usuario;index" json:"id_usuario,omitempty"`
	User             *User           `gorm:"foreignKey:UserID" json:"usuario,omitempty"`
	CampaignID       *uint           `gorm:"column:id_campana;index" json:"id_campana,omitempty"`
	Campaign         *Campaign       `gorm:"foreignKey:CampaignID" json:"campana,omitempty"`
	Amount           decimal.Decimal `gorm:"column:monto;type:decimal(12,2);not null" json:"monto"`
	Currency         string          `gorm:"column:moneda;size:3;not null" json:"moneda"`
	DonatedAt        time.Time       `gorm:"column:fecha_donacion;not null;index" json:"fecha_donacion"`
	PaymentMethod    PaymentType     `gorm:"column:metodo_pago;size:20;not null" json:"metodo_pago"`
	PaymentReference string          `gorm:"column:referencia_pago;size:255;not null" json:"referencia_pago"`
	State            DonationState   `gorm:"column:estado;size:20;not null;index" json:"estado"`
	Anonymous        bool            `gorm:"column:es_anonima;not null" json:"es_anonima"`
	InvoiceRequested bool            `gorm:"column:requiere_factura;not null" json:"requiere_factura"`
	ReceiptEmail     string          `gorm:"column:correo_comprobante;size:100" json:"correo_comprobante,omitempty"`
	AcceptedTerms    bool            `gorm:"column:acepto_terminos;not null" json:"acepto_terminos"`
	AcceptedNews     bool            `gorm:"column:acepto_noticias;not null" json:"acepto_noticias"`
	SubscriptionID   *uint           `gorm:"column:id_suscripcion;index" json:"id_suscripcion,omitempty"`
	PointsAwarded    int             `gorm:"column:puntos_otorgados;not null;default:0" json:"puntos_otorgados"`
	DonorIP          string          `gorm:"column:ip_donante;size:50" json:"-"`
	Notes            string          `gorm:"column:notas;type:text" json:"notas,omitempty"`
	UpdatedAt        time.Time       `gorm:"column:ultima_actualizacion" json:"ultima_actualizacion"`
}

// TableName specifies the table name for Donation model.
func (Donation) TableName() string {
	return "donaciones"
}

// IsCompleted reports whether the donation has been confirmed.
func (d *Donation) IsCompleted() bool {
	return d.State == DonationCompleted
}

// OwnedBy reports whether the donation belongs to the given user.
func (d *Donation) OwnedBy(userID uint) bool {
	return d.UserID != nil && *d.UserID == userID
}
