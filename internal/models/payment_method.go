package models

import (
	"time"
)

// PaymentType is the processor family of a payment method or donation.
type PaymentType string

// Payment types.
const (
	PaymentCard   PaymentType = "Tarjeta"
	PaymentPLUX   PaymentType = "PLUX"
	PaymentPayPal PaymentType = "PayPal"
)

// Valid reports whether t is a known payment type.
func (t PaymentType) Valid() bool {
	switch t {
	case PaymentCard, PaymentPLUX, PaymentPayPal:
		return true
	}
	return false
}

// PaymentMethod is a tokenized reference to an external payment instrument.
type PaymentMethod struct {
	ID             uint        `gorm:"column:id_metodo_pago;primaryKey" json:"id_metodo_pago"`
	UserID         uint        `gorm:"column:id_usuario;not null;index" json:"id_usuario"`
	User           *User       `gorm:"foreignKey:UserID" json:"-"`
	Type           PaymentType `gorm:"column:tipo;size:20;not null" json:"tipo"`
	TokenReference string      `gorm:"column:token_referencia;size:255;not null" json:"-"`
	Alias          string      `gorm:"column:alias;size:100" json:"alias,omitempty"`
	LastDigits     string      `gorm:"column:ultimo_digitos;size:4" json:"ultimo_digitos,omitempty"`
	Bank           string      `gorm:"column:banco;size:100" json:"banco,omitempty"`
	AccountType    string      `gorm:"column:tipo_cuenta;size:50" json:"tipo_cuenta,omitempty"`
	Active         bool        `gorm:"column:activo;not null" json:"activo"`
	CreatedAt      time.Time   `gorm:"column:fecha_registro" json:"fecha_registro"`
	UpdatedAt      time.Time   `gorm:"column:ultima_actualizacion" json:"ultima_actualizacion"`
}

// TableName specifies the table name for PaymentMethod model.
func (PaymentMethod) TableName() string {
	return "metodos_pago"
}

// DisplayName returns a human friendly label for the payment method.
func (p *PaymentMethod) DisplayName() string {
	if p.Alias != "" {
		return p.Alias
	}
	switch p.Type {
	case PaymentCard:
		if p.LastDigits != "" {
			return "Tarjeta terminada en " + p.LastDigits
		}
	case PaymentPLUX:
		return "Cuenta PLUX"
	case PaymentPayPal:
		return "Cuenta PayPal"
	}
	return "Método de pago"
}
