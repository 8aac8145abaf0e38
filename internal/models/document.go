package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is the proof-of-donation document issued for a completed donation.
type Receipt struct {
	ID         uint       `gorm:"column:id_comprobante;primaryKey" json:"id_comprobante"`
	DonationID uint       `gorm:"column:id_donacion;not null;uniqueIndex" json:"id_donacion"`
	Donation   *Donation  `gorm:"foreignKey:DonationID" json:"donacion,omitempty"`
	Code       string     `gorm:"column:codigo_unico;uniqueIndex;not null;size:50" json:"codigo_unico"`
	IssuedAt   time.Time  `gorm:"column:fecha_emision;not null" json:"fecha_emision"`
	PDFURL     string     `gorm:"column:url_pdf;size:255;not null" json:"url_pdf"`
	EmailSent  bool       `gorm:"column:enviado_email;not null" json:"enviado_email"`
	SentAt     *time.Time `gorm:"column:fecha_envio" json:"fecha_envio,omitempty"`
	SentTo     string     `gorm:"column:correo_envio;size:100" json:"correo_envio,omitempty"`
}

// TableName specifies the table name for Receipt model.
func (Receipt) TableName() string {
	return "comprobantes"
}

// FiscalData holds the tax identity a user invoices with.
type FiscalData struct {
	ID            uint      `gorm:"column:id_datos_fiscales;primaryKey" json:"id_datos_fiscales"`
	UserID        uint      `gorm:"column:id_usuario;not null;index" json:"id_usuario"`
	User          *User     `gorm:"foreignKey:UserID" json:"-"`
	TaxID         string    `gorm:"column:rfc;size:20;not null" json:"rfc"`
	LegalName     string    `gorm:"column:razon_social;size:255;not null" json:"razon_social"`
	FiscalAddress string    `gorm:"column:direccion_fiscal;size:255" json:"direccion_fiscal,omitempty"`
	BillingEmail  string    `gorm:"column:correo_facturacion;size:100" json:"correo_facturacion,omitempty"`
	RequiresCFDI  bool      `gorm:"column:requiere_cfdi;not null" json:"requiere_cfdi"`
	RegisteredAt  time.Time `gorm:"column:fecha_registro;autoCreateTime" json:"fecha_registro"`
	LastUpdatedAt time.Time `gorm:"column:ultima_actualizacion;autoUpdateTime" json:"ultima_actualizacion"`
}

// TableName specifies the table name for FiscalData model.
func (FiscalData) TableName() string {
	return "datos_fiscales"
}

// InvoiceState is the state of an issued invoice.
type InvoiceState string

// Invoice states.
const (
	InvoiceIssued    InvoiceState = "Emitida"
	InvoiceCancelled InvoiceState = "Cancelada"
)

// Invoice is a fiscal document issued for a completed donation.
type Invoice struct {
	ID           uint            `gorm:"column:id_factura;primaryKey" json:"id_factura"`
	DonationID   uint            `gorm:"column:id_donacion;not null;uniqueIndex" json:"id_donacion"`
	Donation     *Donation       `gorm:"foreignKey:DonationID" json:"donacion,omitempty"`
	FiscalDataID uint            `gorm:"column:id_datos_fiscales;not null;index" json:"id_datos_fiscales"`
	FiscalData   *FiscalData     `gorm:"foreignKey:FiscalDataID" json:"datos_fiscales,omitempty"`
	Number       string          `gorm:"column:numero_factura;uniqueIndex;not null;size:50" json:"numero_factura"`
	IssuedAt     time.Time       `gorm:"column:fecha_emision;not null" json:"fecha_emision"`
	Subtotal     decimal.Decimal `gorm:"column:subtotal;type:decimal(12,2);not null" json:"subtotal"`
	Taxes        decimal.Decimal `gorm:"column:impuestos;type:decimal(12,2);not null;default:0" json:"impuestos"`
	Total        decimal.Decimal `gorm:"column:total;type:decimal(12,2);not null" json:"total"`
	PDFURL       string          `gorm:"column:url_pdf;size:255;not null" json:"url_pdf"`
	EmailSent    bool            `gorm:"column:enviada_email;not null" json:"enviada_email"`
	SentAt       *time.Time      `gorm:"column:fecha_envio" json:"fecha_envio,omitempty"`
	SentToTax    bool            `gorm:"column:enviada_sat;not null" json:"enviada_sat"`
	State        InvoiceState    `gorm:"column:estado;size:20;not null" json:"estado"`
}

// TableName specifies the table name for Invoice model.
func (Invoice) TableName() string {
	return "facturas"
}
