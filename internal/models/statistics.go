package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MonthlyStatistic is the persisted roll-up of one calendar month.
type MonthlyStatistic struct {
	Year                   int             `gorm:"column:ano;primaryKey;autoIncrement:false" json:"ano"`
	Month                  int             `gorm:"column:mes;primaryKey;autoIncrement:false" json:"mes"`
	TotalAmount            decimal.Decimal `gorm:"column:total_donaciones;type:decimal(12,2);not null;default:0" json:"total_donaciones"`
	DonationCount          int             `gorm:"column:contador_donaciones;not null;default:0" json:"contador_donaciones"`
	UniqueDonors           int             `gorm:"column:contador_donantes_unicos;not null;default:0" json:"contador_donantes_unicos"`
	NewDonors              int             `gorm:"column:contador_nuevos_donantes;not null;default:0" json:"contador_nuevos_donantes"`
	NewSubscriptions       int             `gorm:"column:contador_suscripciones_nuevas;not null;default:0" json:"contador_suscripciones_nuevas"`
	CancelledSubscriptions int             `gorm:"column:contador_suscripciones_canceladas;not null;default:0" json:"contador_suscripciones_canceladas"`
	TopCampaignID          *uint           `gorm:"column:campana_principal" json:"campana_principal,omitempty"`
	AverageAmount          decimal.Decimal `gorm:"column:monto_promedio;type:decimal(12,2);not null;default:0" json:"monto_promedio"`
	ByPaymentMethod        datatypes.JSON  `gorm:"column:por_metodo_pago" json:"por_metodo_pago,omitempty"`
	GeneratedAt            time.Time       `gorm:"column:fecha_generacion" json:"fecha_generacion"`
}

// TableName specifies the table name for MonthlyStatistic model.
func (MonthlyStatistic) TableName() string {
	return "estadisticas_mensuales"
}

// MonthRange returns the half-open [start, end) interval of a calendar month.
func MonthRange(year, month int, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
