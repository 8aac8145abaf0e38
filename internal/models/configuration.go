package models

import (
	"time"
)

// ConfigType is the declared type of a configuration value.
type ConfigType string

// Configuration value types.
const (
	ConfigText    ConfigType = "texto"
	ConfigNumber  ConfigType = "numero"
	ConfigBoolean ConfigType = "booleano"
	ConfigJSON    ConfigType = "json"
)

// Valid reports whether t is a known configuration type.
func (t ConfigType) Valid() bool {
	switch t {
	case ConfigText, ConfigNumber, ConfigBoolean, ConfigJSON:
		return true
	}
	return false
}

// Well-known configuration keys.
const (
	ConfigKeyPointsPerDollar  = "puntos_por_dolar"
	ConfigKeyReminderDays     = "recordatorio_dias_suscripcion"
	ConfigKeyOrganizationName = "nombre_organizacion"
	ConfigKeyMonthlyGoal      = "meta_mensual"
)

// Configuration represents a typed key-value setting.
type Configuration struct {
	ID          uint       `gorm:"column:id_configuracion;primaryKey" json:"id_configuracion"`
	Key         string     `gorm:"column:clave;uniqueIndex;not null;size:100" json:"clave"`
	Value       string     `gorm:"column:valor;type:text;not null" json:"valor"`
	Description string     `gorm:"column:descripcion;size:255" json:"descripcion,omitempty"`
	Type        ConfigType `gorm:"column:tipo;size:10;not null" json:"tipo"`
	Editable    bool       `gorm:"column:editable;not null" json:"editable"`
	UpdatedAt   time.Time  `gorm:"column:fecha_actualizacion" json:"fecha_actualizacion"`
}

// TableName specifies the table name for Configuration model.
func (Configuration) TableName() string {
	return "configuraciones"
}
