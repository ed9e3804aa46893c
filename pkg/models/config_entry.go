package models

import "time"

// TenantConfig is one non-sensitive configuration row.
type TenantConfig struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (TenantConfig) TableName() string {
	return "tenant_configs"
}
