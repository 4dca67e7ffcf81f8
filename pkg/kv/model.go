package kv

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// DocumentDao is a data access object that maps directly to the 'kv_documents' table in PostgreSQL.
type DocumentDao struct {
	bun.BaseModel `bun:"table:kv_documents,alias:d"`
	Key           string          `json:"key" bun:"key,pk,type:varchar(255)"`
	Value         json.RawMessage `json:"value" bun:"value,notnull,type:jsonb"`
	UpdatedAt     time.Time       `json:"updated_at" bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}
