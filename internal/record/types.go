package record

import "time"

// Record is a JSON document owned by a scope and module.
type Record struct {
	ID        string         `json:"id"`
	Scope     string         `json:"scope"`
	Module    string         `json:"module"`
	Data      map[string]any `json:"data"`
	CreatedBy string         `json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
