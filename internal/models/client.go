package models

import "time"

// Client represents a firm customer (the billed party).
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	TaxID     string    `json:"tax_id"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"created_at"`
}
