package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the audit row kept for every result notification whose
// signature verified.
type EventRecord struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	InvoiceID  int64          `json:"invoice_id" gorm:"not null;index"`
	Result     string         `json:"result" gorm:"type:text;not null"`
	Payload    datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt time.Time      `json:"received_at" gorm:"not null"`
}

func (EventRecord) TableName() string { return "payment_events" }

// ResultNotification is a parsed gateway result callback.
type ResultNotification struct {
	InvoiceID int64
	// InvID and OutSum are kept exactly as received; the signature covers
	// the gateway's own representation.
	InvID     string
	OutSum    string
	Signature string
	Shp       map[string]string
	// AltEmail is the first non-empty EMail, Email or email field.
	AltEmail string
}

// Result is the HTTP response owed to the gateway.
type Result struct {
	Status int
	Body   string
}

const ResultOK = "ok"
