package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
	ListEventsByInvoice(ctx context.Context, db *gorm.DB, invoiceID int64) ([]EventRecord, error)
}
