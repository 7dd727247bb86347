package models

import "github.com/google/uuid"

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and local SQLite runs.
func All() []any {
	return []any{
		&Nonprofit{},
		&Shop{},
		&Product{},
		&ProductVariant{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Donation{},
		&SellerBalance{},
		&Seller1099Data{},
		&SellerPayout{},
		&NonprofitPayout{},
		&Transfer{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

// assignID fills a zero primary key before insert so callers may still
// choose the id themselves.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
