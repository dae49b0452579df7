package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StockLine mirrors the stock_lines table: the derived quantity
// aggregate per store and variant.
type StockLine struct {
	StoreID   int64     `gorm:"primaryKey;autoIncrement:false"`
	VariantID int64     `gorm:"primaryKey;autoIncrement:false"`
	OnHand    int64     `gorm:"not null"`
	Reserved  int64     `gorm:"not null"`
	InTransit int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (StockLine) TableName() string { return "stock_lines" }

// LedgerPosting mirrors the ledger_postings table; append-only.
type LedgerPosting struct {
	PostingID      string         `gorm:"type:uuid;primaryKey"`
	StoreID        int64          `gorm:"not null;index:idx_postings_line,priority:1"`
	VariantID      int64          `gorm:"not null;index:idx_postings_line,priority:2"`
	DeltaOnHand    int64          `gorm:"not null"`
	DeltaReserved  int64          `gorm:"not null"`
	DeltaInTransit int64          `gorm:"not null"`
	ReasonCode     string         `gorm:"not null"`
	RefType        string         `gorm:"not null"`
	RefID          string         `gorm:""`
	BalanceAfter   int64          `gorm:"not null"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedBy      string         `gorm:""`
	CreatedAt      time.Time      `gorm:"not null;index:idx_postings_line,priority:3"`
}

func (LedgerPosting) TableName() string { return "ledger_postings" }

func (posting *LedgerPosting) BeforeCreate(tx *gorm.DB) error {
	if posting.PostingID == "" {
		posting.PostingID = uuid.NewString()
	}
	return nil
}

// Reservation mirrors the reservations table.
type Reservation struct {
	ReservationID string     `gorm:"type:uuid;primaryKey"`
	StoreID       int64      `gorm:"not null;index:idx_reservations_line,priority:1"`
	VariantID     int64      `gorm:"not null;index:idx_reservations_line,priority:2"`
	Channel       string     `gorm:"not null"`
	Quantity      int64      `gorm:"not null"`
	RefType       string     `gorm:"not null"`
	RefID         string     `gorm:""`
	Status        string     `gorm:"not null;index:idx_reservations_status"`
	ExpiresAt     *time.Time `gorm:"index:idx_reservations_expiry"`
	Note          string     `gorm:""`
	CreatedBy     string     `gorm:""`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

// AdjustmentReason mirrors the adjustment_reasons catalog table.
type AdjustmentReason struct {
	Code      string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AdjustmentReason) TableName() string { return "adjustment_reasons" }

// Adjustment mirrors the adjustments table.
type Adjustment struct {
	AdjustmentID string    `gorm:"type:uuid;primaryKey"`
	StoreID      int64     `gorm:"not null;index:idx_adjustments_store"`
	ReasonCode   string    `gorm:"not null"`
	Note         string    `gorm:""`
	CreatedBy    string    `gorm:""`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Adjustment) TableName() string { return "adjustments" }

// AdjustmentLine mirrors the adjustment_lines table.
type AdjustmentLine struct {
	LineID       string    `gorm:"type:uuid;primaryKey"`
	AdjustmentID string    `gorm:"type:uuid;not null;index:idx_adjustment_lines_adjustment"`
	VariantID    int64     `gorm:"not null"`
	Delta        int64     `gorm:"not null"`
	BalanceAfter int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (AdjustmentLine) TableName() string { return "adjustment_lines" }

func (line *AdjustmentLine) BeforeCreate(tx *gorm.DB) error {
	if line.LineID == "" {
		line.LineID = uuid.NewString()
	}
	return nil
}

// CountSession mirrors the count_sessions table.
type CountSession struct {
	SessionID   string     `gorm:"type:uuid;primaryKey"`
	Code        string     `gorm:"not null;uniqueIndex:uniq_count_sessions_code"`
	StoreID     int64      `gorm:"not null;index:idx_count_sessions_store"`
	Scope       string     `gorm:"not null"`
	ZoneName    string     `gorm:""`
	Status      string     `gorm:"not null"`
	Note        string     `gorm:""`
	CreatedBy   string     `gorm:""`
	CreatedAt   time.Time  `gorm:"not null"`
	StartedAt   *time.Time `gorm:""`
	FinalizedAt *time.Time `gorm:""`
}

func (CountSession) TableName() string { return "count_sessions" }

// CountLine mirrors the count_lines table. One line per session,
// variant, and location.
type CountLine struct {
	LineID      string    `gorm:"type:uuid;primaryKey"`
	SessionID   string    `gorm:"type:uuid;not null;uniqueIndex:uniq_count_lines_slot,priority:1"`
	VariantID   int64     `gorm:"not null;uniqueIndex:uniq_count_lines_slot,priority:2"`
	Location    string    `gorm:"uniqueIndex:uniq_count_lines_slot,priority:3"`
	ExpectedQty *int64    `gorm:""`
	CountedQty  int64     `gorm:"not null"`
	Method      string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (CountLine) TableName() string { return "count_lines" }

// Variant is the minimal catalog slice the engine resolves scan
// locators against. The catalog itself lives elsewhere.
type Variant struct {
	VariantID int64     `gorm:"primaryKey;autoIncrement:false"`
	SKU       string    `gorm:"not null;uniqueIndex:uniq_variants_sku"`
	Barcode   string    `gorm:"uniqueIndex:uniq_variants_barcode"`
	Name      string    `gorm:""`
	CreatedAt time.Time `gorm:"not null"`
}

func (Variant) TableName() string { return "variants" }

// Models lists every table for auto-migration.
func Models() []any {
	return []any{
		&StockLine{},
		&LedgerPosting{},
		&Reservation{},
		&AdjustmentReason{},
		&Adjustment{},
		&AdjustmentLine{},
		&CountSession{},
		&CountLine{},
		&Variant{},
	}
}
