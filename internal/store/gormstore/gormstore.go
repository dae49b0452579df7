package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kiranmghub/pos-stack-sub004/pkg/inventory"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectStockLine = "stock_line"
	errorSubjectPosting   = "posting"
	errorSubjectReserve   = "reservation"
	errorSubjectAdjust    = "adjustment"
	errorSubjectReason    = "reason"
	errorSubjectSession   = "count_session"
	errorSubjectCountLine = "count_line"
	errorSubjectVariant   = "variant"
	errorCodeCreate       = "create"
	errorCodeDelete       = "delete"
	errorCodeDuplicate    = "duplicate"
	errorCodeFold         = "fold"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeList         = "list"
	errorCodeLock         = "lock"
	errorCodeSave         = "save"
	errorCodeSeed         = "seed"
	errorCodeUpdateStatus = "update_status"
)

// Store implements inventory.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore inventory.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// GetStockLine reads the aggregate for one key. Lines never posted to
// read as all zeros.
func (store *Store) GetStockLine(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID) (inventory.StockLine, error) {
	var model StockLine
	err := store.db.WithContext(ctx).
		Where("store_id = ? AND variant_id = ?", storeID.Int64(), variantID.Int64()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.StockLine{StoreID: storeID, VariantID: variantID}, nil
	}
	if err != nil {
		return inventory.StockLine{}, wrapStoreError(errorSubjectStockLine, errorCodeGet, err)
	}
	return mapStockLine(model), nil
}

// LockStockLine reads the aggregate under a row lock, creating the zero
// row on first touch so the lock has something to bite on.
func (store *Store) LockStockLine(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID) (inventory.StockLine, error) {
	query := store.db.WithContext(ctx)
	// SQLite has no FOR UPDATE; its single writer serializes for us.
	if store.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model StockLine
	err := query.
		Where("store_id = ? AND variant_id = ?", storeID.Int64(), variantID.Int64()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		model = StockLine{StoreID: storeID.Int64(), VariantID: variantID.Int64()}
		if createErr := store.db.WithContext(ctx).Create(&model).Error; createErr != nil {
			return inventory.StockLine{}, wrapStoreError(errorSubjectStockLine, errorCodeCreate, createErr)
		}
		return mapStockLine(model), nil
	}
	if err != nil {
		return inventory.StockLine{}, wrapStoreError(errorSubjectStockLine, errorCodeLock, err)
	}
	return mapStockLine(model), nil
}

// SaveStockLine writes the aggregate back.
func (store *Store) SaveStockLine(ctx context.Context, line inventory.StockLine) error {
	err := store.db.WithContext(ctx).
		Model(&StockLine{}).
		Where("store_id = ? AND variant_id = ?", line.StoreID.Int64(), line.VariantID.Int64()).
		Updates(map[string]any{
			"on_hand":    line.OnHand,
			"reserved":   line.Reserved,
			"in_transit": line.InTransit,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectStockLine, errorCodeSave, err)
	}
	return nil
}

// InsertPosting appends one audit posting.
func (store *Store) InsertPosting(ctx context.Context, posting inventory.LedgerPosting) error {
	model := LedgerPosting{
		PostingID:      posting.PostingID,
		StoreID:        posting.StoreID.Int64(),
		VariantID:      posting.VariantID.Int64(),
		DeltaOnHand:    posting.DeltaOnHand,
		DeltaReserved:  posting.DeltaReserved,
		DeltaInTransit: posting.DeltaInTransit,
		ReasonCode:     posting.ReasonCode,
		RefType:        posting.RefType.String(),
		RefID:          posting.RefID,
		BalanceAfter:   posting.BalanceAfter,
		Metadata:       datatypesJSON(posting.MetadataJSON),
		CreatedBy:      posting.CreatedBy,
		CreatedAt:      time.Unix(posting.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectPosting, errorCodeInsert, err)
	}
	return nil
}

// ListPostings returns the audit trail for one key, newest first.
func (store *Store) ListPostings(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID, limit int) ([]inventory.LedgerPosting, error) {
	var rows []LedgerPosting
	err := store.db.WithContext(ctx).
		Where("store_id = ? AND variant_id = ?", storeID.Int64(), variantID.Int64()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPosting, errorCodeList, err)
	}
	postings := make([]inventory.LedgerPosting, 0, len(rows))
	for _, row := range rows {
		posting, err := mapPosting(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPosting, errorCodeGet, err)
		}
		postings = append(postings, posting)
	}
	return postings, nil
}

type postingFoldRow struct {
	OnHand    int64
	Reserved  int64
	InTransit int64
	Postings  int64
}

// FoldPostings sums every posting delta for one key.
func (store *Store) FoldPostings(ctx context.Context, storeID inventory.StoreID, variantID inventory.VariantID) (inventory.PostingFold, error) {
	var row postingFoldRow
	err := store.db.WithContext(ctx).
		Model(&LedgerPosting{}).
		Select(
			"coalesce(sum(delta_on_hand),0) as on_hand," +
				"coalesce(sum(delta_reserved),0) as reserved," +
				"coalesce(sum(delta_in_transit),0) as in_transit," +
				"count(*) as postings").
		Where("store_id = ? AND variant_id = ?", storeID.Int64(), variantID.Int64()).
		Scan(&row).Error
	if err != nil {
		return inventory.PostingFold{}, wrapStoreError(errorSubjectPosting, errorCodeFold, err)
	}
	return inventory.PostingFold{
		OnHand:    row.OnHand,
		Reserved:  row.Reserved,
		InTransit: row.InTransit,
		Postings:  int(row.Postings),
	}, nil
}

// CreateReservation inserts a new ACTIVE reservation.
func (store *Store) CreateReservation(ctx context.Context, reservation inventory.Reservation) error {
	model := Reservation{
		ReservationID: reservation.ReservationID,
		StoreID:       reservation.StoreID.Int64(),
		VariantID:     reservation.VariantID.Int64(),
		Channel:       reservation.Channel.String(),
		Quantity:      reservation.Quantity.Int64(),
		RefType:       reservation.RefType.String(),
		RefID:         reservation.RefID,
		Status:        reservation.Status.String(),
		ExpiresAt:     unixToTime(reservation.ExpiresAtUnixUTC),
		Note:          reservation.Note,
		CreatedBy:     reservation.CreatedBy,
		CreatedAt:     time.Unix(reservation.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReserve, errorCodeDuplicate, inventory.ErrInvalidState)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReserve, errorCodeCreate, err)
	}
	return nil
}

// GetReservation fetches one reservation by id.
func (store *Store) GetReservation(ctx context.Context, reservationID string) (inventory.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.Reservation{}, wrapStoreError(errorSubjectReserve, errorCodeGet, inventory.ErrUnknownReservation)
	}
	if err != nil {
		return inventory.Reservation{}, wrapStoreError(errorSubjectReserve, errorCodeGet, err)
	}
	return mapReservation(model)
}

// UpdateReservationStatus performs the compare-and-swap status
// transition. Zero rows affected means the caller lost a race.
func (store *Store) UpdateReservationStatus(ctx context.Context, reservationID string, from inventory.ReservationStatus, to inventory.ReservationStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND status = ?", reservationID, from.String()).
		Updates(map[string]any{"status": to.String(), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReserve, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReserve, errorCodeUpdateStatus, inventory.ErrInvalidState)
	}
	return nil
}

// ListReservations lists reservations matching the filter, newest first.
func (store *Store) ListReservations(ctx context.Context, filter inventory.ReservationFilter) ([]inventory.Reservation, error) {
	query := store.db.WithContext(ctx).Model(&Reservation{})
	if filter.StoreID > 0 {
		query = query.Where("store_id = ?", filter.StoreID.Int64())
	}
	if filter.VariantID > 0 {
		query = query.Where("variant_id = ?", filter.VariantID.Int64())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	var rows []Reservation
	if err := query.Order("created_at DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReserve, errorCodeList, err)
	}
	return mapReservations(rows)
}

// ListExpiredReservations returns ACTIVE reservations past their expiry.
func (store *Store) ListExpiredReservations(ctx context.Context, nowUnixUTC int64, limit int) ([]inventory.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			inventory.ReservationStatusActive.String(), time.Unix(nowUnixUTC, 0).UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReserve, errorCodeList, err)
	}
	return mapReservations(rows)
}

// CreateAdjustment inserts the adjustment header and its lines.
func (store *Store) CreateAdjustment(ctx context.Context, adjustment inventory.Adjustment) error {
	header := Adjustment{
		AdjustmentID: adjustment.AdjustmentID,
		StoreID:      adjustment.StoreID.Int64(),
		ReasonCode:   adjustment.ReasonCode,
		Note:         adjustment.Note,
		CreatedBy:    adjustment.CreatedBy,
		CreatedAt:    time.Unix(adjustment.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&header).Error; err != nil {
		return wrapStoreError(errorSubjectAdjust, errorCodeCreate, err)
	}
	for _, line := range adjustment.Lines {
		model := AdjustmentLine{
			AdjustmentID: adjustment.AdjustmentID,
			VariantID:    line.VariantID.Int64(),
			Delta:        line.Delta,
			BalanceAfter: line.BalanceAfter,
			CreatedAt:    header.CreatedAt,
		}
		if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
			return wrapStoreError(errorSubjectAdjust, errorCodeInsert, err)
		}
	}
	return nil
}

// ListReasons returns the adjustment reason catalog ordered by code.
func (store *Store) ListReasons(ctx context.Context) ([]inventory.AdjustmentReason, error) {
	var rows []AdjustmentReason
	if err := store.db.WithContext(ctx).Order("code ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReason, errorCodeList, err)
	}
	reasons := make([]inventory.AdjustmentReason, 0, len(rows))
	for _, row := range rows {
		reasons = append(reasons, inventory.AdjustmentReason{Code: row.Code, Name: row.Name})
	}
	return reasons, nil
}

// SeedReasons inserts missing catalog entries, leaving existing ones alone.
func (store *Store) SeedReasons(ctx context.Context, reasons []inventory.AdjustmentReason) error {
	for _, reason := range reasons {
		model := AdjustmentReason{Code: reason.Code, Name: reason.Name, CreatedAt: time.Now().UTC()}
		err := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model).Error
		if err != nil {
			return wrapStoreError(errorSubjectReason, errorCodeSeed, err)
		}
	}
	return nil
}

// CreateCountSession inserts a new DRAFT session.
func (store *Store) CreateCountSession(ctx context.Context, session inventory.CountSession) error {
	model := CountSession{
		SessionID: session.SessionID,
		Code:      session.Code,
		StoreID:   session.StoreID.Int64(),
		Scope:     session.Scope.String(),
		ZoneName:  session.ZoneName,
		Status:    session.Status.String(),
		Note:      session.Note,
		CreatedBy: session.CreatedBy,
		CreatedAt: time.Unix(session.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectSession, errorCodeDuplicate, inventory.ErrConflictingSession)
	}
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeCreate, err)
	}
	return nil
}

// GetCountSession fetches one session by id.
func (store *Store) GetCountSession(ctx context.Context, sessionID string) (inventory.CountSession, error) {
	var model CountSession
	err := store.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.CountSession{}, wrapStoreError(errorSubjectSession, errorCodeGet, inventory.ErrUnknownSession)
	}
	if err != nil {
		return inventory.CountSession{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapCountSession(model)
}

// FindOpenFullStoreSession looks for a non-finalized FULL_STORE session.
func (store *Store) FindOpenFullStoreSession(ctx context.Context, storeID inventory.StoreID) (inventory.CountSession, bool, error) {
	var model CountSession
	err := store.db.WithContext(ctx).
		Where("store_id = ? AND scope = ? AND status <> ?",
			storeID.Int64(), inventory.CountScopeFullStore.String(), inventory.CountStatusFinalized.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.CountSession{}, false, nil
	}
	if err != nil {
		return inventory.CountSession{}, false, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	session, mapErr := mapCountSession(model)
	if mapErr != nil {
		return inventory.CountSession{}, false, mapErr
	}
	return session, true, nil
}

// UpdateCountSessionStatus performs the compare-and-swap lifecycle
// transition, stamping started_at or finalized_at as appropriate.
func (store *Store) UpdateCountSessionStatus(ctx context.Context, sessionID string, from []inventory.CountStatus, to inventory.CountStatus, atUnixUTC int64) error {
	fromValues := make([]string, 0, len(from))
	for _, status := range from {
		fromValues = append(fromValues, status.String())
	}
	updates := map[string]any{"status": to.String()}
	stamp := time.Unix(atUnixUTC, 0).UTC()
	switch to {
	case inventory.CountStatusInProgress:
		updates["started_at"] = &stamp
	case inventory.CountStatusFinalized:
		updates["finalized_at"] = &stamp
	}
	result := store.db.WithContext(ctx).
		Model(&CountSession{}).
		Where("session_id = ? AND status IN ?", sessionID, fromValues).
		Updates(updates)
	if result.Error != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeUpdateStatus, inventory.ErrInvalidState)
	}
	return nil
}

// DeleteCountSession removes the session and its lines.
func (store *Store) DeleteCountSession(ctx context.Context, sessionID string) error {
	if err := store.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&CountLine{}).Error; err != nil {
		return wrapStoreError(errorSubjectCountLine, errorCodeDelete, err)
	}
	if err := store.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&CountSession{}).Error; err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeDelete, err)
	}
	return nil
}

// ListCountSessions lists sessions matching the filter, newest first.
func (store *Store) ListCountSessions(ctx context.Context, filter inventory.CountSessionFilter) ([]inventory.CountSession, error) {
	query := store.db.WithContext(ctx).Model(&CountSession{})
	if filter.StoreID > 0 {
		query = query.Where("store_id = ?", filter.StoreID.Int64())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	var rows []CountSession
	if err := query.Order("created_at DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	sessions := make([]inventory.CountSession, 0, len(rows))
	for _, row := range rows {
		session, err := mapCountSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// GetCountLine fetches the line for one session, variant, and location.
func (store *Store) GetCountLine(ctx context.Context, sessionID string, variantID inventory.VariantID, location string) (inventory.CountLine, bool, error) {
	var model CountLine
	err := store.db.WithContext(ctx).
		Where("session_id = ? AND variant_id = ? AND location = ?", sessionID, variantID.Int64(), location).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.CountLine{}, false, nil
	}
	if err != nil {
		return inventory.CountLine{}, false, wrapStoreError(errorSubjectCountLine, errorCodeGet, err)
	}
	return mapCountLine(model), true, nil
}

// SaveCountLine upserts one count line by primary key.
func (store *Store) SaveCountLine(ctx context.Context, line inventory.CountLine) error {
	model := CountLine{
		LineID:      line.LineID,
		SessionID:   line.SessionID,
		VariantID:   line.VariantID.Int64(),
		Location:    line.Location,
		ExpectedQty: line.ExpectedQty,
		CountedQty:  line.CountedQty,
		Method:      line.Method.String(),
		UpdatedAt:   time.Unix(line.UpdatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "line_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"expected_qty", "counted_qty", "method", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectCountLine, errorCodeSave, err)
	}
	return nil
}

// ListCountLines returns every line for a session.
func (store *Store) ListCountLines(ctx context.Context, sessionID string) ([]inventory.CountLine, error) {
	var rows []CountLine
	err := store.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCountLine, errorCodeList, err)
	}
	lines := make([]inventory.CountLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, mapCountLine(row))
	}
	return lines, nil
}

// ResolveVariant implements inventory.VariantResolver against the
// variants table.
func (store *Store) ResolveVariant(ctx context.Context, locator inventory.Locator) (inventory.VariantRef, error) {
	query := store.db.WithContext(ctx).Model(&Variant{})
	switch {
	case locator.VariantID > 0:
		query = query.Where("variant_id = ?", locator.VariantID.Int64())
	case locator.Barcode != "":
		query = query.Where("barcode = ?", locator.Barcode)
	case locator.SKU != "":
		query = query.Where("sku = ?", locator.SKU)
	default:
		return inventory.VariantRef{}, wrapStoreError(errorSubjectVariant, errorCodeGet, inventory.ErrUnresolvedLocator)
	}
	var model Variant
	err := query.Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.VariantRef{}, wrapStoreError(errorSubjectVariant, errorCodeGet, inventory.ErrUnresolvedLocator)
	}
	if err != nil {
		return inventory.VariantRef{}, wrapStoreError(errorSubjectVariant, errorCodeGet, err)
	}
	variantID, err := inventory.NewVariantID(model.VariantID)
	if err != nil {
		return inventory.VariantRef{}, wrapStoreError(errorSubjectVariant, errorCodeGet, err)
	}
	return inventory.VariantRef{
		VariantID: variantID,
		SKU:       model.SKU,
		Barcode:   model.Barcode,
		Name:      model.Name,
	}, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return inventory.WrapError(errorOperationStore, subject, code, err)
}

func mapStockLine(model StockLine) inventory.StockLine {
	return inventory.StockLine{
		StoreID:   inventory.StoreID(model.StoreID),
		VariantID: inventory.VariantID(model.VariantID),
		OnHand:    model.OnHand,
		Reserved:  model.Reserved,
		InTransit: model.InTransit,
	}
}

func mapPosting(model LedgerPosting) (inventory.LedgerPosting, error) {
	refType, err := inventory.ParseRefType(model.RefType)
	if err != nil {
		return inventory.LedgerPosting{}, err
	}
	return inventory.LedgerPosting{
		PostingID:      model.PostingID,
		StoreID:        inventory.StoreID(model.StoreID),
		VariantID:      inventory.VariantID(model.VariantID),
		DeltaOnHand:    model.DeltaOnHand,
		DeltaReserved:  model.DeltaReserved,
		DeltaInTransit: model.DeltaInTransit,
		ReasonCode:     model.ReasonCode,
		RefType:        refType,
		RefID:          model.RefID,
		BalanceAfter:   model.BalanceAfter,
		MetadataJSON:   string(model.Metadata),
		CreatedBy:      model.CreatedBy,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapReservation(model Reservation) (inventory.Reservation, error) {
	channel, err := inventory.ParseChannel(model.Channel)
	if err != nil {
		return inventory.Reservation{}, wrapStoreError(errorSubjectReserve, errorCodeGet, err)
	}
	refType, err := inventory.ParseRefType(model.RefType)
	if err != nil {
		return inventory.Reservation{}, wrapStoreError(errorSubjectReserve, errorCodeGet, err)
	}
	status, err := inventory.ParseReservationStatus(model.Status)
	if err != nil {
		return inventory.Reservation{}, wrapStoreError(errorSubjectReserve, errorCodeGet, err)
	}
	quantity, err := inventory.NewQuantity(model.Quantity)
	if err != nil {
		return inventory.Reservation{}, wrapStoreError(errorSubjectReserve, errorCodeGet, err)
	}
	return inventory.Reservation{
		ReservationID:    model.ReservationID,
		StoreID:          inventory.StoreID(model.StoreID),
		VariantID:        inventory.VariantID(model.VariantID),
		Channel:          channel,
		Quantity:         quantity,
		RefType:          refType,
		RefID:            model.RefID,
		Status:           status,
		ExpiresAtUnixUTC: timeOrZero(model.ExpiresAt),
		Note:             model.Note,
		CreatedBy:        model.CreatedBy,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
	}, nil
}

func mapReservations(rows []Reservation) ([]inventory.Reservation, error) {
	reservations := make([]inventory.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func mapCountSession(model CountSession) (inventory.CountSession, error) {
	scope, err := inventory.ParseCountScope(model.Scope)
	if err != nil {
		return inventory.CountSession{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	status, err := inventory.ParseCountStatus(model.Status)
	if err != nil {
		return inventory.CountSession{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return inventory.CountSession{
		SessionID:        model.SessionID,
		Code:             model.Code,
		StoreID:          inventory.StoreID(model.StoreID),
		Scope:            scope,
		ZoneName:         model.ZoneName,
		Status:           status,
		Note:             model.Note,
		CreatedBy:        model.CreatedBy,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
		StartedUnixUTC:   timeOrZero(model.StartedAt),
		FinalizedUnixUTC: timeOrZero(model.FinalizedAt),
	}, nil
}

func mapCountLine(model CountLine) inventory.CountLine {
	return inventory.CountLine{
		LineID:         model.LineID,
		SessionID:      model.SessionID,
		VariantID:      inventory.VariantID(model.VariantID),
		Location:       model.Location,
		ExpectedQty:    model.ExpectedQty,
		CountedQty:     model.CountedQty,
		Method:         inventory.CountMethod(model.Method),
		UpdatedUnixUTC: model.UpdatedAt.Unix(),
	}
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func unixToTime(value int64) *time.Time {
	if value == 0 {
		return nil
	}
	stamp := time.Unix(value, 0).UTC()
	return &stamp
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
