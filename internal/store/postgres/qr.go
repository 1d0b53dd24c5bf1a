package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const qrColumns = `qr_id, code, qr_type, status, batch_id, pet_id, owner_id, assigned_company_id, assigned_branch_id,
	is_printed, print_count, first_printed_at, last_printed_at, scan_count, last_scan_date, last_scan_location,
	purchase_price, activation_date, expires_at, metadata, created_at, updated_at`

func scanQR(row pgx.Row) (models.QRCode, error) {
	var qr models.QRCode
	var batchID, petID, ownerID, companyID, branchID, lastLocation sql.NullString
	var firstPrinted, lastPrinted, lastScan, activation, expires sql.NullTime
	var metadata []byte
	if err := row.Scan(&qr.ID, &qr.Code, &qr.QRType, &qr.Status, &batchID, &petID, &ownerID, &companyID, &branchID,
		&qr.IsPrinted, &qr.PrintCount, &firstPrinted, &lastPrinted, &qr.ScanCount, &lastScan, &lastLocation,
		&qr.PurchasePrice, &activation, &expires, &metadata, &qr.CreatedAt, &qr.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QRCode{}, store.ErrQRNotFound
		}
		return models.QRCode{}, err
	}
	qr.BatchID = nullStringPtr(batchID)
	qr.PetID = nullStringPtr(petID)
	qr.OwnerID = nullStringPtr(ownerID)
	qr.AssignedCompanyID = nullStringPtr(companyID)
	qr.AssignedBranchID = nullStringPtr(branchID)
	qr.LastScanLocation = nullStringPtr(lastLocation)
	qr.FirstPrintedAt = nullTimePtr(firstPrinted)
	qr.LastPrintedAt = nullTimePtr(lastPrinted)
	qr.LastScanDate = nullTimePtr(lastScan)
	qr.ActivationDate = nullTimePtr(activation)
	qr.ExpiresAt = nullTimePtr(expires)
	qr.Metadata = decodeMap(metadata)
	return qr, nil
}

func collectQRs(rows pgx.Rows) ([]models.QRCode, error) {
	defer rows.Close()
	var out []models.QRCode
	for rows.Next() {
		qr, err := scanQR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GenerateBatch(ctx context.Context, input store.GenerateInput) (models.BatchResult, error) {
	if err := store.ValidateGenerate(input); err != nil {
		return models.BatchResult{}, err
	}
	if input.BranchID != "" && !validID(input.BranchID) {
		return models.BatchResult{}, store.ErrBranchNotFound
	}

	now := s.now()
	batch := models.Batch{
		ID:           uuid.NewString(),
		Quantity:     input.Quantity,
		QRType:       input.QRType,
		PricePerUnit: input.PricePerUnit,
		TotalAmount:  input.PricePerUnit * float64(input.Quantity),
		Notes:        input.Notes,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
	}

	var codes []models.QRCode
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if input.BranchID != "" {
			var companyID string
			err := tx.QueryRow(ctx, `
				SELECT company_id FROM branches WHERE branch_id = $1 AND deleted_at IS NULL
			`, input.BranchID).Scan(&companyID)
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrBranchNotFound
			}
			if err != nil {
				return err
			}
			branchID := input.BranchID
			batch.BranchID = &branchID
			batch.CompanyID = &companyID
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO qr_batches (batch_id, quantity, qr_type, price_per_unit, total_amount, branch_id, company_id, notes, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, batch.ID, batch.Quantity, batch.QRType, batch.PricePerUnit, batch.TotalAmount, batch.BranchID, batch.CompanyID,
			batch.Notes, nullIfEmpty(batch.CreatedBy), now); err != nil {
			return err
		}

		rejected := make(map[string]bool)
		for round := 0; round < store.MaxCodeRounds && len(codes) < input.Quantity; round++ {
			candidates, err := store.NewCodes(now, input.Quantity-len(codes), rejected)
			if err != nil {
				return err
			}
			inserted, err := insertCodes(ctx, tx, batch, candidates, now)
			if err != nil {
				return err
			}
			for _, code := range candidates {
				if _, ok := inserted[code]; !ok {
					rejected[code] = true
				}
			}
			for _, code := range candidates {
				if qr, ok := inserted[code]; ok {
					codes = append(codes, qr)
				}
			}
		}
		if len(codes) < input.Quantity {
			return store.ErrCodeCollision
		}

		return insertOutboxEvent(ctx, tx, "qr.batch_generated", map[string]interface{}{
			"batch_id":   batch.ID,
			"quantity":   batch.Quantity,
			"qr_type":    batch.QRType,
			"branch_id":  batch.BranchID,
			"company_id": batch.CompanyID,
			"created_by": batch.CreatedBy,
		})
	})
	if err != nil {
		return models.BatchResult{}, err
	}
	return models.BatchResult{Batch: batch, Codes: codes}, nil
}

// insertCodes queues one insert per candidate and returns the rows that did
// not collide with an existing code.
func insertCodes(ctx context.Context, tx pgx.Tx, batch models.Batch, candidates []string, now time.Time) (map[string]models.QRCode, error) {
	queued := &pgx.Batch{}
	ids := make([]string, len(candidates))
	for i, code := range candidates {
		ids[i] = uuid.NewString()
		queued.Queue(`
			INSERT INTO qr_codes (qr_id, code, qr_type, status, batch_id, purchase_price, created_at, updated_at)
			VALUES ($1, $2, $3, 'inactive', $4, $5, $6, $6)
			ON CONFLICT (code) DO NOTHING
			RETURNING qr_id
		`, ids[i], code, batch.QRType, batch.ID, batch.PricePerUnit, now)
	}
	results := tx.SendBatch(ctx, queued)
	inserted := make(map[string]models.QRCode, len(candidates))
	for i, code := range candidates {
		var id string
		if err := results.QueryRow().Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			_ = results.Close()
			return nil, err
		}
		batchID := batch.ID
		inserted[code] = models.QRCode{
			ID:            ids[i],
			Code:          code,
			QRType:        batch.QRType,
			Status:        models.QRStatusInactive,
			BatchID:       &batchID,
			PurchasePrice: batch.PricePerUnit,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]models.Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT batch_id, quantity, qr_type, price_per_unit, total_amount, branch_id, company_id, notes, created_by, created_at
		FROM qr_batches
		ORDER BY created_at DESC
		LIMIT $1
	`, store.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []models.Batch
	for rows.Next() {
		var batch models.Batch
		var branchID, companyID, createdBy sql.NullString
		if err := rows.Scan(&batch.ID, &batch.Quantity, &batch.QRType, &batch.PricePerUnit, &batch.TotalAmount,
			&branchID, &companyID, &batch.Notes, &createdBy, &batch.CreatedAt); err != nil {
			return nil, err
		}
		batch.BranchID = nullStringPtr(branchID)
		batch.CompanyID = nullStringPtr(companyID)
		batch.CreatedBy = nullString(createdBy)
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func (s *Store) GetQRCode(ctx context.Context, qrID string) (models.QRCode, error) {
	if !validID(qrID) {
		return models.QRCode{}, store.ErrQRNotFound
	}
	return scanQR(s.pool.QueryRow(ctx, `SELECT `+qrColumns+` FROM qr_codes WHERE qr_id = $1`, qrID))
}

func (s *Store) GetQRCodeByCode(ctx context.Context, code string) (models.QRCode, error) {
	return scanQR(s.pool.QueryRow(ctx, `SELECT `+qrColumns+` FROM qr_codes WHERE code = $1`, code))
}

func (s *Store) ListQRCodes(ctx context.Context, filter store.QRFilter) ([]models.QRCode, error) {
	w := &where{}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.QRType != "" {
		w.add("qr_type = ?", filter.QRType)
	}
	for _, ref := range []struct {
		column string
		value  string
	}{
		{"assigned_company_id", filter.CompanyID},
		{"assigned_branch_id", filter.BranchID},
		{"batch_id", filter.BatchID},
	} {
		if ref.value == "" {
			continue
		}
		if !validID(ref.value) {
			return nil, nil
		}
		w.add(ref.column+" = ?", ref.value)
	}
	if filter.OwnerID != "" {
		w.add("owner_id = ?", filter.OwnerID)
	}
	switch filter.Assigned {
	case store.Yes:
		w.raw("assigned_company_id IS NOT NULL")
	case store.No:
		w.raw("assigned_company_id IS NULL")
	}
	switch filter.Printed {
	case store.Yes:
		w.raw("is_printed")
	case store.No:
		w.raw("NOT is_printed")
	}
	if filter.Search != "" {
		w.add("code ILIKE '%' || ? || '%'", filter.Search)
	}
	if filter.CreatedFrom != nil {
		w.add("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		w.add("created_at <= ?", *filter.CreatedTo)
	}
	query := `SELECT ` + qrColumns + ` FROM qr_codes` + w.sql() + ` ORDER BY created_at DESC, code ASC`
	query += w.page(filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	return collectQRs(rows)
}

func (s *Store) RecordPrint(ctx context.Context, input store.RecordPrintInput) (models.PrintHistoryEntry, error) {
	if !validID(input.QRID) {
		return models.PrintHistoryEntry{}, store.ErrQRNotFound
	}
	printedAt := input.PrintedAt
	if printedAt.IsZero() {
		printedAt = s.now()
	}
	entry := models.PrintHistoryEntry{
		ID:           uuid.NewString(),
		QRCodeID:     input.QRID,
		PrintedBy:    input.PrintedBy,
		PrintReason:  input.Reason,
		PrintQuality: input.Quality,
		PrinterInfo:  input.PrinterInfo,
		Notes:        input.Notes,
		PrintedAt:    printedAt,
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE qr_codes
			SET print_count = print_count + 1,
				is_printed = TRUE,
				first_printed_at = COALESCE(first_printed_at, $2),
				last_printed_at = $2,
				updated_at = $2
			WHERE qr_id = $1
		`, input.QRID, printedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrQRNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO qr_print_history (print_id, qr_code_id, printed_by, print_reason, print_quality, printer_info, notes, printed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, entry.ID, entry.QRCodeID, nullIfEmpty(entry.PrintedBy), entry.PrintReason, entry.PrintQuality, entry.PrinterInfo, entry.Notes, entry.PrintedAt)
		return err
	})
	if err != nil {
		return models.PrintHistoryEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListPrintHistory(ctx context.Context, qrID string) ([]models.PrintHistoryEntry, error) {
	if !validID(qrID) {
		return nil, store.ErrQRNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT print_id, qr_code_id, printed_by, print_reason, print_quality, printer_info, notes, printed_at
		FROM qr_print_history
		WHERE qr_code_id = $1
		ORDER BY printed_at DESC
	`, qrID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.PrintHistoryEntry
	for rows.Next() {
		var entry models.PrintHistoryEntry
		var printedBy sql.NullString
		if err := rows.Scan(&entry.ID, &entry.QRCodeID, &printedBy, &entry.PrintReason, &entry.PrintQuality,
			&entry.PrinterInfo, &entry.Notes, &entry.PrintedAt); err != nil {
			return nil, err
		}
		entry.PrintedBy = nullString(printedBy)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// lockQRCodes loads and locks every id, failing when any is missing or not
// in a status the action accepts.
func lockQRCodes(ctx context.Context, tx pgx.Tx, ids []string, action string) ([]models.QRCode, error) {
	if !validIDs(ids) {
		return nil, store.ErrQRNotFound
	}
	rows, err := tx.Query(ctx, `SELECT `+qrColumns+` FROM qr_codes WHERE qr_id = ANY($1) ORDER BY qr_id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	codes, err := collectQRs(rows)
	if err != nil {
		return nil, err
	}
	if len(codes) != len(ids) {
		return nil, store.ErrQRNotFound
	}
	if action != "" {
		for _, qr := range codes {
			if !store.ValidTransition(action, qr.Status) {
				return nil, store.ErrInvalidState
			}
		}
	}
	return codes, nil
}

func lockQRCode(ctx context.Context, tx pgx.Tx, qrID string) (models.QRCode, error) {
	if !validID(qrID) {
		return models.QRCode{}, store.ErrQRNotFound
	}
	return scanQR(tx.QueryRow(ctx, `SELECT `+qrColumns+` FROM qr_codes WHERE qr_id = $1 FOR UPDATE`, qrID))
}

func (s *Store) MarkPrinted(ctx context.Context, qrIDs []string, actorID string) ([]models.QRCode, error) {
	if err := store.ValidateIDs("qr_ids", qrIDs); err != nil {
		return nil, err
	}
	ids := store.UniqueIDs(qrIDs)
	now := s.now()
	var updated []models.QRCode
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockQRCodes(ctx, tx, ids, store.ActionMarkPrinted); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			UPDATE qr_codes
			SET status = 'printed', updated_at = $2
			WHERE qr_id = ANY($1) AND status = 'inactive'
			RETURNING `+qrColumns, ids, now)
		if err != nil {
			return err
		}
		updated, err = collectQRs(rows)
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, models.AuditLog{
			ActorUserID: actorID,
			ActionType:  "qr.mark_printed",
			TargetType:  "qr_batch",
			TargetID:    ids[0],
			Details:     map[string]any{"qr_ids": ids},
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) AssignToCompany(ctx context.Context, input store.AssignInput) ([]models.QRCode, error) {
	if err := store.ValidateIDs("qr_ids", input.QRIDs); err != nil {
		return nil, err
	}
	if input.CompanyID == "" {
		return nil, &store.ValidationError{Field: "company_id", Message: "required"}
	}
	if !validID(input.CompanyID) {
		return nil, store.ErrCompanyNotFound
	}
	if input.BranchID != "" && !validID(input.BranchID) {
		return nil, store.ErrBranchNotFound
	}
	ids := store.UniqueIDs(input.QRIDs)
	action := store.ActionAssign
	if input.Reassign {
		action = store.ActionReassign
	}
	now := s.now()

	var updated []models.QRCode
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureCompany(ctx, tx, input.CompanyID); err != nil {
			return err
		}
		if input.BranchID != "" {
			if err := ensureBranchOfCompany(ctx, tx, input.BranchID, input.CompanyID); err != nil {
				return err
			}
		}
		current, err := lockQRCodes(ctx, tx, ids, "")
		if err != nil {
			return err
		}
		for _, qr := range current {
			if qr.AssignedCompanyID != nil && !input.Reassign {
				return store.ErrAlreadyAssigned
			}
			if !store.ValidTransition(action, qr.Status) {
				return store.ErrInvalidState
			}
		}

		rows, err := tx.Query(ctx, `
			UPDATE qr_codes
			SET status = 'assigned',
				assigned_company_id = $2,
				assigned_branch_id = $3,
				updated_at = $4
			WHERE qr_id = ANY($1)
			RETURNING `+qrColumns, ids, input.CompanyID, nullIfEmpty(input.BranchID), now)
		if err != nil {
			return err
		}
		updated, err = collectQRs(rows)
		if err != nil {
			return err
		}

		for _, qr := range current {
			details := map[string]any{
				"company_id": input.CompanyID,
				"branch_id":  input.BranchID,
				"notes":      input.Notes,
			}
			if qr.AssignedCompanyID != nil {
				details["previous_company_id"] = *qr.AssignedCompanyID
				if qr.AssignedBranchID != nil {
					details["previous_branch_id"] = *qr.AssignedBranchID
				}
			}
			if err := insertAudit(ctx, tx, models.AuditLog{
				ActorUserID: input.ActorID,
				ActionType:  "qr." + action,
				TargetType:  "qr_code",
				TargetID:    qr.ID,
				Details:     details,
			}, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) Unassign(ctx context.Context, input store.UnassignInput) ([]models.QRCode, error) {
	if err := store.ValidateIDs("qr_ids", input.QRIDs); err != nil {
		return nil, err
	}
	ids := store.UniqueIDs(input.QRIDs)
	now := s.now()
	var updated []models.QRCode
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := lockQRCodes(ctx, tx, ids, store.ActionUnassign)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			UPDATE qr_codes
			SET status = CASE WHEN is_printed THEN 'printed' ELSE 'inactive' END,
				assigned_company_id = NULL,
				assigned_branch_id = NULL,
				updated_at = $2
			WHERE qr_id = ANY($1)
			RETURNING `+qrColumns, ids, now)
		if err != nil {
			return err
		}
		updated, err = collectQRs(rows)
		if err != nil {
			return err
		}
		for _, qr := range current {
			details := map[string]any{"notes": input.Notes}
			if qr.AssignedCompanyID != nil {
				details["previous_company_id"] = *qr.AssignedCompanyID
			}
			if err := insertAudit(ctx, tx, models.AuditLog{
				ActorUserID: input.ActorID,
				ActionType:  "qr.unassign",
				TargetType:  "qr_code",
				TargetID:    qr.ID,
				Details:     details,
			}, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) Activate(ctx context.Context, input store.ActivateInput) (models.QRCode, error) {
	if err := store.ValidateActivate(input); err != nil {
		return models.QRCode{}, err
	}
	if !validID(input.PetID) {
		return models.QRCode{}, store.ErrPetNotFound
	}
	now := s.now()
	var result models.QRCode
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		qr, err := lockQRCode(ctx, tx, input.QRID)
		if err != nil {
			return err
		}
		var petOwner string
		err = tx.QueryRow(ctx, `SELECT owner_id FROM pets WHERE pet_id = $1`, input.PetID).Scan(&petOwner)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrPetNotFound
		}
		if err != nil {
			return err
		}
		if petOwner != input.OwnerID {
			return store.ErrAccessDenied
		}

		if qr.Linked() {
			if *qr.PetID != input.PetID || *qr.OwnerID != input.OwnerID {
				return store.ErrAlreadyActivated
			}
			if qr.Status == models.QRStatusActive {
				result = qr
				return nil
			}
			return store.ErrInvalidState
		}
		if !store.ValidTransition(store.ActionActivate, qr.Status) {
			return store.ErrInvalidState
		}

		var otherQR string
		err = tx.QueryRow(ctx, `SELECT qr_id FROM qr_codes WHERE pet_id = $1 AND qr_id <> $2`, input.PetID, qr.ID).Scan(&otherQR)
		if err == nil {
			return store.ErrPetLinked
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		expiresAt := input.ExpiresAt
		if expiresAt == nil && s.activationValidity > 0 {
			value := now.Add(s.activationValidity)
			expiresAt = &value
		}
		result, err = scanQR(tx.QueryRow(ctx, `
			UPDATE qr_codes
			SET pet_id = $2,
				owner_id = $3,
				status = 'active',
				activation_date = $4,
				expires_at = $5,
				updated_at = $4
			WHERE qr_id = $1
			RETURNING `+qrColumns, qr.ID, input.PetID, input.OwnerID, now, expiresAt))
		if err != nil {
			if isUniqueViolation(err, "qr_codes_pet_idx") {
				return store.ErrPetLinked
			}
			return err
		}

		if err := insertOutboxEvent(ctx, tx, store.EventTypeFor(store.ActionActivate), map[string]interface{}{
			"qr_id":    result.ID,
			"code":     result.Code,
			"pet_id":   input.PetID,
			"owner_id": input.OwnerID,
		}); err != nil {
			return err
		}

		if input.PlanType != "" {
			if _, err := s.createSubscriptionTx(ctx, tx, store.CreateSubscriptionInput{
				QRID:     result.ID,
				UserID:   input.OwnerID,
				PlanType: input.PlanType,
			}, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.QRCode{}, err
	}
	return result, nil
}

func (s *Store) Transition(ctx context.Context, input store.TransitionInput) (models.QRCode, error) {
	if err := store.ValidateTransition(input); err != nil {
		return models.QRCode{}, err
	}
	now := s.now()
	var result models.QRCode
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		qr, err := lockQRCode(ctx, tx, input.QRID)
		if err != nil {
			return err
		}
		if input.AsOwner && (qr.OwnerID == nil || *qr.OwnerID != input.ActorID) {
			return store.ErrAccessDenied
		}
		if !store.ValidTransition(input.Action, qr.Status) {
			return store.ErrInvalidState
		}
		if input.AsOwner && !store.ValidOwnerTransition(input.Action, qr.Status) {
			return store.ErrAccessDenied
		}
		if input.Action == store.ActionReactivate && !qr.Linked() {
			return store.ErrInvalidState
		}
		target, _ := store.TargetStatus(input.Action)

		expiresAt := qr.ExpiresAt
		if input.Action == store.ActionReactivate && expiresAt != nil && !expiresAt.After(now) {
			expiresAt = nil
			if s.activationValidity > 0 {
				value := now.Add(s.activationValidity)
				expiresAt = &value
			}
		}

		result, err = scanQR(tx.QueryRow(ctx, `
			UPDATE qr_codes
			SET status = $2, expires_at = $3, updated_at = $4
			WHERE qr_id = $1 AND status = $5
			RETURNING `+qrColumns, qr.ID, target, expiresAt, now, qr.Status))
		if err != nil {
			return err
		}

		if input.Action == store.ActionExpire {
			if err := expireSubscriptions(ctx, tx, []string{qr.ID}, now); err != nil {
				return err
			}
		}

		if err := insertOutboxEvent(ctx, tx, store.EventTypeFor(input.Action), map[string]interface{}{
			"qr_id":       result.ID,
			"code":        result.Code,
			"from_status": qr.Status,
			"to_status":   result.Status,
			"actor_id":    input.ActorID,
		}); err != nil {
			return err
		}
		return insertAudit(ctx, tx, models.AuditLog{
			ActorUserID: input.ActorID,
			ActionType:  "qr." + input.Action,
			TargetType:  "qr_code",
			TargetID:    qr.ID,
			Details:     map[string]any{"from_status": qr.Status, "to_status": target, "notes": input.Notes},
		}, now)
	})
	if err != nil {
		return models.QRCode{}, err
	}
	return result, nil
}

func (s *Store) RecordScan(ctx context.Context, input store.RecordScanInput) (models.QRScan, error) {
	if !validID(input.QRID) {
		return models.QRScan{}, store.ErrQRNotFound
	}
	scannedAt := input.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = s.now()
	}
	scan := models.QRScan{
		ID:               uuid.NewString(),
		QRCodeID:         input.QRID,
		ScannerIP:        input.ScannerIP,
		ScannerUserAgent: input.UserAgent,
		ScanLocation:     input.Location,
		ScanDate:         scannedAt,
		ContactMade:      input.ContactMade,
		Notes:            input.Notes,
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var code string
		err := tx.QueryRow(ctx, `
			UPDATE qr_codes
			SET scan_count = scan_count + 1,
				last_scan_date = $2,
				last_scan_location = COALESCE(NULLIF($3, ''), last_scan_location),
				updated_at = $2
			WHERE qr_id = $1
			RETURNING code
		`, input.QRID, scannedAt, input.Location).Scan(&code)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrQRNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO qr_scans (scan_id, qr_code_id, scanner_ip, scanner_user_agent, scan_location, scan_date, contact_made, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, scan.ID, scan.QRCodeID, scan.ScannerIP, scan.ScannerUserAgent, scan.ScanLocation, scan.ScanDate, scan.ContactMade, scan.Notes); err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, "qr.scanned", map[string]interface{}{
			"qr_id":    scan.QRCodeID,
			"code":     code,
			"scan_id":  scan.ID,
			"location": scan.ScanLocation,
		})
	})
	if err != nil {
		return models.QRScan{}, err
	}
	return scan, nil
}

const scanColumns = `scan_id, qr_code_id, scanner_ip, scanner_user_agent, scan_location, scan_date, contact_made, notes`

func scanScan(row pgx.Row) (models.QRScan, error) {
	var scan models.QRScan
	if err := row.Scan(&scan.ID, &scan.QRCodeID, &scan.ScannerIP, &scan.ScannerUserAgent, &scan.ScanLocation,
		&scan.ScanDate, &scan.ContactMade, &scan.Notes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QRScan{}, store.ErrScanNotFound
		}
		return models.QRScan{}, err
	}
	return scan, nil
}

func (s *Store) MarkContactMade(ctx context.Context, qrID string) (models.QRScan, error) {
	if !validID(qrID) {
		return models.QRScan{}, store.ErrQRNotFound
	}
	now := s.now()
	var scan models.QRScan
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var code string
		err := tx.QueryRow(ctx, `SELECT code FROM qr_codes WHERE qr_id = $1`, qrID).Scan(&code)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrQRNotFound
		}
		if err != nil {
			return err
		}
		scan, err = scanScan(tx.QueryRow(ctx, `
			UPDATE qr_scans SET contact_made = TRUE
			WHERE scan_id = (
				SELECT scan_id FROM qr_scans WHERE qr_code_id = $1 ORDER BY scan_date DESC LIMIT 1
			)
			RETURNING `+scanColumns, qrID))
		if errors.Is(err, store.ErrScanNotFound) {
			scan = models.QRScan{
				ID:          uuid.NewString(),
				QRCodeID:    qrID,
				ScanDate:    now,
				ContactMade: true,
				Notes:       "contact follow-up",
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO qr_scans (scan_id, qr_code_id, scan_date, contact_made, notes)
				VALUES ($1, $2, $3, TRUE, $4)
			`, scan.ID, scan.QRCodeID, scan.ScanDate, scan.Notes)
		}
		if err != nil {
			return err
		}
		return insertOutboxEvent(ctx, tx, "qr.contact_made", map[string]interface{}{
			"qr_id":   qrID,
			"code":    code,
			"scan_id": scan.ID,
		})
	})
	if err != nil {
		return models.QRScan{}, err
	}
	return scan, nil
}

func (s *Store) ListScans(ctx context.Context, qrID string, limit int) ([]models.QRScan, error) {
	if !validID(qrID) {
		return nil, store.ErrQRNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+scanColumns+`
		FROM qr_scans
		WHERE qr_code_id = $1
		ORDER BY scan_date DESC
		LIMIT $2
	`, qrID, store.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []models.QRScan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scans, nil
}

func (s *Store) ResolvePublic(ctx context.Context, code string) (models.PublicQRView, error) {
	qr, err := s.GetQRCodeByCode(ctx, code)
	if err != nil {
		return models.PublicQRView{}, err
	}
	if !qr.Linked() {
		return store.PublicView(qr, nil, nil), nil
	}
	var pet *models.Pet
	found, err := s.GetPet(ctx, *qr.PetID)
	switch {
	case err == nil:
		pet = &found
	case !errors.Is(err, store.ErrPetNotFound):
		return models.PublicQRView{}, err
	}
	var profile *models.Profile
	owner, err := s.GetProfile(ctx, *qr.OwnerID)
	switch {
	case err == nil:
		profile = &owner
	case !errors.Is(err, store.ErrProfileNotFound):
		return models.PublicQRView{}, err
	}
	return store.PublicView(qr, pet, profile), nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	processed := 0
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT qr_id, code, status
			FROM qr_codes
			WHERE expires_at IS NOT NULL AND expires_at <= $1 AND status <> 'expired'
			ORDER BY expires_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		`, now, batchSize)
		if err != nil {
			return err
		}
		type dueItem struct {
			id, code, status string
		}
		var items []dueItem
		var ids []string
		for rows.Next() {
			var item dueItem
			if err := rows.Scan(&item.id, &item.code, &item.status); err != nil {
				rows.Close()
				return err
			}
			items = append(items, item)
			ids = append(ids, item.id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE qr_codes SET status = 'expired', updated_at = $2 WHERE qr_id = ANY($1)
		`, ids, now); err != nil {
			return err
		}
		if err := expireSubscriptions(ctx, tx, ids, now); err != nil {
			return err
		}
		for _, item := range items {
			if err := insertOutboxEvent(ctx, tx, store.EventTypeFor(store.ActionExpire), map[string]interface{}{
				"qr_id":       item.id,
				"code":        item.code,
				"from_status": item.status,
				"to_status":   models.QRStatusExpired,
				"reason":      "validity_elapsed",
			}); err != nil {
				return err
			}
		}
		processed = len(items)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return processed, nil
}

func expireSubscriptions(ctx context.Context, tx pgx.Tx, qrIDs []string, now time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = $2
		WHERE qr_code_id = ANY($1) AND status IN ('active', 'paused')
	`, qrIDs, now)
	return err
}
