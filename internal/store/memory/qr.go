package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

func (s *Store) GenerateBatch(ctx context.Context, input store.GenerateInput) (models.BatchResult, error) {
	if err := store.ValidateGenerate(input); err != nil {
		return models.BatchResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

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
	if input.BranchID != "" {
		branch, ok := s.branches[input.BranchID]
		if !ok || branch.DeletedAt != nil {
			return models.BatchResult{}, store.ErrBranchNotFound
		}
		batch.BranchID = ptr(branch.ID)
		batch.CompanyID = ptr(branch.CompanyID)
	}

	codes := make([]models.QRCode, 0, input.Quantity)
	rejected := map[string]bool{}
	for round := 0; round < store.MaxCodeRounds && len(codes) < input.Quantity; round++ {
		candidates, err := store.NewCodes(now, input.Quantity-len(codes), rejected)
		if err != nil {
			return models.BatchResult{}, err
		}
		for _, code := range candidates {
			if _, taken := s.codeIndex[code]; taken {
				rejected[code] = true
				continue
			}
			qr := models.QRCode{
				ID:            uuid.NewString(),
				Code:          code,
				QRType:        input.QRType,
				Status:        models.QRStatusInactive,
				BatchID:       ptr(batch.ID),
				PurchasePrice: input.PricePerUnit,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			codes = append(codes, qr)
		}
	}
	if len(codes) < input.Quantity {
		return models.BatchResult{}, store.ErrCodeCollision
	}

	s.batches[batch.ID] = batch
	for _, qr := range codes {
		s.qrCodes[qr.ID] = qr
		s.codeIndex[qr.Code] = qr.ID
	}
	s.appendOutbox("qr.batch_generated", map[string]interface{}{
		"batch_id":   batch.ID,
		"quantity":   batch.Quantity,
		"qr_type":    batch.QRType,
		"branch_id":  batch.BranchID,
		"company_id": batch.CompanyID,
		"created_by": batch.CreatedBy,
	}, now)
	return models.BatchResult{Batch: batch, Codes: codes}, nil
}

func (s *Store) ListBatches(ctx context.Context, limit int) ([]models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Batch, 0, len(s.batches))
	for _, batch := range s.batches {
		out = append(out, batch)
	}
	sortByCreated(out, func(b models.Batch) time.Time { return b.CreatedAt }, func(b models.Batch) string { return b.ID })
	return page(out, limit, 0), nil
}

func (s *Store) GetQRCode(ctx context.Context, qrID string) (models.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.qrCodes[qrID]
	if !ok {
		return models.QRCode{}, store.ErrQRNotFound
	}
	return qr, nil
}

func (s *Store) GetQRCodeByCode(ctx context.Context, code string) (models.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qrByCode(code)
}

func (s *Store) qrByCode(code string) (models.QRCode, error) {
	id, ok := s.codeIndex[code]
	if !ok {
		return models.QRCode{}, store.ErrQRNotFound
	}
	return s.qrCodes[id], nil
}

func matchesRef(value *string, want string) bool {
	return want == "" || (value != nil && *value == want)
}

func matchesQR(qr models.QRCode, filter store.QRFilter) bool {
	if filter.Status != "" && qr.Status != filter.Status {
		return false
	}
	if filter.QRType != "" && qr.QRType != filter.QRType {
		return false
	}
	if !matchesRef(qr.AssignedCompanyID, filter.CompanyID) || !matchesRef(qr.AssignedBranchID, filter.BranchID) {
		return false
	}
	if !matchesRef(qr.BatchID, filter.BatchID) || !matchesRef(qr.OwnerID, filter.OwnerID) {
		return false
	}
	switch filter.Assigned {
	case store.Yes:
		if qr.AssignedCompanyID == nil {
			return false
		}
	case store.No:
		if qr.AssignedCompanyID != nil {
			return false
		}
	}
	switch filter.Printed {
	case store.Yes:
		if !qr.IsPrinted {
			return false
		}
	case store.No:
		if qr.IsPrinted {
			return false
		}
	}
	if filter.Search != "" && !strings.Contains(strings.ToLower(qr.Code), strings.ToLower(filter.Search)) {
		return false
	}
	if filter.CreatedFrom != nil && qr.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && qr.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	return true
}

func (s *Store) ListQRCodes(ctx context.Context, filter store.QRFilter) ([]models.QRCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QRCode
	for _, qr := range s.qrCodes {
		if matchesQR(qr, filter) {
			out = append(out, qr)
		}
	}
	sortByCreated(out, func(q models.QRCode) time.Time { return q.CreatedAt }, func(q models.QRCode) string { return q.Code })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) RecordPrint(ctx context.Context, input store.RecordPrintInput) (models.PrintHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.qrCodes[input.QRID]
	if !ok {
		return models.PrintHistoryEntry{}, store.ErrQRNotFound
	}
	printedAt := input.PrintedAt
	if printedAt.IsZero() {
		printedAt = s.now()
	}
	qr.PrintCount++
	qr.IsPrinted = true
	if qr.FirstPrintedAt == nil {
		qr.FirstPrintedAt = ptr(printedAt)
	}
	qr.LastPrintedAt = ptr(printedAt)
	qr.UpdatedAt = printedAt
	s.qrCodes[qr.ID] = qr

	entry := models.PrintHistoryEntry{
		ID:           uuid.NewString(),
		QRCodeID:     qr.ID,
		PrintedBy:    input.PrintedBy,
		PrintReason:  input.Reason,
		PrintQuality: input.Quality,
		PrinterInfo:  input.PrinterInfo,
		Notes:        input.Notes,
		PrintedAt:    printedAt,
	}
	s.prints[qr.ID] = append(s.prints[qr.ID], entry)
	return entry, nil
}

func (s *Store) ListPrintHistory(ctx context.Context, qrID string) ([]models.PrintHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qrCodes[qrID]; !ok {
		return nil, store.ErrQRNotFound
	}
	history := s.prints[qrID]
	out := make([]models.PrintHistoryEntry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

// collect returns the codes for ids, failing when any is missing or not in a
// status the action accepts.
func (s *Store) collect(ids []string, action string) ([]models.QRCode, error) {
	out := make([]models.QRCode, 0, len(ids))
	for _, id := range ids {
		qr, ok := s.qrCodes[id]
		if !ok {
			return nil, store.ErrQRNotFound
		}
		out = append(out, qr)
	}
	if action != "" {
		for _, qr := range out {
			if !store.ValidTransition(action, qr.Status) {
				return nil, store.ErrInvalidState
			}
		}
	}
	return out, nil
}

func (s *Store) MarkPrinted(ctx context.Context, qrIDs []string, actorID string) ([]models.QRCode, error) {
	if err := store.ValidateIDs("qr_ids", qrIDs); err != nil {
		return nil, err
	}
	ids := store.UniqueIDs(qrIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.collect(ids, store.ActionMarkPrinted)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.QRCode, 0, len(current))
	for _, qr := range current {
		qr.Status = models.QRStatusPrinted
		qr.UpdatedAt = now
		s.qrCodes[qr.ID] = qr
		out = append(out, qr)
	}
	s.appendAudit(models.AuditLog{
		ActorUserID: actorID,
		ActionType:  "qr.mark_printed",
		TargetType:  "qr_batch",
		TargetID:    ids[0],
		Details:     map[string]any{"qr_ids": ids},
	}, now)
	return out, nil
}

func (s *Store) AssignToCompany(ctx context.Context, input store.AssignInput) ([]models.QRCode, error) {
	if err := store.ValidateIDs("qr_ids", input.QRIDs); err != nil {
		return nil, err
	}
	if input.CompanyID == "" {
		return nil, &store.ValidationError{Field: "company_id", Message: "required"}
	}
	ids := store.UniqueIDs(input.QRIDs)
	action := store.ActionAssign
	if input.Reassign {
		action = store.ActionReassign
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.companies[input.CompanyID]
	if !ok || company.DeletedAt != nil {
		return nil, store.ErrCompanyNotFound
	}
	if input.BranchID != "" {
		branch, ok := s.branches[input.BranchID]
		if !ok || branch.DeletedAt != nil {
			return nil, store.ErrBranchNotFound
		}
		if branch.CompanyID != company.ID {
			return nil, store.ErrBranchMismatch
		}
	}
	current, err := s.collect(ids, "")
	if err != nil {
		return nil, err
	}
	for _, qr := range current {
		if qr.AssignedCompanyID != nil && !input.Reassign {
			return nil, store.ErrAlreadyAssigned
		}
		if !store.ValidTransition(action, qr.Status) {
			return nil, store.ErrInvalidState
		}
	}

	now := s.now()
	out := make([]models.QRCode, 0, len(current))
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
		qr.Status = models.QRStatusAssigned
		qr.AssignedCompanyID = ptr(input.CompanyID)
		qr.AssignedBranchID = nil
		if input.BranchID != "" {
			qr.AssignedBranchID = ptr(input.BranchID)
		}
		qr.UpdatedAt = now
		s.qrCodes[qr.ID] = qr
		out = append(out, qr)
		s.appendAudit(models.AuditLog{
			ActorUserID: input.ActorID,
			ActionType:  "qr." + action,
			TargetType:  "qr_code",
			TargetID:    qr.ID,
			Details:     details,
		}, now)
	}
	return out, nil
}

func (s *Store) Unassign(ctx context.Context, input store.UnassignInput) ([]models.QRCode, error) {
	if err := store.ValidateIDs("qr_ids", input.QRIDs); err != nil {
		return nil, err
	}
	ids := store.UniqueIDs(input.QRIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.collect(ids, store.ActionUnassign)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]models.QRCode, 0, len(current))
	for _, qr := range current {
		details := map[string]any{"notes": input.Notes}
		if qr.AssignedCompanyID != nil {
			details["previous_company_id"] = *qr.AssignedCompanyID
		}
		qr.Status = store.UnassignTarget(qr.IsPrinted)
		qr.AssignedCompanyID = nil
		qr.AssignedBranchID = nil
		qr.UpdatedAt = now
		s.qrCodes[qr.ID] = qr
		out = append(out, qr)
		s.appendAudit(models.AuditLog{
			ActorUserID: input.ActorID,
			ActionType:  "qr.unassign",
			TargetType:  "qr_code",
			TargetID:    qr.ID,
			Details:     details,
		}, now)
	}
	return out, nil
}

func (s *Store) Activate(ctx context.Context, input store.ActivateInput) (models.QRCode, error) {
	if err := store.ValidateActivate(input); err != nil {
		return models.QRCode{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.qrCodes[input.QRID]
	if !ok {
		return models.QRCode{}, store.ErrQRNotFound
	}
	pet, ok := s.pets[input.PetID]
	if !ok {
		return models.QRCode{}, store.ErrPetNotFound
	}
	if pet.OwnerID != input.OwnerID {
		return models.QRCode{}, store.ErrAccessDenied
	}
	if qr.Linked() {
		if *qr.PetID != input.PetID || *qr.OwnerID != input.OwnerID {
			return models.QRCode{}, store.ErrAlreadyActivated
		}
		if qr.Status == models.QRStatusActive {
			return qr, nil
		}
		return models.QRCode{}, store.ErrInvalidState
	}
	if !store.ValidTransition(store.ActionActivate, qr.Status) {
		return models.QRCode{}, store.ErrInvalidState
	}
	for id, other := range s.qrCodes {
		if id != qr.ID && other.PetID != nil && *other.PetID == input.PetID {
			return models.QRCode{}, store.ErrPetLinked
		}
	}

	now := s.now()
	var price float64
	if input.PlanType != "" {
		var err error
		if price, err = s.checkSubscription(qr.ID, input.PlanType); err != nil {
			return models.QRCode{}, err
		}
	}

	qr.PetID = ptr(input.PetID)
	qr.OwnerID = ptr(input.OwnerID)
	qr.Status = models.QRStatusActive
	qr.ActivationDate = ptr(now)
	qr.ExpiresAt = input.ExpiresAt
	if qr.ExpiresAt == nil && s.activationValidity > 0 {
		qr.ExpiresAt = ptr(now.Add(s.activationValidity))
	}
	qr.UpdatedAt = now
	s.qrCodes[qr.ID] = qr
	s.appendOutbox(store.EventTypeFor(store.ActionActivate), map[string]interface{}{
		"qr_id":    qr.ID,
		"code":     qr.Code,
		"pet_id":   input.PetID,
		"owner_id": input.OwnerID,
	}, now)

	if input.PlanType != "" {
		s.insertSubscription(qr, store.CreateSubscriptionInput{
			QRID:     qr.ID,
			UserID:   input.OwnerID,
			PlanType: input.PlanType,
		}, price, now)
	}
	return qr, nil
}

func (s *Store) Transition(ctx context.Context, input store.TransitionInput) (models.QRCode, error) {
	if err := store.ValidateTransition(input); err != nil {
		return models.QRCode{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.qrCodes[input.QRID]
	if !ok {
		return models.QRCode{}, store.ErrQRNotFound
	}
	if input.AsOwner && (qr.OwnerID == nil || *qr.OwnerID != input.ActorID) {
		return models.QRCode{}, store.ErrAccessDenied
	}
	if !store.ValidTransition(input.Action, qr.Status) {
		return models.QRCode{}, store.ErrInvalidState
	}
	if input.AsOwner && !store.ValidOwnerTransition(input.Action, qr.Status) {
		return models.QRCode{}, store.ErrAccessDenied
	}
	if input.Action == store.ActionReactivate && !qr.Linked() {
		return models.QRCode{}, store.ErrInvalidState
	}
	now := s.now()
	from := qr.Status
	target, _ := store.TargetStatus(input.Action)
	qr.Status = target
	if input.Action == store.ActionReactivate && qr.ExpiresAt != nil && !qr.ExpiresAt.After(now) {
		qr.ExpiresAt = nil
		if s.activationValidity > 0 {
			qr.ExpiresAt = ptr(now.Add(s.activationValidity))
		}
	}
	qr.UpdatedAt = now
	s.qrCodes[qr.ID] = qr

	if input.Action == store.ActionExpire {
		s.expireSubscriptions(qr.ID, now)
	}
	s.appendOutbox(store.EventTypeFor(input.Action), map[string]interface{}{
		"qr_id":       qr.ID,
		"code":        qr.Code,
		"from_status": from,
		"to_status":   qr.Status,
		"actor_id":    input.ActorID,
	}, now)
	s.appendAudit(models.AuditLog{
		ActorUserID: input.ActorID,
		ActionType:  "qr." + input.Action,
		TargetType:  "qr_code",
		TargetID:    qr.ID,
		Details:     map[string]any{"from_status": from, "to_status": target, "notes": input.Notes},
	}, now)
	return qr, nil
}

func (s *Store) RecordScan(ctx context.Context, input store.RecordScanInput) (models.QRScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.qrCodes[input.QRID]
	if !ok {
		return models.QRScan{}, store.ErrQRNotFound
	}
	scannedAt := input.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = s.now()
	}
	qr.ScanCount++
	qr.LastScanDate = ptr(scannedAt)
	if input.Location != "" {
		qr.LastScanLocation = ptr(input.Location)
	}
	qr.UpdatedAt = scannedAt
	s.qrCodes[qr.ID] = qr

	scan := models.QRScan{
		ID:               uuid.NewString(),
		QRCodeID:         qr.ID,
		ScannerIP:        input.ScannerIP,
		ScannerUserAgent: input.UserAgent,
		ScanLocation:     input.Location,
		ScanDate:         scannedAt,
		ContactMade:      input.ContactMade,
		Notes:            input.Notes,
	}
	s.scans[qr.ID] = append(s.scans[qr.ID], scan)
	s.appendOutbox("qr.scanned", map[string]interface{}{
		"qr_id":    qr.ID,
		"code":     qr.Code,
		"scan_id":  scan.ID,
		"location": scan.ScanLocation,
	}, scannedAt)
	return scan, nil
}

func (s *Store) MarkContactMade(ctx context.Context, qrID string) (models.QRScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.qrCodes[qrID]
	if !ok {
		return models.QRScan{}, store.ErrQRNotFound
	}
	now := s.now()
	scans := s.scans[qrID]
	var scan models.QRScan
	if latest := latestScan(scans); latest >= 0 {
		scans[latest].ContactMade = true
		scan = scans[latest]
	} else {
		scan = models.QRScan{
			ID:          uuid.NewString(),
			QRCodeID:    qrID,
			ScanDate:    now,
			ContactMade: true,
			Notes:       "contact follow-up",
		}
		s.scans[qrID] = append(scans, scan)
	}
	s.appendOutbox("qr.contact_made", map[string]interface{}{
		"qr_id":   qrID,
		"code":    qr.Code,
		"scan_id": scan.ID,
	}, now)
	return scan, nil
}

func latestScan(scans []models.QRScan) int {
	latest := -1
	for i, scan := range scans {
		if latest < 0 || !scan.ScanDate.Before(scans[latest].ScanDate) {
			latest = i
		}
	}
	return latest
}

func (s *Store) ListScans(ctx context.Context, qrID string, limit int) ([]models.QRScan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.qrCodes[qrID]; !ok {
		return nil, store.ErrQRNotFound
	}
	scans := s.scans[qrID]
	out := make([]models.QRScan, 0, len(scans))
	for i := len(scans) - 1; i >= 0; i-- {
		out = append(out, scans[i])
	}
	return page(out, limit, 0), nil
}

func (s *Store) ResolvePublic(ctx context.Context, code string) (models.PublicQRView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, err := s.qrByCode(code)
	if err != nil {
		return models.PublicQRView{}, err
	}
	if !qr.Linked() {
		return store.PublicView(qr, nil, nil), nil
	}
	var pet *models.Pet
	if found, ok := s.pets[*qr.PetID]; ok {
		pet = &found
	}
	var profile *models.Profile
	if found, ok := s.profiles[*qr.OwnerID]; ok {
		profile = &found
	}
	return store.PublicView(qr, pet, profile), nil
}

func (s *Store) ExpireDue(ctx context.Context, now time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.QRCode
	for _, qr := range s.qrCodes {
		if qr.ExpiresAt != nil && !qr.ExpiresAt.After(now) && qr.Status != models.QRStatusExpired {
			due = append(due, qr)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Before(*due[j].ExpiresAt)
	})
	if len(due) > batchSize {
		due = due[:batchSize]
	}
	for _, qr := range due {
		from := qr.Status
		qr.Status = models.QRStatusExpired
		qr.UpdatedAt = now
		s.qrCodes[qr.ID] = qr
		s.expireSubscriptions(qr.ID, now)
		s.appendOutbox(store.EventTypeFor(store.ActionExpire), map[string]interface{}{
			"qr_id":       qr.ID,
			"code":        qr.Code,
			"from_status": from,
			"to_status":   models.QRStatusExpired,
			"reason":      "validity_elapsed",
		}, now)
	}
	return len(due), nil
}

func (s *Store) expireSubscriptions(qrID string, now time.Time) {
	for id, sub := range s.subscriptions {
		if sub.QRCodeID != qrID {
			continue
		}
		if sub.Status == models.SubscriptionActive || sub.Status == models.SubscriptionPaused {
			sub.Status = models.SubscriptionExpired
			sub.UpdatedAt = now
			s.subscriptions[id] = sub
		}
	}
}
