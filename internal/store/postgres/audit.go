package postgres

import (
	"context"
	"encoding/json"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

func insertAudit(ctx context.Context, db execer, audit models.AuditLog, now time.Time) error {
	details, err := encodeMap(audit.Details)
	if err != nil {
		return err
	}
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	_, err = db.Exec(ctx, `
		INSERT INTO audit_logs (audit_id, actor_user_id, action_type, target_type, target_id, details, ip, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, audit.ID, nullIfEmpty(audit.ActorUserID), audit.ActionType, audit.TargetType, audit.TargetID, details,
		audit.IP, audit.UserAgent, audit.CreatedAt)
	return err
}

func (s *Store) InsertAudit(ctx context.Context, audit models.AuditLog) error {
	return insertAudit(ctx, s.pool, audit, s.now())
}

func (s *Store) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditLog, error) {
	w := &where{}
	if filter.ActorUserID != "" {
		w.add("actor_user_id = ?", filter.ActorUserID)
	}
	if filter.ActionType != "" {
		w.add("action_type = ?", filter.ActionType)
	}
	if filter.TargetType != "" {
		w.add("target_type = ?", filter.TargetType)
	}
	if filter.TargetID != "" {
		w.add("target_id = ?", filter.TargetID)
	}
	query := `
		SELECT audit_id, COALESCE(actor_user_id, ''), action_type, target_type, target_id, details, ip, user_agent, created_at
		FROM audit_logs` + w.sql() + ` ORDER BY created_at DESC` + w.page(filter.Limit, 0)
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var audit models.AuditLog
		var details []byte
		if err := rows.Scan(&audit.ID, &audit.ActorUserID, &audit.ActionType, &audit.TargetType, &audit.TargetID,
			&details, &audit.IP, &audit.UserAgent, &audit.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			_ = json.Unmarshal(details, &audit.Details)
		}
		logs = append(logs, audit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
