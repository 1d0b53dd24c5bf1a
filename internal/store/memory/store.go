// Package memory is a process-local implementation of store.Store. It keeps
// every table in maps behind one mutex, so each operation is atomic.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

type Options struct {
	Plans              *store.PlanTable
	ActivationValidity time.Duration
	Now                func() time.Time
}

type Store struct {
	mu sync.Mutex

	plans              *store.PlanTable
	activationValidity time.Duration
	now                func() time.Time

	roles           map[string]models.Role
	userRoles       map[string]models.UserRole
	permissions     map[string]models.Permission
	rolePermissions map[string]map[string]bool
	profiles        map[string]models.Profile
	companies       map[string]models.Company
	branches        map[string]models.Branch
	pets            map[string]models.Pet
	batches         map[string]models.Batch
	qrCodes         map[string]models.QRCode
	codeIndex       map[string]string
	scans           map[string][]models.QRScan
	prints          map[string][]models.PrintHistoryEntry
	subscriptions   map[string]models.Subscription
	audit           []models.AuditLog
	outbox          []store.OutboxEvent
	offsets         map[string]int64
}

var _ store.Store = (*Store)(nil)

func New(options Options) *Store {
	plans := options.Plans
	if plans == nil {
		plans = store.DefaultPlans()
	}
	now := options.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	s := &Store{
		plans:              plans,
		activationValidity: options.ActivationValidity,
		now:                now,
		roles:              map[string]models.Role{},
		userRoles:          map[string]models.UserRole{},
		permissions:        map[string]models.Permission{},
		rolePermissions:    map[string]map[string]bool{},
		profiles:           map[string]models.Profile{},
		companies:          map[string]models.Company{},
		branches:           map[string]models.Branch{},
		pets:               map[string]models.Pet{},
		batches:            map[string]models.Batch{},
		qrCodes:            map[string]models.QRCode{},
		codeIndex:          map[string]string{},
		scans:              map[string][]models.QRScan{},
		prints:             map[string][]models.PrintHistoryEntry{},
		subscriptions:      map[string]models.Subscription{},
		offsets:            map[string]int64{},
	}
	s.seed()
	return s
}

func (s *Store) seed() {
	for _, permission := range store.SystemPermissions {
		permission.ID = uuid.NewString()
		s.permissions[store.PermissionKey(permission.Resource, permission.Action)] = permission
	}
	for _, role := range store.SystemRoles {
		role.ID = uuid.NewString()
		s.roles[role.Name] = role
		granted := map[string]bool{}
		keys, ok := store.SystemGrants[role.Name]
		if ok && keys == nil {
			for key := range s.permissions {
				granted[key] = true
			}
		}
		for _, key := range keys {
			granted[key] = true
		}
		s.rolePermissions[role.Name] = granted
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) appendOutbox(eventType string, payload map[string]interface{}, now time.Time) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	s.outbox = append(s.outbox, store.OutboxEvent{
		Seq:       int64(len(s.outbox) + 1),
		EventID:   uuid.NewString(),
		Type:      eventType,
		Payload:   raw,
		CreatedAt: now,
	})
}

func (s *Store) appendAudit(audit models.AuditLog, now time.Time) {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = now
	}
	s.audit = append(s.audit, audit)
}

func (s *Store) InsertAudit(ctx context.Context, audit models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAudit(audit, s.now())
	return nil
}

func (s *Store) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for i := len(s.audit) - 1; i >= 0; i-- {
		audit := s.audit[i]
		if filter.ActorUserID != "" && audit.ActorUserID != filter.ActorUserID {
			continue
		}
		if filter.ActionType != "" && audit.ActionType != filter.ActionType {
			continue
		}
		if filter.TargetType != "" && audit.TargetType != filter.TargetType {
			continue
		}
		if filter.TargetID != "" && audit.TargetID != filter.TargetID {
			continue
		}
		out = append(out, audit)
		if len(out) == store.NormalizeLimit(filter.Limit) {
			break
		}
	}
	return out, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, afterSeq int64, limit int) ([]store.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []store.OutboxEvent
	for _, event := range s.outbox {
		if event.Seq <= afterSeq {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetOutboxOffset(ctx context.Context, consumer string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[consumer], nil
}

func (s *Store) SetOutboxOffset(ctx context.Context, consumer string, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq > s.offsets[consumer] {
		s.offsets[consumer] = seq
	}
	return nil
}

// page slices a sorted result the way LIMIT/OFFSET would.
func page[T any](items []T, limit, offset int) []T {
	offset = store.NormalizeOffset(offset)
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	limit = store.NormalizeLimit(limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func sortByCreated[T any](items []T, created func(T) time.Time, tie func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return tie(items[i]) < tie(items[j])
	})
}

func ptr[T any](value T) *T {
	return &value
}
