package memory

import (
	"context"
	"sort"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreateRole(ctx context.Context, role models.Role) (models.Role, error) {
	if err := store.ValidateRole(role); err != nil {
		return models.Role{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[role.Name]; exists {
		return models.Role{}, store.ErrRoleExists
	}
	role.ID = uuid.NewString()
	role.IsSystem = false
	s.roles[role.Name] = role
	s.rolePermissions[role.Name] = map[string]bool{}
	return role, nil
}

// liveGrants mirrors get_user_roles: active grants whose expiry is ahead.
func (s *Store) liveGrants(userID string) []models.UserRole {
	now := s.now()
	var out []models.UserRole
	for _, grant := range s.userRoles {
		if grant.UserID != userID || !grant.IsActive {
			continue
		}
		if grant.ExpiresAt != nil && !grant.ExpiresAt.After(now) {
			continue
		}
		out = append(out, grant)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RoleLevel > out[j].RoleLevel
	})
	return out
}

func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]models.RoleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RoleGrant
	for _, grant := range s.liveGrants(userID) {
		out = append(out, models.RoleGrant{RoleName: grant.RoleName, RoleLevel: grant.RoleLevel, ExpiresAt: grant.ExpiresAt})
	}
	return out, nil
}

func (s *Store) UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.PermissionKey(resource, action)
	for _, grant := range s.liveGrants(userID) {
		if s.rolePermissions[grant.RoleName][key] {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]models.UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserRole
	for _, grant := range s.userRoles {
		if grant.UserID == userID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GrantedAt.After(out[j].GrantedAt)
	})
	return out, nil
}

func (s *Store) GrantRole(ctx context.Context, input store.GrantRoleInput) (models.UserRole, error) {
	if input.UserID == "" {
		return models.UserRole{}, &store.ValidationError{Field: "user_id", Message: "required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[input.RoleName]
	if !ok {
		return models.UserRole{}, store.ErrRoleNotFound
	}
	now := s.now()
	grant := models.UserRole{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		RoleID:    role.ID,
		RoleName:  role.Name,
		RoleLevel: role.Level,
		GrantedBy: input.GrantedBy,
		GrantedAt: now,
		ExpiresAt: input.ExpiresAt,
		IsActive:  true,
	}
	for id, existing := range s.userRoles {
		if existing.UserID == input.UserID && existing.RoleID == role.ID && existing.IsActive {
			grant.ID = id
		}
	}
	s.userRoles[grant.ID] = grant
	s.appendAudit(models.AuditLog{
		ActorUserID: input.GrantedBy,
		ActionType:  "role.grant",
		TargetType:  "user",
		TargetID:    input.UserID,
		Details:     map[string]any{"role": input.RoleName, "expires_at": input.ExpiresAt},
	}, now)
	return grant, nil
}

func (s *Store) RevokeRole(ctx context.Context, userID, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := false
	for id, grant := range s.userRoles {
		if grant.UserID == userID && grant.RoleName == roleName && grant.IsActive {
			grant.IsActive = false
			s.userRoles[id] = grant
			revoked = true
		}
	}
	if !revoked {
		return store.ErrRoleNotFound
	}
	s.appendAudit(models.AuditLog{
		ActionType: "role.revoke",
		TargetType: "user",
		TargetID:   userID,
		Details:    map[string]any{"role": roleName},
	}, s.now())
	return nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Permission, 0, len(s.permissions))
	for _, permission := range s.permissions {
		out = append(out, permission)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (s *Store) GrantPermission(ctx context.Context, roleName, resource, action string) error {
	if resource == "" || action == "" {
		return &store.ValidationError{Field: "permission", Message: "resource and action are required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleName]; !ok {
		return store.ErrRoleNotFound
	}
	key := store.PermissionKey(resource, action)
	if _, ok := s.permissions[key]; !ok {
		s.permissions[key] = models.Permission{ID: uuid.NewString(), Resource: resource, Action: action}
	}
	if s.rolePermissions[roleName] == nil {
		s.rolePermissions[roleName] = map[string]bool{}
	}
	s.rolePermissions[roleName][key] = true
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return models.Profile{}, store.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Store) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	if profile.UserID == "" {
		return models.Profile{}, &store.ValidationError{Field: "user_id", Message: "required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	profile.CreatedAt = now
	if current, ok := s.profiles[profile.UserID]; ok {
		profile.CreatedAt = current.CreatedAt
	}
	profile.UpdatedAt = now
	s.profiles[profile.UserID] = profile
	return profile, nil
}
