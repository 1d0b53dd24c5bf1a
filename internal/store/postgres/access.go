package postgres

import (
	"context"
	"database/sql"
	"errors"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) ListRoles(ctx context.Context) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role_id, name, level, is_system, description FROM roles ORDER BY level DESC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Level, &role.IsSystem, &role.Description); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreateRole(ctx context.Context, role models.Role) (models.Role, error) {
	if err := store.ValidateRole(role); err != nil {
		return models.Role{}, err
	}
	role.ID = uuid.NewString()
	role.IsSystem = false
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (role_id, name, level, is_system, description) VALUES ($1, $2, $3, FALSE, $4)
	`, role.ID, role.Name, role.Level, role.Description)
	if err != nil {
		if isUniqueViolation(err, "") {
			return models.Role{}, store.ErrRoleExists
		}
		return models.Role{}, err
	}
	return role, nil
}

func (s *Store) GetUserRoles(ctx context.Context, userID string) ([]models.RoleGrant, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_name, role_level, expires_at FROM get_user_roles($1)`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.RoleGrant
	for rows.Next() {
		var grant models.RoleGrant
		var expiresAt sql.NullTime
		if err := rows.Scan(&grant.RoleName, &grant.RoleLevel, &expiresAt); err != nil {
			return nil, err
		}
		grant.ExpiresAt = nullTimePtr(expiresAt)
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) UserHasPermission(ctx context.Context, userID, resource, action string) (bool, error) {
	var allowed bool
	if err := s.pool.QueryRow(ctx, `SELECT user_has_permission($1, $2, $3)`, userID, resource, action).Scan(&allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

const userRoleSelect = `
	SELECT ur.user_role_id, ur.user_id, ur.role_id, r.name, r.level, ur.granted_by, ur.granted_at, ur.expires_at, ur.is_active
	FROM user_roles ur
	JOIN roles r ON r.role_id = ur.role_id
`

func scanUserRole(row pgx.Row) (models.UserRole, error) {
	var grant models.UserRole
	var grantedBy sql.NullString
	var expiresAt sql.NullTime
	if err := row.Scan(&grant.ID, &grant.UserID, &grant.RoleID, &grant.RoleName, &grant.RoleLevel, &grantedBy,
		&grant.GrantedAt, &expiresAt, &grant.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.UserRole{}, store.ErrRoleNotFound
		}
		return models.UserRole{}, err
	}
	grant.GrantedBy = nullString(grantedBy)
	grant.ExpiresAt = nullTimePtr(expiresAt)
	return grant, nil
}

func (s *Store) ListUserRoles(ctx context.Context, userID string) ([]models.UserRole, error) {
	rows, err := s.pool.Query(ctx, userRoleSelect+` WHERE ur.user_id = $1 ORDER BY ur.granted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []models.UserRole
	for rows.Next() {
		grant, err := scanUserRole(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) GrantRole(ctx context.Context, input store.GrantRoleInput) (models.UserRole, error) {
	if input.UserID == "" {
		return models.UserRole{}, &store.ValidationError{Field: "user_id", Message: "required"}
	}
	now := s.now()
	var grant models.UserRole
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var roleID string
		err := tx.QueryRow(ctx, `SELECT role_id FROM roles WHERE name = $1`, input.RoleName).Scan(&roleID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrRoleNotFound
		}
		if err != nil {
			return err
		}
		var grantID string
		if err := tx.QueryRow(ctx, `
			INSERT INTO user_roles (user_role_id, user_id, role_id, granted_by, granted_at, expires_at, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (user_id, role_id) WHERE is_active
			DO UPDATE SET granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at, expires_at = EXCLUDED.expires_at
			RETURNING user_role_id
		`, uuid.NewString(), input.UserID, roleID, nullIfEmpty(input.GrantedBy), now, input.ExpiresAt).Scan(&grantID); err != nil {
			return err
		}
		grant, err = scanUserRole(tx.QueryRow(ctx, userRoleSelect+` WHERE ur.user_role_id = $1`, grantID))
		if err != nil {
			return err
		}
		return insertAudit(ctx, tx, models.AuditLog{
			ActorUserID: input.GrantedBy,
			ActionType:  "role.grant",
			TargetType:  "user",
			TargetID:    input.UserID,
			Details:     map[string]any{"role": input.RoleName, "expires_at": input.ExpiresAt},
		}, now)
	})
	if err != nil {
		return models.UserRole{}, err
	}
	return grant, nil
}

func (s *Store) RevokeRole(ctx context.Context, userID, roleName string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_roles SET is_active = FALSE
			WHERE user_id = $1 AND is_active AND role_id = (SELECT role_id FROM roles WHERE name = $2)
		`, userID, roleName)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrRoleNotFound
		}
		return insertAudit(ctx, tx, models.AuditLog{
			ActionType: "role.revoke",
			TargetType: "user",
			TargetID:   userID,
			Details:    map[string]any{"role": roleName},
		}, s.now())
	})
}

func (s *Store) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT permission_id, resource, action, description FROM permissions ORDER BY resource, action
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []models.Permission
	for rows.Next() {
		var permission models.Permission
		if err := rows.Scan(&permission.ID, &permission.Resource, &permission.Action, &permission.Description); err != nil {
			return nil, err
		}
		permissions = append(permissions, permission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return permissions, nil
}

func (s *Store) GrantPermission(ctx context.Context, roleName, resource, action string) error {
	if resource == "" || action == "" {
		return &store.ValidationError{Field: "permission", Message: "resource and action are required"}
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var roleID string
		err := tx.QueryRow(ctx, `SELECT role_id FROM roles WHERE name = $1`, roleName).Scan(&roleID)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrRoleNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO permissions (resource, action) VALUES ($1, $2) ON CONFLICT (resource, action) DO NOTHING
		`, resource, action); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, permission_id FROM permissions WHERE resource = $2 AND action = $3
			ON CONFLICT DO NOTHING
		`, roleID, resource, action)
		return err
	})
}

const profileColumns = `user_id, full_name, email, phone, whatsapp, address, city,
	show_name, show_phone, show_email, show_whatsapp, show_address, created_at, updated_at`

func scanProfile(row pgx.Row) (models.Profile, error) {
	var profile models.Profile
	if err := row.Scan(&profile.UserID, &profile.FullName, &profile.Email, &profile.Phone, &profile.Whatsapp,
		&profile.Address, &profile.City, &profile.ShowName, &profile.ShowPhone, &profile.ShowEmail, &profile.ShowWhatsapp,
		&profile.ShowAddress, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, store.ErrProfileNotFound
		}
		return models.Profile{}, err
	}
	return profile, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	return scanProfile(s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
}

func (s *Store) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	if profile.UserID == "" {
		return models.Profile{}, &store.ValidationError{Field: "user_id", Message: "required"}
	}
	return scanProfile(s.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, full_name, email, phone, whatsapp, address, city,
			show_name, show_phone, show_email, show_whatsapp, show_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			whatsapp = EXCLUDED.whatsapp,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			show_name = EXCLUDED.show_name,
			show_phone = EXCLUDED.show_phone,
			show_email = EXCLUDED.show_email,
			show_whatsapp = EXCLUDED.show_whatsapp,
			show_address = EXCLUDED.show_address,
			updated_at = EXCLUDED.updated_at
		RETURNING `+profileColumns,
		profile.UserID, profile.FullName, profile.Email, profile.Phone, profile.Whatsapp, profile.Address, profile.City,
		profile.ShowName, profile.ShowPhone, profile.ShowEmail, profile.ShowWhatsapp, profile.ShowAddress, s.now()))
}
