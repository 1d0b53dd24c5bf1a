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

const companyColumns = `company_id, name, company_type, email, phone, address, city, contact_name, commission_rate,
	status, created_by, created_at, updated_at, deleted_at`

const branchColumns = `branch_id, company_id, name, address, city, phone, email, manager_name, status,
	created_at, updated_at, deleted_at`

func scanCompany(row pgx.Row) (models.Company, error) {
	var company models.Company
	var createdBy sql.NullString
	var deletedAt sql.NullTime
	if err := row.Scan(&company.ID, &company.Name, &company.Type, &company.Email, &company.Phone, &company.Address,
		&company.City, &company.ContactName, &company.CommissionRate, &company.Status, &createdBy,
		&company.CreatedAt, &company.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Company{}, store.ErrCompanyNotFound
		}
		return models.Company{}, err
	}
	company.CreatedBy = nullString(createdBy)
	company.DeletedAt = nullTimePtr(deletedAt)
	return company, nil
}

func scanBranch(row pgx.Row) (models.Branch, error) {
	var branch models.Branch
	var deletedAt sql.NullTime
	if err := row.Scan(&branch.ID, &branch.CompanyID, &branch.Name, &branch.Address, &branch.City, &branch.Phone,
		&branch.Email, &branch.ManagerName, &branch.Status, &branch.CreatedAt, &branch.UpdatedAt, &deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Branch{}, store.ErrBranchNotFound
		}
		return models.Branch{}, err
	}
	branch.DeletedAt = nullTimePtr(deletedAt)
	return branch, nil
}

func (s *Store) CreateCompany(ctx context.Context, company models.Company) (models.Company, error) {
	company, err := store.NormalizeCompany(company)
	if err != nil {
		return models.Company{}, err
	}
	now := s.now()
	company.ID = uuid.NewString()
	return scanCompany(s.pool.QueryRow(ctx, `
		INSERT INTO companies (company_id, name, company_type, email, phone, address, city, contact_name, commission_rate, status, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		RETURNING `+companyColumns,
		company.ID, company.Name, company.Type, company.Email, company.Phone, company.Address, company.City,
		company.ContactName, company.CommissionRate, company.Status, nullIfEmpty(company.CreatedBy), now))
}

func (s *Store) UpdateCompany(ctx context.Context, company models.Company) (models.Company, error) {
	if !validID(company.ID) {
		return models.Company{}, store.ErrCompanyNotFound
	}
	company, err := store.NormalizeCompany(company)
	if err != nil {
		return models.Company{}, err
	}
	return scanCompany(s.pool.QueryRow(ctx, `
		UPDATE companies
		SET name = $2, company_type = $3, email = $4, phone = $5, address = $6, city = $7,
			contact_name = $8, commission_rate = $9, status = $10, updated_at = $11
		WHERE company_id = $1 AND deleted_at IS NULL
		RETURNING `+companyColumns,
		company.ID, company.Name, company.Type, company.Email, company.Phone, company.Address, company.City,
		company.ContactName, company.CommissionRate, company.Status, s.now()))
}

func (s *Store) SetCompanyStatus(ctx context.Context, companyID, status string) (models.Company, error) {
	if !models.ValidCompanyStatus(status) {
		return models.Company{}, &store.ValidationError{Field: "status", Message: "unknown company status"}
	}
	if !validID(companyID) {
		return models.Company{}, store.ErrCompanyNotFound
	}
	return scanCompany(s.pool.QueryRow(ctx, `
		UPDATE companies SET status = $2, updated_at = $3
		WHERE company_id = $1 AND deleted_at IS NULL
		RETURNING `+companyColumns, companyID, status, s.now()))
}

func (s *Store) GetCompany(ctx context.Context, companyID string) (models.Company, error) {
	if !validID(companyID) {
		return models.Company{}, store.ErrCompanyNotFound
	}
	return scanCompany(s.pool.QueryRow(ctx, `
		SELECT `+companyColumns+` FROM companies WHERE company_id = $1 AND deleted_at IS NULL
	`, companyID))
}

func (s *Store) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]models.Company, error) {
	w := &where{}
	w.raw("deleted_at IS NULL")
	if filter.Type != "" {
		w.add("company_type = ?", filter.Type)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Search != "" {
		w.add("(name ILIKE '%' || ? || '%' OR email ILIKE '%' || ? || '%' OR city ILIKE '%' || ? || '%')", filter.Search)
	}
	if filter.CreatedFrom != nil {
		w.add("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		w.add("created_at <= ?", *filter.CreatedTo)
	}
	query := `SELECT ` + companyColumns + ` FROM companies` + w.sql() + ` ORDER BY name ASC` + w.page(filter.Limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return companies, nil
}

func (s *Store) DeleteCompany(ctx context.Context, companyID string) error {
	if !validID(companyID) {
		return store.ErrCompanyNotFound
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureCompany(ctx, tx, companyID); err != nil {
			return err
		}
		var inUse bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM branches WHERE company_id = $1 AND deleted_at IS NULL AND status = 'active'
			) OR EXISTS (
				SELECT 1 FROM qr_codes WHERE assigned_company_id = $1
			)
		`, companyID).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return store.ErrCompanyInUse
		}
		_, err := tx.Exec(ctx, `
			UPDATE companies SET deleted_at = $2, status = 'inactive', updated_at = $2 WHERE company_id = $1
		`, companyID, s.now())
		return err
	})
}

func (s *Store) CreateBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	branch, err := store.NormalizeBranch(branch)
	if err != nil {
		return models.Branch{}, err
	}
	if !validID(branch.CompanyID) {
		return models.Branch{}, store.ErrCompanyNotFound
	}
	var created models.Branch
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureCompany(ctx, tx, branch.CompanyID); err != nil {
			return err
		}
		var err error
		created, err = scanBranch(tx.QueryRow(ctx, `
			INSERT INTO branches (branch_id, company_id, name, address, city, phone, email, manager_name, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
			RETURNING `+branchColumns,
			uuid.NewString(), branch.CompanyID, branch.Name, branch.Address, branch.City, branch.Phone, branch.Email,
			branch.ManagerName, branch.Status, s.now()))
		return err
	})
	if err != nil {
		return models.Branch{}, err
	}
	return created, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	if !validID(branch.ID) {
		return models.Branch{}, store.ErrBranchNotFound
	}
	branch, err := store.NormalizeBranch(branch)
	if err != nil {
		return models.Branch{}, err
	}
	if !validID(branch.CompanyID) {
		return models.Branch{}, store.ErrCompanyNotFound
	}
	var updated models.Branch
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := ensureCompany(ctx, tx, branch.CompanyID); err != nil {
			return err
		}
		var err error
		updated, err = scanBranch(tx.QueryRow(ctx, `
			UPDATE branches
			SET company_id = $2, name = $3, address = $4, city = $5, phone = $6, email = $7,
				manager_name = $8, status = $9, updated_at = $10
			WHERE branch_id = $1 AND deleted_at IS NULL
			RETURNING `+branchColumns,
			branch.ID, branch.CompanyID, branch.Name, branch.Address, branch.City, branch.Phone, branch.Email,
			branch.ManagerName, branch.Status, s.now()))
		return err
	})
	if err != nil {
		return models.Branch{}, err
	}
	return updated, nil
}

func (s *Store) GetBranch(ctx context.Context, branchID string) (models.Branch, error) {
	if !validID(branchID) {
		return models.Branch{}, store.ErrBranchNotFound
	}
	return scanBranch(s.pool.QueryRow(ctx, `
		SELECT `+branchColumns+` FROM branches WHERE branch_id = $1 AND deleted_at IS NULL
	`, branchID))
}

func (s *Store) ListBranches(ctx context.Context, filter store.BranchFilter) ([]models.Branch, error) {
	w := &where{}
	w.raw("deleted_at IS NULL")
	if filter.CompanyID != "" {
		if !validID(filter.CompanyID) {
			return nil, nil
		}
		w.add("company_id = ?", filter.CompanyID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}
	if filter.Search != "" {
		w.add("(name ILIKE '%' || ? || '%' OR city ILIKE '%' || ? || '%')", filter.Search)
	}
	query := `SELECT ` + branchColumns + ` FROM branches` + w.sql() + ` ORDER BY name ASC` + w.page(filter.Limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []models.Branch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) DeleteBranch(ctx context.Context, branchID string) error {
	if !validID(branchID) {
		return store.ErrBranchNotFound
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM branches WHERE branch_id = $1 AND deleted_at IS NULL)
		`, branchID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrBranchNotFound
		}
		var inUse bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM qr_codes WHERE assigned_branch_id = $1)
		`, branchID).Scan(&inUse); err != nil {
			return err
		}
		if inUse {
			return store.ErrBranchInUse
		}
		_, err := tx.Exec(ctx, `
			UPDATE branches SET deleted_at = $2, status = 'inactive', updated_at = $2 WHERE branch_id = $1
		`, branchID, s.now())
		return err
	})
}

func ensureCompany(ctx context.Context, tx pgx.Tx, companyID string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM companies WHERE company_id = $1 AND deleted_at IS NULL)
	`, companyID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrCompanyNotFound
	}
	return nil
}

func ensureBranchOfCompany(ctx context.Context, tx pgx.Tx, branchID, companyID string) error {
	var owner string
	err := tx.QueryRow(ctx, `
		SELECT company_id FROM branches WHERE branch_id = $1 AND deleted_at IS NULL
	`, branchID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrBranchNotFound
	}
	if err != nil {
		return err
	}
	if owner != companyID {
		return store.ErrBranchMismatch
	}
	return nil
}
