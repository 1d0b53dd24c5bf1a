package memory

import (
	"context"
	"sort"
	"strings"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateCompany(ctx context.Context, company models.Company) (models.Company, error) {
	company, err := store.NormalizeCompany(company)
	if err != nil {
		return models.Company{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	company.ID = uuid.NewString()
	company.CreatedAt = now
	company.UpdatedAt = now
	company.DeletedAt = nil
	s.companies[company.ID] = company
	return company, nil
}

func (s *Store) liveCompany(companyID string) (models.Company, bool) {
	company, ok := s.companies[companyID]
	if !ok || company.DeletedAt != nil {
		return models.Company{}, false
	}
	return company, true
}

func (s *Store) UpdateCompany(ctx context.Context, company models.Company) (models.Company, error) {
	company, err := store.NormalizeCompany(company)
	if err != nil {
		return models.Company{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.liveCompany(company.ID)
	if !ok {
		return models.Company{}, store.ErrCompanyNotFound
	}
	company.CreatedBy = current.CreatedBy
	company.CreatedAt = current.CreatedAt
	company.UpdatedAt = s.now()
	s.companies[company.ID] = company
	return company, nil
}

func (s *Store) SetCompanyStatus(ctx context.Context, companyID, status string) (models.Company, error) {
	if !models.ValidCompanyStatus(status) {
		return models.Company{}, &store.ValidationError{Field: "status", Message: "unknown company status"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.liveCompany(companyID)
	if !ok {
		return models.Company{}, store.ErrCompanyNotFound
	}
	company.Status = status
	company.UpdatedAt = s.now()
	s.companies[company.ID] = company
	return company, nil
}

func (s *Store) GetCompany(ctx context.Context, companyID string) (models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.liveCompany(companyID)
	if !ok {
		return models.Company{}, store.ErrCompanyNotFound
	}
	return company, nil
}

func containsFold(value, search string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(search))
}

func (s *Store) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Company
	for _, company := range s.companies {
		if company.DeletedAt != nil {
			continue
		}
		if filter.Type != "" && company.Type != filter.Type {
			continue
		}
		if filter.Status != "" && company.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !containsFold(company.Name, filter.Search) &&
			!containsFold(company.Email, filter.Search) && !containsFold(company.City, filter.Search) {
			continue
		}
		if filter.CreatedFrom != nil && company.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && company.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		out = append(out, company)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) DeleteCompany(ctx context.Context, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	company, ok := s.liveCompany(companyID)
	if !ok {
		return store.ErrCompanyNotFound
	}
	for _, branch := range s.branches {
		if branch.CompanyID == companyID && branch.DeletedAt == nil && branch.Status == models.BranchStatusActive {
			return store.ErrCompanyInUse
		}
	}
	for _, qr := range s.qrCodes {
		if qr.AssignedCompanyID != nil && *qr.AssignedCompanyID == companyID {
			return store.ErrCompanyInUse
		}
	}
	now := s.now()
	company.DeletedAt = ptr(now)
	company.Status = models.CompanyStatusInactive
	company.UpdatedAt = now
	s.companies[company.ID] = company
	return nil
}

func (s *Store) CreateBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	branch, err := store.NormalizeBranch(branch)
	if err != nil {
		return models.Branch{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveCompany(branch.CompanyID); !ok {
		return models.Branch{}, store.ErrCompanyNotFound
	}
	now := s.now()
	branch.ID = uuid.NewString()
	branch.CreatedAt = now
	branch.UpdatedAt = now
	branch.DeletedAt = nil
	s.branches[branch.ID] = branch
	return branch, nil
}

func (s *Store) liveBranch(branchID string) (models.Branch, bool) {
	branch, ok := s.branches[branchID]
	if !ok || branch.DeletedAt != nil {
		return models.Branch{}, false
	}
	return branch, true
}

func (s *Store) UpdateBranch(ctx context.Context, branch models.Branch) (models.Branch, error) {
	branch, err := store.NormalizeBranch(branch)
	if err != nil {
		return models.Branch{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.liveBranch(branch.ID)
	if !ok {
		return models.Branch{}, store.ErrBranchNotFound
	}
	if _, ok := s.liveCompany(branch.CompanyID); !ok {
		return models.Branch{}, store.ErrCompanyNotFound
	}
	branch.CreatedAt = current.CreatedAt
	branch.UpdatedAt = s.now()
	s.branches[branch.ID] = branch
	return branch, nil
}

func (s *Store) GetBranch(ctx context.Context, branchID string) (models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	branch, ok := s.liveBranch(branchID)
	if !ok {
		return models.Branch{}, store.ErrBranchNotFound
	}
	return branch, nil
}

func (s *Store) ListBranches(ctx context.Context, filter store.BranchFilter) ([]models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Branch
	for _, branch := range s.branches {
		if branch.DeletedAt != nil {
			continue
		}
		if filter.CompanyID != "" && branch.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Status != "" && branch.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !containsFold(branch.Name, filter.Search) && !containsFold(branch.City, filter.Search) {
			continue
		}
		out = append(out, branch)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) DeleteBranch(ctx context.Context, branchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	branch, ok := s.liveBranch(branchID)
	if !ok {
		return store.ErrBranchNotFound
	}
	for _, qr := range s.qrCodes {
		if qr.AssignedBranchID != nil && *qr.AssignedBranchID == branchID {
			return store.ErrBranchInUse
		}
	}
	now := s.now()
	branch.DeletedAt = ptr(now)
	branch.Status = models.BranchStatusInactive
	branch.UpdatedAt = now
	s.branches[branch.ID] = branch
	return nil
}
