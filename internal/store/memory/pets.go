package memory

import (
	"context"
	"sort"

	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreatePet(ctx context.Context, pet models.Pet) (models.Pet, error) {
	pet, err := store.NormalizePet(pet)
	if err != nil {
		return models.Pet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	pet.ID = uuid.NewString()
	pet.CreatedAt = now
	pet.UpdatedAt = now
	s.pets[pet.ID] = pet
	return pet, nil
}

func (s *Store) UpdatePet(ctx context.Context, pet models.Pet) (models.Pet, error) {
	pet, err := store.NormalizePet(pet)
	if err != nil {
		return models.Pet{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.pets[pet.ID]
	if !ok || current.OwnerID != pet.OwnerID {
		return models.Pet{}, store.ErrPetNotFound
	}
	pet.CreatedAt = current.CreatedAt
	pet.UpdatedAt = s.now()
	s.pets[pet.ID] = pet
	return pet, nil
}

func (s *Store) GetPet(ctx context.Context, petID string) (models.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pet, ok := s.pets[petID]
	if !ok {
		return models.Pet{}, store.ErrPetNotFound
	}
	return pet, nil
}

func (s *Store) ListPets(ctx context.Context, ownerID string) ([]models.Pet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Pet
	for _, pet := range s.pets {
		if pet.OwnerID == ownerID {
			out = append(out, pet)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeletePet(ctx context.Context, ownerID, petID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pet, ok := s.pets[petID]
	if !ok || pet.OwnerID != ownerID {
		return store.ErrPetNotFound
	}
	for _, qr := range s.qrCodes {
		if qr.PetID != nil && *qr.PetID == petID {
			return store.ErrPetLinked
		}
	}
	delete(s.pets, petID)
	return nil
}
