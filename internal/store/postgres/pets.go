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

const petColumns = `pet_id, owner_id, name, species, breed, size, weight, color, birth_date, gender,
	medical_notes, photo_url, created_at, updated_at`

func scanPet(row pgx.Row) (models.Pet, error) {
	var pet models.Pet
	var birthDate sql.NullTime
	if err := row.Scan(&pet.ID, &pet.OwnerID, &pet.Name, &pet.Species, &pet.Breed, &pet.Size, &pet.Weight,
		&pet.Color, &birthDate, &pet.Gender, &pet.MedicalNotes, &pet.PhotoURL, &pet.CreatedAt, &pet.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Pet{}, store.ErrPetNotFound
		}
		return models.Pet{}, err
	}
	pet.BirthDate = nullTimePtr(birthDate)
	return pet, nil
}

func (s *Store) CreatePet(ctx context.Context, pet models.Pet) (models.Pet, error) {
	pet, err := store.NormalizePet(pet)
	if err != nil {
		return models.Pet{}, err
	}
	return scanPet(s.pool.QueryRow(ctx, `
		INSERT INTO pets (pet_id, owner_id, name, species, breed, size, weight, color, birth_date, gender,
			medical_notes, photo_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		RETURNING `+petColumns,
		uuid.NewString(), pet.OwnerID, pet.Name, pet.Species, pet.Breed, pet.Size, pet.Weight, pet.Color,
		pet.BirthDate, pet.Gender, pet.MedicalNotes, pet.PhotoURL, s.now()))
}

// UpdatePet only touches a pet owned by pet.OwnerID.
func (s *Store) UpdatePet(ctx context.Context, pet models.Pet) (models.Pet, error) {
	if !validID(pet.ID) {
		return models.Pet{}, store.ErrPetNotFound
	}
	pet, err := store.NormalizePet(pet)
	if err != nil {
		return models.Pet{}, err
	}
	return scanPet(s.pool.QueryRow(ctx, `
		UPDATE pets
		SET name = $3, species = $4, breed = $5, size = $6, weight = $7, color = $8, birth_date = $9,
			gender = $10, medical_notes = $11, photo_url = $12, updated_at = $13
		WHERE pet_id = $1 AND owner_id = $2
		RETURNING `+petColumns,
		pet.ID, pet.OwnerID, pet.Name, pet.Species, pet.Breed, pet.Size, pet.Weight, pet.Color, pet.BirthDate,
		pet.Gender, pet.MedicalNotes, pet.PhotoURL, s.now()))
}

func (s *Store) GetPet(ctx context.Context, petID string) (models.Pet, error) {
	if !validID(petID) {
		return models.Pet{}, store.ErrPetNotFound
	}
	return scanPet(s.pool.QueryRow(ctx, `SELECT `+petColumns+` FROM pets WHERE pet_id = $1`, petID))
}

func (s *Store) ListPets(ctx context.Context, ownerID string) ([]models.Pet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pets []models.Pet
	for rows.Next() {
		pet, err := scanPet(rows)
		if err != nil {
			return nil, err
		}
		pets = append(pets, pet)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pets, nil
}

func (s *Store) DeletePet(ctx context.Context, ownerID, petID string) error {
	if !validID(petID) {
		return store.ErrPetNotFound
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var linked bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM qr_codes WHERE pet_id = $1)
		`, petID).Scan(&linked); err != nil {
			return err
		}
		if linked {
			return store.ErrPetLinked
		}
		tag, err := tx.Exec(ctx, `DELETE FROM pets WHERE pet_id = $1 AND owner_id = $2`, petID, ownerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return store.ErrPetNotFound
		}
		return nil
	})
}
