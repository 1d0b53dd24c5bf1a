package models

import "time"

type Pet struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	Species      string     `json:"species"`
	Breed        string     `json:"breed,omitempty"`
	Size         string     `json:"size,omitempty"`
	Weight       float64    `json:"weight,omitempty"`
	Color        string     `json:"color,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	MedicalNotes string     `json:"medical_notes,omitempty"`
	PhotoURL     string     `json:"photo_url,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

const (
	SpeciesDog    = "dog"
	SpeciesCat    = "cat"
	SpeciesBird   = "bird"
	SpeciesRabbit = "rabbit"
	SpeciesOther  = "other"
)

func ValidSpecies(value string) bool {
	switch value {
	case SpeciesDog, SpeciesCat, SpeciesBird, SpeciesRabbit, SpeciesOther:
		return true
	}
	return false
}

func ValidPetSize(value string) bool {
	switch value {
	case "", "small", "medium", "large":
		return true
	}
	return false
}
