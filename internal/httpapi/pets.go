package httpapi

import (
	"net/http"
	"strings"
	"time"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/models"
	"upets/platform-service/internal/store"

	"github.com/go-chi/chi/v5"
)

type petRequest struct {
	Name         string     `json:"name"`
	Species      string     `json:"species"`
	Breed        string     `json:"breed"`
	Size         string     `json:"size"`
	Weight       float64    `json:"weight"`
	Color        string     `json:"color"`
	BirthDate    *time.Time `json:"birth_date"`
	Gender       string     `json:"gender"`
	MedicalNotes string     `json:"medical_notes"`
	PhotoURL     string     `json:"photo_url"`
}

func (req petRequest) pet(ownerID string) models.Pet {
	return models.Pet{
		OwnerID:      ownerID,
		Name:         req.Name,
		Species:      strings.TrimSpace(req.Species),
		Breed:        strings.TrimSpace(req.Breed),
		Size:         strings.TrimSpace(req.Size),
		Weight:       req.Weight,
		Color:        strings.TrimSpace(req.Color),
		BirthDate:    req.BirthDate,
		Gender:       strings.TrimSpace(req.Gender),
		MedicalNotes: strings.TrimSpace(req.MedicalNotes),
		PhotoURL:     strings.TrimSpace(req.PhotoURL),
	}
}

func (h *Handler) handleListPets(w http.ResponseWriter, r *http.Request) {
	pets, err := h.store.ListPets(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if pets == nil {
		pets = []models.Pet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pets": pets})
}

func (h *Handler) handleCreatePet(w http.ResponseWriter, r *http.Request) {
	var req petRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pet, err := h.store.CreatePet(r.Context(), req.pet(auth.UserID(r.Context())))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pet)
}

// handleGetPet hides pets of other owners behind 404 unless the caller is
// an administrator.
func (h *Handler) handleGetPet(w http.ResponseWriter, r *http.Request) {
	pet, err := h.store.GetPet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if pet.OwnerID != auth.UserID(r.Context()) && !h.isAdmin(r) {
		h.fail(w, r, store.ErrPetNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pet)
}

func (h *Handler) handleUpdatePet(w http.ResponseWriter, r *http.Request) {
	var req petRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pet := req.pet(auth.UserID(r.Context()))
	pet.ID = chi.URLParam(r, "id")
	updated, err := h.store.UpdatePet(r.Context(), pet)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeletePet(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeletePet(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
