package store

import "upets/platform-service/internal/models"

const (
	MessageNotActivated = "This tag has not been activated yet."
	MessageLost         = "This pet has been reported lost. Please contact the owner."
	MessageFound        = "This pet was reported found."
	MessageExpired      = "This tag is no longer active."
)

// PublicView reduces a code and its links to what a finder may see.
// Owner contact fields are included only when the owner opted in.
func PublicView(qr models.QRCode, pet *models.Pet, profile *models.Profile) models.PublicQRView {
	view := models.PublicQRView{
		Code:   qr.Code,
		Status: qr.Status,
	}
	switch qr.Status {
	case models.QRStatusInactive, models.QRStatusPrinted, models.QRStatusAssigned:
		view.Message = MessageNotActivated
		return view
	case models.QRStatusExpired:
		view.Activated = qr.Linked()
		view.Message = MessageExpired
		return view
	}
	view.Activated = qr.Linked()
	if !view.Activated {
		view.Message = MessageNotActivated
		return view
	}
	switch qr.Status {
	case models.QRStatusLost:
		view.IsLost = true
		view.Message = MessageLost
	case models.QRStatusFound:
		view.Message = MessageFound
	}
	if pet != nil {
		view.Pet = &models.PublicPet{
			Name:         pet.Name,
			Species:      pet.Species,
			Breed:        pet.Breed,
			Color:        pet.Color,
			PhotoURL:     pet.PhotoURL,
			MedicalNotes: pet.MedicalNotes,
		}
	}
	if profile != nil {
		var contact models.PublicContact
		if profile.ShowName {
			contact.Name = profile.FullName
		}
		if profile.ShowPhone {
			contact.Phone = profile.Phone
		}
		if profile.ShowEmail {
			contact.Email = profile.Email
		}
		if profile.ShowWhatsapp {
			contact.Whatsapp = profile.Whatsapp
		}
		if profile.ShowAddress {
			contact.Address = profile.Address
		}
		view.Owner = &contact
	}
	return view
}
