package models

type Library struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	About        string `json:"about"`
	Address      string `json:"address"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`
	Hours        string `json:"hours"`
	ImageURL     string `json:"image_url"`
}

// ProfileUpdate is a partial update of a library's public profile. Empty fields are left unchanged.
type ProfileUpdate struct {
	Description  string
	About        string
	Address      string
	ContactPhone string
	ContactEmail string
	Hours        string
	ImageURL     string
}
