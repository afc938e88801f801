package models

import "time"

type NotificationType string

const (
	NotifyAlert    NotificationType = "ALERT"
	NotifyInfo     NotificationType = "INFO"
	NotifyDeadline NotificationType = "DEADLINE"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	LibraryID string           `json:"library_id,omitempty"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Date      time.Time        `json:"date"`
	Read      bool             `json:"read"`
	Type      NotificationType `json:"type"`
	// Ref names the record the notification is about, such as a transaction id.
	Ref string `json:"ref,omitempty"`
}

type ResourceKind string

const (
	ResourceEPaper  ResourceKind = "EPAPER"
	ResourcePDFBook ResourceKind = "PDF_BOOK"
	ResourcePhoto   ResourceKind = "PHOTO"
	ResourceCover   ResourceKind = "COVER"
)

// ParseResourceKind accepts the canonical kind or its lower-case form.
func ParseResourceKind(s string) (ResourceKind, bool) {
	switch ResourceKind(s) {
	case ResourceEPaper, ResourcePDFBook, ResourcePhoto, ResourceCover:
		return ResourceKind(s), true
	}
	switch s {
	case "epaper":
		return ResourceEPaper, true
	case "pdf_book", "pdf":
		return ResourcePDFBook, true
	case "photo":
		return ResourcePhoto, true
	case "cover":
		return ResourceCover, true
	}
	return "", false
}

// Resource is an uploaded file owned by a library.
type Resource struct {
	ID          string       `json:"id"`
	LibraryID   string       `json:"library_id"`
	Kind        ResourceKind `json:"kind"`
	Title       string       `json:"title"`
	FileName    string       `json:"file_name"`
	ContentType string       `json:"content_type"`
	Size        int64        `json:"size"`
	UploadedAt  time.Time    `json:"uploaded_at"`
}

// URL is the download path served by the web layer.
func (r *Resource) URL() string {
	return "/files/" + r.LibraryID + "/" + string(r.Kind) + "/" + r.FileName
}
