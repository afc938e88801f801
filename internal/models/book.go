package models

import "time"

type BookStatus string

const (
	BookAvailable BookStatus = "AVAILABLE"
	BookIssued    BookStatus = "ISSUED"
)

type BookType string

const (
	BookPhysical  BookType = "PHYSICAL"
	BookDigital   BookType = "DIGITAL"
	BookNewspaper BookType = "NEWSPAPER"
)

// NoISBN marks resources without an ISBN. It never matches a scanned code.
const NoISBN = "N/A"

type Book struct {
	ID           string     `json:"id"`
	LibraryID    string     `json:"library_id"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	ISBN         string     `json:"isbn"`
	CoverURL     string     `json:"cover_url,omitempty"`
	Status       BookStatus `json:"status"`
	Type         BookType   `json:"type"`
	Link         string     `json:"link,omitempty"`
	IssuedTo     string     `json:"issued_to,omitempty"`
	IssuedToName string     `json:"issued_to_name,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsDigital reports whether the book is an online resource rather than a shelf copy.
func (b *Book) IsDigital() bool {
	return b.Type == BookDigital || b.Type == BookNewspaper
}

// Overdue reports whether an issued book is past its due date at now.
func (b *Book) Overdue(now time.Time) bool {
	return b.Status == BookIssued && b.DueDate != nil && now.After(*b.DueDate)
}

type TransactionStatus string

const (
	TxActive   TransactionStatus = "ACTIVE"
	TxReturned TransactionStatus = "RETURNED"
)

type Transaction struct {
	ID          string            `json:"id"`
	BookID      string            `json:"book_id"`
	BookTitle   string            `json:"book_title"`
	StudentID   string            `json:"student_id"`
	StudentName string            `json:"student_name"`
	LibraryID   string            `json:"library_id"`
	IssueDate   time.Time         `json:"issue_date"`
	DueDate     time.Time         `json:"due_date"`
	ReturnDate  *time.Time        `json:"return_date,omitempty"`
	Fine        int               `json:"fine"`
	Status      TransactionStatus `json:"status"`
}

// StudentHistory groups a student's transactions at one library.
type StudentHistory struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	History []Transaction `json:"history"`
}
