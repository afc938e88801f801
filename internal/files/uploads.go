// Package files stores uploaded library resources on disk.
package files

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"jnanayoni/internal/models"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("upload too large")
	// ErrUnsupportedType is returned when the sniffed content type is not allowed for the kind.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrBadName is returned for path components that could escape the upload root.
	ErrBadName = errors.New("invalid file name")
)

const sniffLen = 3072

// Stored describes a file written by Save.
type Stored struct {
	FileName    string
	ContentType string
	Size        int64
}

// Store keeps uploads under <root>/<libraryID>/<kind>/.
type Store struct {
	root     string
	maxBytes int64
}

// NewStore returns a store rooted at root that accepts files up to maxBytes.
func NewStore(root string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("creating upload root: %w", err)
	}
	return &Store{root: root, maxBytes: maxBytes}, nil
}

// MaxBytes is the upload size limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// LimitText renders the size limit for error messages, e.g. "52 MB".
func (s *Store) LimitText() string { return humanize.Bytes(uint64(s.maxBytes)) }

// Allowed reports whether a sniffed content type may be stored as kind.
func Allowed(kind models.ResourceKind, mtype *mimetype.MIME) bool {
	switch kind {
	case models.ResourceEPaper, models.ResourcePDFBook:
		return mtype.Is("application/pdf")
	case models.ResourcePhoto, models.ResourceCover:
		return strings.HasPrefix(mtype.String(), "image/")
	}
	return false
}

// Save streams r into a new file for libraryID and kind. The stored name is random;
// filename only contributes its extension when sniffing yields none.
func (s *Store) Save(kind models.ResourceKind, libraryID, filename string, r io.Reader) (*Stored, error) {
	if err := checkName(libraryID); err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	mtype := mimetype.Detect(head)
	if !Allowed(kind, mtype) {
		return nil, fmt.Errorf("%s as %s: %w", mtype.String(), kind, ErrUnsupportedType)
	}

	dir := filepath.Join(s.root, libraryID, string(kind))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	ext := mtype.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filepath.Base(filename)))
	}
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(br, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}
	if n > s.maxBytes {
		return nil, fmt.Errorf("%s exceeds %s: %w", humanize.Bytes(uint64(n)), s.LimitText(), ErrTooLarge)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	return &Stored{FileName: name, ContentType: mtype.String(), Size: n}, nil
}

// Open returns a stored file for reading.
func (s *Store) Open(libraryID string, kind models.ResourceKind, name string) (*os.File, error) {
	p, err := s.path(libraryID, kind, name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Remove deletes a stored file. Missing files are not an error.
func (s *Store) Remove(libraryID string, kind models.ResourceKind, name string) error {
	p, err := s.path(libraryID, kind, name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) path(libraryID string, kind models.ResourceKind, name string) (string, error) {
	kind, ok := models.ParseResourceKind(string(kind))
	if !ok {
		return "", ErrBadName
	}
	if err := checkName(libraryID); err != nil {
		return "", err
	}
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, libraryID, string(kind), name), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%q: %w", name, ErrBadName)
	}
	return nil
}
