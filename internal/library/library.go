// Package library stores the PDF course documents: the originals shipped
// by the administrator and the files users upload.
package library

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrNotPDF is returned when an upload does not have a .pdf name.
	ErrNotPDF = errors.New("only .pdf files can be uploaded")
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("file exceeds the upload limit")
)

// Library is a pair of document folders.
type Library struct {
	originals string
	uploads   string
	maxSize   int64
}

// Listing holds the PDF names of both folders.
type Listing struct {
	Originals []string
	Uploads   []string
}

// New creates both folders if they are missing. maxSize <= 0 disables the
// upload limit.
func New(originals, uploads string, maxSize int64) (*Library, error) {
	for _, dir := range []string{originals, uploads} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Library{originals: originals, uploads: uploads, maxSize: maxSize}, nil
}

// OriginalsDir returns the folder of administrator documents.
func (l *Library) OriginalsDir() string { return l.originals }

// UploadsDir returns the folder of user uploads.
func (l *Library) UploadsDir() string { return l.uploads }

// List returns the sorted PDF names of each folder.
func (l *Library) List() (*Listing, error) {
	originals, err := listPDFs(l.originals)
	if err != nil {
		return nil, err
	}
	uploads, err := listPDFs(l.uploads)
	if err != nil {
		return nil, err
	}
	return &Listing{Originals: originals, Uploads: uploads}, nil
}

// Save writes an upload into the uploads folder under the base name of
// name, replacing any file of the same name.
func (l *Library) Save(name string, r io.Reader) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if !isPDF(name) || name == ".pdf" {
		return "", fmt.Errorf("%w: %q", ErrNotPDF, name)
	}

	tmp, err := os.CreateTemp(l.uploads, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if l.maxSize > 0 {
		src = io.LimitReader(r, l.maxSize+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write upload %s: %w", name, err)
	}
	if l.maxSize > 0 && n > l.maxSize {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, name)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(l.uploads, name)); err != nil {
		return "", fmt.Errorf("failed to store upload %s: %w", name, err)
	}
	return name, nil
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isPDF(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func isPDF(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}
