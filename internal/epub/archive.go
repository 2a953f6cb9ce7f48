// Package epub reads EPUB containers: the ZIP archive, the OPF package
// document, bibliographic metadata, covers, and spine content. It is not a
// rendering engine; rendering stays with the browser-side viewer.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// ErrEntryNotFound is returned when an archive entry cannot be located even
// with the case-insensitive fallback.
var ErrEntryNotFound = errors.New("epub: archive entry not found")

// ErrInvalidArchive is returned when the payload is not a readable ZIP.
var ErrInvalidArchive = errors.New("epub: invalid or corrupted archive")

// Archive provides named-entry access to an EPUB's ZIP container held in
// memory.
type Archive struct {
	entries map[string]*zip.File
	// lower maps lowercased paths for the case-insensitive fallback.
	// Producers occasionally case the container and OPF paths
	// inconsistently, so an exact miss retries here.
	lower map[string]*zip.File
}

// NewArchive opens a ZIP container from a raw payload.
func NewArchive(data []byte) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, ErrInvalidArchive
	}

	a := &Archive{
		entries: make(map[string]*zip.File, len(zr.File)),
		lower:   make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "/")
		a.entries[name] = f
		// First entry wins on case collisions; exact lookups still hit
		// the right file.
		key := strings.ToLower(name)
		if _, ok := a.lower[key]; !ok {
			a.lower[key] = f
		}
	}
	return a, nil
}

// Has reports whether an entry exists at the given path, including the
// case-insensitive fallback.
func (a *Archive) Has(path string) bool {
	_, err := a.find(path)
	return err == nil
}

// Paths returns all entry paths in the archive.
func (a *Archive) Paths() []string {
	paths := make([]string, 0, len(a.entries))
	for p := range a.entries {
		paths = append(paths, p)
	}
	return paths
}

// ReadBytes returns the raw contents of an entry.
func (a *Archive) ReadBytes(path string) ([]byte, error) {
	f, err := a.find(path)
	if err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ReadText returns the contents of an entry decoded as UTF-8 text.
func (a *Archive) ReadText(path string) (string, error) {
	data, err := a.ReadBytes(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBase64 returns the contents of an entry encoded as base64, for
// embedding binary payloads (covers) in JSON and data URIs.
func (a *Archive) ReadBase64(path string) (string, error) {
	data, err := a.ReadBytes(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// find resolves a path case-sensitively, falling back to a
// case-insensitive match.
func (a *Archive) find(path string) (*zip.File, error) {
	path = strings.TrimPrefix(path, "/")
	if f, ok := a.entries[path]; ok {
		return f, nil
	}
	if f, ok := a.lower[strings.ToLower(path)]; ok {
		return f, nil
	}
	return nil, ErrEntryNotFound
}
