package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/inkwellapp/inkwell-server/internal/domain"
)

const (
	bookPrefix       = "book:"
	bookByPathPrefix = "idx:books:path:"
)

var (
	ErrBookNotFound = errors.New("book not found")
	ErrBookExists   = errors.New("book already exists")
)

// Book Operations

// CreateBook creates a new book and its path index atomically.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	key := []byte(bookPrefix + book.ID)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check book exists: %w", err)
	}
	if exists {
		return ErrBookExists
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}

		if book.Path != "" {
			pathKey := []byte(bookByPathPrefix + book.Path)
			if err := txn.Set(pathKey, []byte(book.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "book created",
			slog.String("id", book.ID),
			slog.String("title", book.Title),
			slog.String("path", book.Path),
		)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	key := []byte(bookPrefix + id)

	var book domain.Book
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &book)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// GetBookByPath retrieves a book by its stored payload path. Used by the
// import watcher to dedupe files it has already picked up.
func (s *Store) GetBookByPath(ctx context.Context, path string) (*domain.Book, error) {
	pathKey := []byte(bookByPathPrefix + path)

	var bookID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			bookID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book by path: %w", err)
	}

	return s.GetBook(ctx, bookID)
}

// UpdateBook replaces an existing book record, keeping the path index in
// sync when the payload moved.
func (s *Store) UpdateBook(ctx context.Context, book *domain.Book) error {
	key := []byte(bookPrefix + book.ID)

	previous, err := s.GetBook(ctx, book.ID)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}

		if previous.Path != book.Path {
			if previous.Path != "" {
				if err := txn.Delete([]byte(bookByPathPrefix + previous.Path)); err != nil {
					return err
				}
			}
			if book.Path != "" {
				if err := txn.Set([]byte(bookByPathPrefix+book.Path), []byte(book.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// ListBooks returns every book in the library, trashed ones included.
// Callers filter on InTrash when they want only the active shelf.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	var books []*domain.Book

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(bookPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					return fmt.Errorf("unmarshal book %s: %w", it.Item().Key(), err)
				}
				books = append(books, &book)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// DeleteBook permanently removes a book record and its path index. The
// caller is responsible for removing derived index records first.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(bookPrefix + id)); err != nil {
			return err
		}
		if book.Path != "" {
			if err := txn.Delete([]byte(bookByPathPrefix + book.Path)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if s.logger != nil {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "book deleted",
			slog.String("id", id),
			slog.String("title", book.Title),
		)
	}
	return nil
}
