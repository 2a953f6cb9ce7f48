package main

import (
	"fmt"
	"log"
	"os"

	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/searchindex"
)

// dbinspect opens the database read-only and reports how the library and
// its derived indexes line up. Useful when the shelf and the search
// results disagree.
func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Inkwell/data/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	bookCount := 0
	pending := 0
	trashed := 0
	withAnnotations := 0
	bookIDs := make(map[string]bool)

	err = db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte("book:")
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix([]byte("book:")); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					return err
				}

				bookCount++
				bookIDs[book.ID] = true
				if book.MetadataPending {
					pending++
				}
				if book.InTrash() {
					trashed++
				}
				if len(book.Highlights)+len(book.Bookmarks) > 0 {
					withAnnotations++
				}

				if bookCount <= 5 {
					fmt.Printf("Book: %s\n", book.Title)
					fmt.Printf("  ID: %s\n", book.ID)
					fmt.Printf("  Author: %s\n", book.Author)
					fmt.Printf("  Genre: %s\n", book.Genre)
					fmt.Printf("  Pages (est): %d\n", book.EstimatedPages)
					fmt.Printf("  Highlights: %d, Bookmarks: %d\n", len(book.Highlights), len(book.Bookmarks))
					fmt.Printf("  Pending: %v, Trashed: %v\n", book.MetadataPending, book.InTrash())
					fmt.Println()
				}
				return nil
			})
			if err != nil {
				log.Printf("Error reading book %s: %v", it.Item().Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	// Content-index manifest: which books the content index believes it
	// has covered, and at which payload signature.
	var manifest contentindex.Manifest
	manifestFound := false
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("contentSearch.__manifest__"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			manifestFound = true
			return json.Unmarshal(val, &manifest)
		})
	})
	if err != nil && err != badger.ErrKeyNotFound {
		log.Printf("Error reading content manifest: %v", err)
	}

	var snapshot searchindex.Snapshot
	snapshotFound := false
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("searchIndex.global"))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snapshotFound = true
			return json.Unmarshal(val, &snapshot)
		})
	})
	if err != nil && err != badger.ErrKeyNotFound {
		log.Printf("Error reading search snapshot: %v", err)
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Total books: %d (pending: %d, trashed: %d, with annotations: %d)\n",
		bookCount, pending, trashed, withAnnotations)

	if manifestFound {
		stale := 0
		for id := range manifest.Books {
			if !bookIDs[id] {
				stale++
			}
		}
		fmt.Printf("Content index: version %d, %d entries, %d stale\n",
			manifest.Version, len(manifest.Books), stale)
	} else {
		fmt.Println("Content index: no manifest (never built)")
	}

	if snapshotFound {
		fmt.Printf("Search snapshot: version %d, %d records\n",
			snapshot.Version, len(snapshot.Records))
	} else {
		fmt.Println("Search snapshot: not built")
	}
}
