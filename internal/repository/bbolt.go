package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	partFilesBucket = "partfiles"
	metadataBucket  = "metadata"
	schemaVersion   = 1
)

var (
	// ErrPartFileNotFound is returned when a torrent has no registered part file.
	ErrPartFileNotFound = errors.New("part file not found")
)

// PartFileRecord is the persisted description of one torrent's part file,
// enough for a restarted session to reopen it with the right geometry.
type PartFileRecord struct {
	TorrentID uuid.UUID `json:"torrentId"`
	Path      string    `json:"path"`
	NumPieces int       `json:"numPieces"`
	PieceSize int       `json:"pieceSize"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BboltRepository persists staging state in a bbolt database.
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository opens (creating if needed) the staging database.
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(partFilesBucket))
		if err != nil {
			return fmt.Errorf("failed to create partfiles bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		if meta.Get([]byte("schemaVersion")) == nil {
			return meta.Put([]byte("schemaVersion"), []byte(fmt.Sprintf("%d", schemaVersion)))
		}

		return nil
	})
}

// SavePartFile upserts the record for a torrent's part file.
func (r *BboltRepository) SavePartFile(rec PartFileRecord) error {
	rec.UpdatedAt = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal part file record: %w", err)
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(partFilesBucket)).Put(rec.TorrentID[:], data)
	})
}

// GetPartFile returns the record for a torrent, or ErrPartFileNotFound.
func (r *BboltRepository) GetPartFile(id uuid.UUID) (PartFileRecord, error) {
	var rec PartFileRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(partFilesBucket)).Get(id[:])
		if data == nil {
			return ErrPartFileNotFound
		}

		return json.Unmarshal(data, &rec)
	})

	return rec, err
}

// DeletePartFile removes a torrent's record. Deleting an absent record is
// not an error.
func (r *BboltRepository) DeletePartFile(id uuid.UUID) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(partFilesBucket)).Delete(id[:])
	})
}

// ListPartFiles returns every registered part file record.
func (r *BboltRepository) ListPartFiles() ([]PartFileRecord, error) {
	var recs []PartFileRecord

	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(partFilesBucket)).ForEach(func(_, v []byte) error {
			var rec PartFileRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			recs = append(recs, rec)

			return nil
		})
	})

	return recs, err
}

// Close closes the underlying database.
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
