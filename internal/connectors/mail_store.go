package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"dataclean/internal"
	"dataclean/internal/storage"
)

// Archive keeps raw messages on disk, named by content hash, and their
// headers in the emails table.
type Archive struct {
	db  *storage.DB
	dir string
}

func NewArchive(db *storage.DB, dir string) *Archive {
	return &Archive{db: db, dir: dir}
}

// Store writes msg once and upserts its row. A message seen before keeps
// its ingestion status.
func (a *Archive) Store(msg internal.FetchedMailMessage) (internal.EmailRow, bool, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return internal.EmailRow{}, false, err
	}
	path := filepath.Join(a.dir, hash+".eml")
	_, err := os.Stat(path)
	fresh := errors.Is(err, fs.ErrNotExist)
	if fresh {
		if err := os.WriteFile(path, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, false, err
		}
	}

	row, err := a.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, path, "fetched")
	return row, fresh, err
}
