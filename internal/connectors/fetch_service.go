package connectors

import (
	"context"
	"log/slog"

	"dataclean/internal/metrics"
	"dataclean/internal/storage"
)

type Fetcher struct {
	connector MailConnector
	archive   *Archive
	logger    *slog.Logger
}

type FetchResult struct {
	Fetched int
	// New counts messages whose raw bytes were not archived before.
	New int
}

func NewFetcher(db *storage.DB, rawMailDir string, connector MailConnector, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		connector: connector,
		archive:   NewArchive(db, rawMailDir),
		logger:    logger,
	}
}

// Fetch pulls up to max messages from mailbox and archives each one.
func (f *Fetcher) Fetch(ctx context.Context, mailbox string, max int) (FetchResult, error) {
	messages, err := f.connector.Fetch(ctx, mailbox, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		row, fresh, err := f.archive.Store(msg)
		if err != nil {
			return res, err
		}
		if fresh {
			res.New++
		}
		f.logger.Debug("mail archived", "email_id", row.ID, "provider", msg.Provider, "subject", msg.Subject, "new", fresh)
		metrics.RecordMailFetched(msg.Provider, 1)
	}
	return res, nil
}
