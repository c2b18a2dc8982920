package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"dataclean/internal"
	"dataclean/internal/util"
)

// Mail status values. Fetching stores "fetched"; ingestion moves a message
// to "ingested" when it carried a spreadsheet and "skipped" otherwise.
const (
	MailFetched  = "fetched"
	MailIngested = "ingested"
	MailSkipped  = "skipped"
)

var attachmentExts = map[string]bool{
	".xlsx": true, ".xlsm": true, ".xls": true,
	".csv": true, ".tsv": true,
	".json": true, ".pdf": true,
}

type IngestResult struct {
	EmailID  int
	Imported []internal.File
	// Known counts attachments imported by an earlier run.
	Known   int
	Skipped []string
}

func (s *Service) IngestByProviderMessageID(ctx context.Context, provider, messageID string) (IngestResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return IngestResult{}, err
	}
	return s.IngestEmail(ctx, email)
}

// IngestPending imports the attachments of up to limit fetched messages and
// reports how many messages and files were handled.
func (s *Service) IngestPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus(MailFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	emails, files := 0, 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		res, err := s.IngestEmail(ctx, email)
		if err != nil {
			return emails, files, err
		}
		emails++
		files += len(res.Imported)
	}
	return emails, files, nil
}

// IngestEmail saves every spreadsheet attachment of a stored message under
// the inbox directory and imports it. Attachments already recorded for the
// message are left alone, so re-ingesting is safe.
func (s *Service) IngestEmail(ctx context.Context, email internal.EmailRow) (IngestResult, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return IngestResult{}, err
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return IngestResult{}, fmt.Errorf("parse message %d: %w", email.ID, err)
	}

	res := IngestResult{EmailID: email.ID}
	dir := filepath.Join(s.cfg.InboxDir, fmt.Sprintf("%d", email.ID))
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" || !attachmentExts[strings.ToLower(filepath.Ext(name))] {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		seen, err := s.db.HasAttachment(email.ID, name)
		if err != nil {
			return res, err
		}
		if seen {
			res.Known++
			continue
		}

		path := filepath.Join(dir, util.SanitizeName(util.TrimExt(name))+strings.ToLower(filepath.Ext(name)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return res, err
		}
		if err := os.WriteFile(path, att.Content, 0o644); err != nil {
			return res, err
		}
		f, err := s.Import(ctx, path)
		if err != nil {
			s.logger.Warn("attachment not imported", "email_id", email.ID, "attachment", name, "err", err)
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if _, err := s.db.RecordAttachment(email.ID, name, path, f.ID); err != nil {
			return res, err
		}
		res.Imported = append(res.Imported, f)
	}

	status := MailSkipped
	if len(res.Imported) > 0 || res.Known > 0 {
		status = MailIngested
	}
	if err := s.db.UpdateEmailStatus(email.ID, status); err != nil {
		return res, err
	}
	s.logger.Info("mail ingested",
		"email_id", email.ID,
		"subject", firstNonEmpty(env.GetHeader("Subject"), email.Subject),
		"imported", len(res.Imported),
		"skipped", len(res.Skipped),
	)
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
