// Package connectors pulls spreadsheet-bearing mail from a mailbox and
// archives the raw messages for ingestion.
package connectors

import (
	"context"
	"fmt"
	"strings"

	"dataclean/internal"
	"dataclean/internal/config"
	gmailconnector "dataclean/internal/connectors/gmail"
	imapconnector "dataclean/internal/connectors/imap"
)

// MailConnector returns up to max unread messages from mailbox, newest last.
type MailConnector interface {
	Fetch(ctx context.Context, mailbox string, max int) ([]internal.FetchedMailMessage, error)
}

// New builds the connector named by provider ("imap" or "gmail").
func New(cfg config.Config, provider string) (MailConnector, error) {
	var (
		c   MailConnector
		err error
	)
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "imap":
		c, err = imapconnector.NewConnector(cfg)
	case "gmail":
		c, err = gmailconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %q", provider)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
