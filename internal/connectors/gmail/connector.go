// Package gmail fetches messages with attachments through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"dataclean/internal"
	"dataclean/internal/config"
)

// query narrows listing to unread messages that carry a file.
const query = "is:unread has:attachment"

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ctx := context.Background()
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc}, nil
}

// Fetch lists unread messages with attachments under label and downloads
// each in raw form. Headers come from the raw bytes.
func (c *Connector) Fetch(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	call := c.service.Users.Messages.List("me").Q(query).Context(ctx)
	if label != "" {
		call = call.LabelIds(label)
	}
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	list, err := call.Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		if ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if msg.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, err
		}
		out = append(out, fromRaw(ref.Id, raw, msg.InternalDate))
	}
	// Listing is newest first; callers expect oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// fromRaw fills the message fields from the RFC 822 headers of raw,
// falling back to the Gmail id and internal date (epoch ms).
func fromRaw(id string, raw []byte, internalDateMs int64) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{Provider: "gmail", MessageID: id, Raw: raw}
	received := time.Now().UTC()
	if internalDateMs > 0 {
		received = time.UnixMilli(internalDateMs).UTC()
	}

	if m, err := mail.ReadMessage(strings.NewReader(string(raw))); err == nil {
		dec := new(mime.WordDecoder)
		out.Subject = decodeHeader(dec, m.Header.Get("Subject"))
		out.From = decodeHeader(dec, m.Header.Get("From"))
		if v := strings.TrimSpace(m.Header.Get("Message-ID")); v != "" {
			out.MessageID = v
		}
		if t, err := m.Header.Date(); err == nil && internalDateMs <= 0 {
			received = t.UTC()
		}
	}
	out.ReceivedAt = received.Format(time.RFC3339)
	return out
}

func decodeHeader(dec *mime.WordDecoder, v string) string {
	if s, err := dec.DecodeHeader(v); err == nil {
		return s
	}
	return v
}

func decodeBase64URL(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode gmail raw payload: %w", err)
	}
	return decoded, nil
}
