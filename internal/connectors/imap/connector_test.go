package imap

import (
	"testing"

	"github.com/emersion/go-imap"
)

func TestHasAttachment(t *testing.T) {
	plain := &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}
	withFile := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			plain,
			{
				MIMEType:          "text",
				MIMESubType:       "csv",
				Disposition:       "attachment",
				DispositionParams: map[string]string{"filename": "bill.csv"},
			},
		},
	}

	cases := []struct {
		name string
		bs   *imap.BodyStructure
		want bool
	}{
		{"nil", nil, true},
		{"plain", plain, false},
		{"attachment", withFile, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasAttachment(tc.bs); got != tc.want {
				t.Fatalf("hasAttachment=%v want %v", got, tc.want)
			}
		})
	}
}

func TestFormatAddresses(t *testing.T) {
	got := formatAddresses([]*imap.Address{
		{PersonalName: "Finance", MailboxName: "bills", HostName: "example.com"},
		nil,
		{MailboxName: "ops", HostName: "example.com"},
	})
	if got != "Finance <bills@example.com>, ops@example.com" {
		t.Fatalf("got %q", got)
	}
}
