package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dataclean/internal/connectors"
	"dataclean/internal/listener"
	"dataclean/internal/mcp"
)

func newMailFetchCommand(a *app) *cobra.Command {
	var (
		provider, mailbox string
		max               int
	)
	cmd := &cobra.Command{
		Use:   "mail:fetch",
		Short: "Archive unread messages with attachments from a mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := connectors.New(a.cfg, provider)
			if err != nil {
				return err
			}
			res, err := connectors.NewFetcher(a.db, a.cfg.RawMailDir, conn, a.logger).Fetch(cmd.Context(), mailbox, max)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mail fetch done provider=%s fetched=%d new=%d\n", provider, res.Fetched, res.New)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "imap", "imap or gmail")
	cmd.Flags().StringVar(&mailbox, "label", "INBOX", "Mailbox or label")
	cmd.Flags().IntVar(&max, "max", 50, "Maximum messages")
	return cmd
}

func newMailIngestCommand(a *app) *cobra.Command {
	var (
		provider, messageID string
		batch               int
	)
	cmd := &cobra.Command{
		Use:   "mail:ingest",
		Short: "Import spreadsheet attachments of fetched messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(messageID) != "" {
				res, err := a.svc.IngestByProviderMessageID(cmd.Context(), provider, messageID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested email id=%d imported=%d skipped=%d\n", res.EmailID, len(res.Imported), len(res.Skipped))
				return nil
			}
			emails, files, err := a.svc.IngestPending(cmd.Context(), batch, provider)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested pending emails=%d files=%d\n", emails, files)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "Only messages from this provider")
	cmd.Flags().StringVar(&messageID, "messageId", "", "A specific Message-ID")
	cmd.Flags().IntVar(&batch, "batch", 20, "Batch size")
	return cmd
}

func newMailListenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mail:listen",
		Short: "Poll the mailbox and import attachments until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.serveMetrics(cmd.Context())
			return listener.NewService(a.db, a.cfg, a.svc, nil, a.logger).Run(cmd.Context())
		},
	}
}

func newMCPServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp:serve",
		Short: "Serve the canvas tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.serveMetrics(cmd.Context())
			srv := mcp.NewServer(mcp.ServerConfig{Service: a.svc, Version: version})
			a.logger.Info("mcp server on stdio", "version", version)
			return mcp.ServeStdio(cmd.Context(), srv)
		},
	}
}
