package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir    string
	DBPath     string
	ExportDir  string
	InboxDir   string
	RawMailDir string

	AIProvider    string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AITimeoutMs   int
	AIRateLimit   int
	AIMaxTokens   int
	AITemperature float64

	AnalysisPreviewRows int
	SampleRows          int
	MaxFileMB           int

	IntentExecuteThreshold  float64
	IntentDiscloseThreshold float64
	IntentTargetBonus       float64
	IntentPolicyPath        string

	MetricsAddr string
	LogLevel    string
	LogFormat   string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerCommand      string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	dataDir := getEnv("DATA_DIR", filepath.Join(cwd, "data"))
	cfg := Config{
		DataDir:    dataDir,
		DBPath:     getEnv("DB_PATH", filepath.Join(dataDir, "app.db")),
		ExportDir:  getEnv("EXPORT_DIR", filepath.Join(dataDir, "exports")),
		InboxDir:   getEnv("INBOX_DIR", filepath.Join(dataDir, "inbox")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(dataDir, "raw")),

		AIProvider:    getEnv("AI_PROVIDER", "local"),
		AIAPIKey:      getEnv("AI_API_KEY", ""),
		AIBaseURL:     getEnv("AI_BASE_URL", ""),
		AIModel:       getEnv("AI_MODEL", ""),
		AITimeoutMs:   getEnvInt("AI_TIMEOUT_MS", 60000),
		AIRateLimit:   getEnvInt("AI_RATE_LIMIT_RPS", 2),
		AIMaxTokens:   getEnvInt("AI_MAX_TOKENS", 4000),
		AITemperature: getEnvFloat("AI_TEMPERATURE", 0.1),

		AnalysisPreviewRows: getEnvInt("ANALYSIS_PREVIEW_ROWS", 50),
		SampleRows:          getEnvInt("SAMPLE_ROWS", 100),
		MaxFileMB:           getEnvInt("MAX_FILE_MB", 50),

		IntentExecuteThreshold:  getEnvFloat("INTENT_EXECUTE_THRESHOLD", 0.8),
		IntentDiscloseThreshold: getEnvFloat("INTENT_DISCLOSE_THRESHOLD", 0.5),
		IntentTargetBonus:       getEnvFloat("INTENT_TARGET_BONUS", 0.05),
		IntentPolicyPath:        getEnv("INTENT_POLICY_PATH", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerCommand:      getEnv("MAIL_LISTENER_COMMAND", ""),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// AIEnabled reports whether a remote text-generation provider is configured.
func (c Config) AIEnabled() bool {
	p := strings.ToLower(strings.TrimSpace(c.AIProvider))
	return p != "" && p != "local"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
