package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the bridge server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where the lead store keeps its data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the public base url Twilio reaches this server on.
	// Used to build absolute action/audio urls and to validate request signatures.
	InstanceURL string
	// BrainDir holds the persona *.txt modules and liv-config.yaml
	BrainDir string

	// Chat model configuration
	AILLMProvider     string // LIV_AI_LLM_PROVIDER (default: openai)
	AILLMModel        string // LIV_AI_LLM_MODEL (default: gpt-4o-mini)
	AIOpenAIAPIKey    string // LIV_AI_OPENAI_API_KEY (legacy: OPENAI_API_KEY)
	AIOpenAIBaseURL   string // LIV_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIDeepSeekAPIKey  string // LIV_AI_DEEPSEEK_API_KEY (legacy: DEEPSEEK_API_KEY)
	AIDeepSeekBaseURL string // LIV_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AIOllamaBaseURL   string // LIV_AI_OLLAMA_BASE_URL (default: http://localhost:11434/v1)

	// Speech synthesis configuration
	TTSProvider       string // LIV_TTS_PROVIDER (openai, elevenlabs, empty disables)
	TTSModel          string // LIV_TTS_MODEL (default: tts-1)
	TTSVoice          string // LIV_TTS_VOICE (default: nova)
	ElevenLabsAPIKey  string // LIV_ELEVENLABS_API_KEY (legacy: ELEVENLABS_API_KEY)
	ElevenLabsVoiceID string // LIV_ELEVENLABS_VOICE_ID
	ElevenLabsBaseURL string // LIV_ELEVENLABS_BASE_URL (default: https://api.elevenlabs.io)

	// Telephony configuration
	TwilioAccountSID        string // LIV_TWILIO_ACCOUNT_SID (legacy: TWILIO_ACCOUNT_SID)
	TwilioAuthToken         string // LIV_TWILIO_AUTH_TOKEN (legacy: TWILIO_AUTH_TOKEN)
	TwilioFromNumber        string // LIV_TWILIO_FROM_NUMBER (legacy: TWILIO_PHONE_NUMBER)
	TwilioValidateSignature bool   // LIV_TWILIO_VALIDATE_SIGNATURE
	SayVoice                string // LIV_SAY_VOICE (default: Polly.Joanna)
	SayLanguage             string // LIV_SAY_LANGUAGE (default: en-US)

	// Human hand-off
	NotifyURL    string // LIV_NOTIFY_URL
	OnCallNumber string // LIV_ONCALL_NUMBER
	NotifyEmail  string // LIV_NOTIFY_EMAIL

	// Outbound email
	SMTPHost     string // LIV_SMTP_HOST
	SMTPPort     int    // LIV_SMTP_PORT (default: 587)
	SMTPUsername string // LIV_SMTP_USERNAME
	SMTPPassword string // LIV_SMTP_PASSWORD
	SMTPFrom     string // LIV_SMTP_FROM

	// MarketplaceSecret enables HS256 bearer auth on the marketplace webhooks when set.
	MarketplaceSecret string // LIV_MARKETPLACE_SECRET

	SessionIdleTTL       time.Duration // LIV_SESSION_IDLE_TTL (default: 30m)
	SessionSweepInterval time.Duration // LIV_SESSION_SWEEP_INTERVAL (default: 1m)
	ChatTimeout          time.Duration // LIV_CHAT_TIMEOUT (default: 8s)
	TTSTimeout           time.Duration // LIV_TTS_TIMEOUT (default: 5s)
	ToolTimeout          time.Duration // LIV_TOOL_TIMEOUT (default: 10s)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if a chat model can be reached with the configured provider.
// Without it the bridge answers with the keyword responder.
func (p *Profile) IsAIEnabled() bool {
	switch p.AILLMProvider {
	case "openai":
		return p.AIOpenAIAPIKey != ""
	case "deepseek":
		return p.AIDeepSeekAPIKey != ""
	case "ollama":
		return p.AIOllamaBaseURL != ""
	}
	return false
}

// IsTwilioEnabled returns true if outbound REST calls to Twilio are possible.
func (p *Profile) IsTwilioEnabled() bool {
	return p.TwilioAccountSID != "" && p.TwilioAuthToken != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads vendor and runtime configuration from environment variables.
// Supports both LIV_* (preferred) and the vendors' own unprefixed names.
func (p *Profile) FromEnv() {
	// Helper to get env value with legacy fallback
	// Skips empty values to allow defaults to take effect
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		if legacyKey == "" {
			return ""
		}
		return os.Getenv(legacyKey)
	}

	getEnvWithDefault := func(newKey, legacyKey, defaultValue string) string {
		if val := getEnvWithFallback(newKey, legacyKey); val != "" {
			return val
		}
		return defaultValue
	}

	getDurationEnv := func(key string, defaultValue time.Duration) time.Duration {
		raw := os.Getenv(key)
		if raw == "" {
			return defaultValue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			slog.Warn("ignoring invalid duration", slog.String("key", key), slog.String("value", raw))
			return defaultValue
		}
		return d
	}

	p.AILLMProvider = getEnvWithDefault("LIV_AI_LLM_PROVIDER", "", "openai")
	p.AILLMModel = getEnvWithDefault("LIV_AI_LLM_MODEL", "", "gpt-4o-mini")
	p.AIOpenAIAPIKey = getEnvWithFallback("LIV_AI_OPENAI_API_KEY", "OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvWithDefault("LIV_AI_OPENAI_BASE_URL", "", "https://api.openai.com/v1")
	p.AIDeepSeekAPIKey = getEnvWithFallback("LIV_AI_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY")
	p.AIDeepSeekBaseURL = getEnvWithDefault("LIV_AI_DEEPSEEK_BASE_URL", "", "https://api.deepseek.com")
	p.AIOllamaBaseURL = getEnvWithDefault("LIV_AI_OLLAMA_BASE_URL", "", "http://localhost:11434/v1")

	p.TTSProvider = os.Getenv("LIV_TTS_PROVIDER")
	p.TTSModel = getEnvWithDefault("LIV_TTS_MODEL", "", "tts-1")
	p.TTSVoice = getEnvWithDefault("LIV_TTS_VOICE", "", "nova")
	p.ElevenLabsAPIKey = getEnvWithFallback("LIV_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY")
	p.ElevenLabsVoiceID = getEnvWithFallback("LIV_ELEVENLABS_VOICE_ID", "ELEVENLABS_VOICE_ID")
	p.ElevenLabsBaseURL = getEnvWithDefault("LIV_ELEVENLABS_BASE_URL", "", "https://api.elevenlabs.io")

	p.TwilioAccountSID = getEnvWithFallback("LIV_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID")
	p.TwilioAuthToken = getEnvWithFallback("LIV_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN")
	p.TwilioFromNumber = getEnvWithFallback("LIV_TWILIO_FROM_NUMBER", "TWILIO_PHONE_NUMBER")
	p.TwilioValidateSignature = os.Getenv("LIV_TWILIO_VALIDATE_SIGNATURE") == "true"
	p.SayVoice = getEnvOrDefault("LIV_SAY_VOICE", "Polly.Joanna")
	p.SayLanguage = getEnvOrDefault("LIV_SAY_LANGUAGE", "en-US")

	p.NotifyURL = os.Getenv("LIV_NOTIFY_URL")
	p.OnCallNumber = os.Getenv("LIV_ONCALL_NUMBER")
	p.NotifyEmail = os.Getenv("LIV_NOTIFY_EMAIL")

	p.SMTPHost = os.Getenv("LIV_SMTP_HOST")
	p.SMTPPort = 587
	if raw := os.Getenv("LIV_SMTP_PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil {
			p.SMTPPort = port
		}
	}
	p.SMTPUsername = os.Getenv("LIV_SMTP_USERNAME")
	p.SMTPPassword = os.Getenv("LIV_SMTP_PASSWORD")
	p.SMTPFrom = os.Getenv("LIV_SMTP_FROM")

	p.MarketplaceSecret = os.Getenv("LIV_MARKETPLACE_SECRET")

	p.SessionIdleTTL = getDurationEnv("LIV_SESSION_IDLE_TTL", 30*time.Minute)
	p.SessionSweepInterval = getDurationEnv("LIV_SESSION_SWEEP_INTERVAL", time.Minute)
	p.ChatTimeout = getDurationEnv("LIV_CHAT_TIMEOUT", 8*time.Second)
	p.TTSTimeout = getDurationEnv("LIV_TTS_TIMEOUT", 5*time.Second)
	p.ToolTimeout = getDurationEnv("LIV_TOOL_TIMEOUT", 10*time.Second)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported driver %q", p.Driver)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "livbridge")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/livbridge"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("livbridge_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.TwilioValidateSignature && (p.TwilioAuthToken == "" || p.InstanceURL == "") {
		return errors.New("signature validation needs both a Twilio auth token and an instance url")
	}
	p.InstanceURL = strings.TrimRight(p.InstanceURL, "/")

	return nil
}
