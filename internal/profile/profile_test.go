package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProfileDefaults 测试默认配置
func TestProfileDefaults(t *testing.T) {
	clearEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"AILLMProvider default", "openai", profile.AILLMProvider},
		{"AILLMModel default", "gpt-4o-mini", profile.AILLMModel},
		{"AIOpenAIBaseURL default", "https://api.openai.com/v1", profile.AIOpenAIBaseURL},
		{"AIDeepSeekBaseURL default", "https://api.deepseek.com", profile.AIDeepSeekBaseURL},
		{"TTSProvider disabled by default", "", profile.TTSProvider},
		{"TTSModel default", "tts-1", profile.TTSModel},
		{"ElevenLabsBaseURL default", "https://api.elevenlabs.io", profile.ElevenLabsBaseURL},
		{"SayVoice default", "Polly.Joanna", profile.SayVoice},
		{"SayLanguage default", "en-US", profile.SayLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}

	assert.Equal(t, 30*time.Minute, profile.SessionIdleTTL)
	assert.Equal(t, time.Minute, profile.SessionSweepInterval)
	assert.Equal(t, 8*time.Second, profile.ChatTimeout)
	assert.Equal(t, 5*time.Second, profile.TTSTimeout)
	assert.Equal(t, 10*time.Second, profile.ToolTimeout)
	assert.Equal(t, 587, profile.SMTPPort)
	assert.False(t, profile.TwilioValidateSignature)
}

// TestProfileFromEnv 测试从环境变量读取配置
func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "LIV_AI_OPENAI_API_KEY",
			env:      map[string]string{"LIV_AI_OPENAI_API_KEY": "liv-key"},
			field:    func(p *Profile) string { return p.AIOpenAIAPIKey },
			expected: "liv-key",
		},
		{
			name:     "OPENAI_API_KEY fallback",
			env:      map[string]string{"OPENAI_API_KEY": "vendor-key"},
			field:    func(p *Profile) string { return p.AIOpenAIAPIKey },
			expected: "vendor-key",
		},
		{
			name:     "LIV prefix wins over vendor name",
			env:      map[string]string{"LIV_TWILIO_AUTH_TOKEN": "new", "TWILIO_AUTH_TOKEN": "old"},
			field:    func(p *Profile) string { return p.TwilioAuthToken },
			expected: "new",
		},
		{
			name:     "TWILIO_PHONE_NUMBER fallback",
			env:      map[string]string{"TWILIO_PHONE_NUMBER": "+15550001111"},
			field:    func(p *Profile) string { return p.TwilioFromNumber },
			expected: "+15550001111",
		},
		{
			name:     "ELEVENLABS_API_KEY fallback",
			env:      map[string]string{"ELEVENLABS_API_KEY": "el-key"},
			field:    func(p *Profile) string { return p.ElevenLabsAPIKey },
			expected: "el-key",
		},
		{
			name:     "LIV_NOTIFY_URL",
			env:      map[string]string{"LIV_NOTIFY_URL": "https://hooks.example.com/liv"},
			field:    func(p *Profile) string { return p.NotifyURL },
			expected: "https://hooks.example.com/liv",
		},
		{
			name:     "LIV_CHAT_TIMEOUT",
			env:      map[string]string{"LIV_CHAT_TIMEOUT": "3s"},
			field:    func(p *Profile) string { return p.ChatTimeout.String() },
			expected: "3s",
		},
		{
			name:     "invalid duration keeps default",
			env:      map[string]string{"LIV_TTS_TIMEOUT": "soon"},
			field:    func(p *Profile) string { return p.TTSTimeout.String() },
			expected: "5s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			profile := &Profile{}
			profile.FromEnv()

			assert.Equal(t, tt.expected, tt.field(profile))
		})
	}
}

// TestIsAIEnabled 测试 IsAIEnabled 逻辑
func TestIsAIEnabled(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		expected bool
	}{
		{"openai without key", Profile{AILLMProvider: "openai"}, false},
		{"openai with key", Profile{AILLMProvider: "openai", AIOpenAIAPIKey: "k"}, true},
		{"deepseek with openai key only", Profile{AILLMProvider: "deepseek", AIOpenAIAPIKey: "k"}, false},
		{"deepseek with key", Profile{AILLMProvider: "deepseek", AIDeepSeekAPIKey: "k"}, true},
		{"ollama with base url", Profile{AILLMProvider: "ollama", AIOllamaBaseURL: "http://localhost:11434/v1"}, true},
		{"unknown provider", Profile{AILLMProvider: "keyword", AIOpenAIAPIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.profile.IsAIEnabled())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("defaults sqlite dsn inside data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "weird", Data: dir}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, filepath.Join(dir, "livbridge_demo.db"), p.DSN)
	})

	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: filepath.Join(os.TempDir(), "livbridge-does-not-exist-7c1f")}
		assert.Error(t, p.Validate())
	})

	t.Run("signature validation needs token and url", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), TwilioValidateSignature: true, TwilioAuthToken: "tok"}
		assert.Error(t, p.Validate())

		p.InstanceURL = "https://liv.example.com/"
		require.NoError(t, p.Validate())
		assert.Equal(t, "https://liv.example.com", p.InstanceURL)
	})
}

// Helper functions

func clearEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"LIV_AI_LLM_PROVIDER", "LIV_AI_LLM_MODEL",
		"LIV_AI_OPENAI_API_KEY", "OPENAI_API_KEY", "LIV_AI_OPENAI_BASE_URL",
		"LIV_AI_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY", "LIV_AI_DEEPSEEK_BASE_URL",
		"LIV_AI_OLLAMA_BASE_URL",
		"LIV_TTS_PROVIDER", "LIV_TTS_MODEL", "LIV_TTS_VOICE",
		"LIV_ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY", "LIV_ELEVENLABS_VOICE_ID", "ELEVENLABS_VOICE_ID", "LIV_ELEVENLABS_BASE_URL",
		"LIV_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID",
		"LIV_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN",
		"LIV_TWILIO_FROM_NUMBER", "TWILIO_PHONE_NUMBER",
		"LIV_TWILIO_VALIDATE_SIGNATURE", "LIV_SAY_VOICE", "LIV_SAY_LANGUAGE",
		"LIV_NOTIFY_URL", "LIV_ONCALL_NUMBER",
		"LIV_SMTP_HOST", "LIV_SMTP_PORT", "LIV_SMTP_USERNAME", "LIV_SMTP_PASSWORD", "LIV_SMTP_FROM",
		"LIV_MARKETPLACE_SECRET",
		"LIV_SESSION_IDLE_TTL", "LIV_SESSION_SWEEP_INTERVAL",
		"LIV_CHAT_TIMEOUT", "LIV_TTS_TIMEOUT", "LIV_TOOL_TIMEOUT",
	}
	for _, envVar := range envVars {
		t.Setenv(envVar, "")
	}
}
