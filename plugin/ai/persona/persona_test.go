package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officialmortgage/livbridge/plugin/ai/session"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Run("modules are joined in name order", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "20-tone.txt", "Be warm.")
		writeFile(t, dir, "10-identity.txt", "You are Liv.")
		writeFile(t, dir, "notes.md", "ignored")

		b, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "You are Liv.\n\nBe warm.", b.Prompt)
		assert.Equal(t, []string{"10-identity.txt", "20-tone.txt"}, b.Modules)
		assert.Equal(t, DefaultConfig().Greeting, b.Config.Greeting)
	})

	t.Run("missing directory uses fallback persona", func(t *testing.T) {
		b, err := Load(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		assert.Equal(t, fallbackPrompt, b.Prompt)
		assert.Empty(t, b.Modules)
	})

	t.Run("empty directory uses fallback persona", func(t *testing.T) {
		b, err := Load(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, fallbackPrompt, b.Prompt)
	})

	t.Run("config overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ConfigFile, `
greeting: Hello from Liv.
links:
  marketplace: https://om.example.com/start
  refi: https://om.example.com/refi
intents:
  - name: REFI
    keywords: [refi, refinance]
    links: [refi, marketplace]
    reply: Check your texts for refinance options.
tools: [send_link, tag_outcome]
`)
		b, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, "Hello from Liv.", b.Config.Greeting)
		assert.Equal(t, "https://om.example.com/refi", b.Config.Links["refi"])
		assert.Equal(t, []string{"send_link", "tag_outcome"}, b.Config.Tools)
		require.Len(t, b.Config.Intents, 1)
		assert.Equal(t, []string{"refi", "marketplace"}, b.Config.Intents[0].Links)
		assert.Equal(t, DefaultConfig().HotLeadRule, b.Config.HotLeadRule)
	})

	t.Run("malformed config is an error", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ConfigFile, "intents: {")
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("intent with unknown link is an error", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, ConfigFile, "intents:\n  - name: DSCR\n    keywords: [dscr]\n    links: [dscr]\n")
		_, err := Load(dir)
		assert.ErrorContains(t, err, `unknown link "dscr"`)
	})
}

func TestMatchIntent(t *testing.T) {
	cfg := Config{
		Intents: []Intent{
			{Name: "REFI", Keywords: []string{"refi"}},
			{Name: "PURCHASE", Keywords: []string{"buy", "purchase"}},
		},
	}

	tests := []struct {
		text string
		want string
	}{
		{"I want to REFINANCE my house", "REFI"},
		{"looking to buy a home", "PURCHASE"},
		{"refi or buy?", "REFI"},
		{"what are your hours", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := cfg.MatchIntent(tt.text)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	b := &Brain{Prompt: "You are Liv.", Config: Config{VoiceStyle: "Speak briefly.", SMSStyle: "Text briefly."}}
	assert.Equal(t, "You are Liv.\n\nSpeak briefly.", b.SystemPrompt(session.ChannelVoice))
	assert.Equal(t, "You are Liv.\n\nText briefly.", b.SystemPrompt(session.ChannelSMS))

	b.Config.SMSStyle = ""
	assert.Equal(t, "You are Liv.", b.SystemPrompt(session.ChannelSMS))
}
