// Package persona loads the assistant's brain: the persona prompt modules and the
// liv-config.yaml file that drives links, intents, tools and lead flags.
package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/officialmortgage/livbridge/plugin/ai/session"
)

const (
	// ConfigFile is the brain configuration file name inside the brain directory.
	ConfigFile = "liv-config.yaml"

	fallbackPrompt = "You are Liv, the Official Mortgage AI assistant."
)

// Intent maps caller keywords to the links to send.
type Intent struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Links    []string `yaml:"links"`
	Reply    string   `yaml:"reply"`
}

// Config is the content of liv-config.yaml.
type Config struct {
	Greeting     string `yaml:"greeting"`
	DefaultReply string `yaml:"default_reply"`
	// VoiceStyle and SMSStyle are appended to the system prompt per channel.
	VoiceStyle string `yaml:"voice_style"`
	SMSStyle   string `yaml:"sms_style"`

	Links   map[string]string `yaml:"links"`
	Intents []Intent          `yaml:"intents"`
	// Tools lists the enabled tools in offering order. Empty enables all.
	Tools []string `yaml:"tools"`
	// Flags are the lead flags a marketplace event may set.
	Flags       []string `yaml:"flags"`
	HotLeadRule string   `yaml:"hot_lead_rule"`
}

// Brain is the loaded persona.
type Brain struct {
	Prompt  string
	Modules []string
	Config  Config
}

// DefaultConfig returns the configuration used when liv-config.yaml is absent.
func DefaultConfig() Config {
	return Config{
		Greeting:     "Hi, this is Liv with Official Mortgage. How can I help you today?",
		DefaultReply: "This is Liv with Official Mortgage. I can help with purchase, refinance, cash-out, equity or investor loans. Tell me your goal and I'll send the next step.",
		VoiceStyle:   "You are speaking on a phone call. Keep replies to one or two short sentences and never read out urls.",
		SMSStyle:     "You are replying by text message. Keep replies brief.",
		Links:        map[string]string{},
		Flags: []string{
			"ACCOUNT_CREATED",
			"APP_COMPLETED",
			"CREDIT_AUTHORIZED",
			"DOC_UPLOAD_STARTED",
			"DOC_UPLOAD_COMPLETE",
		},
		HotLeadRule: "ACCOUNT_CREATED && APP_COMPLETED && CREDIT_AUTHORIZED",
	}
}

// Load reads the brain directory. A missing directory or one without prompt modules
// yields the fallback persona; a malformed config file is an error.
func Load(dir string) (*Brain, error) {
	b := &Brain{}
	b.Prompt, b.Modules = loadPrompt(dir)

	cfg, err := LoadConfig(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	b.Config = cfg
	return b, nil
}

func loadPrompt(dir string) (string, []string) {
	if dir == "" {
		slog.Error("brain directory is not configured, using fallback persona")
		return fallbackPrompt, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Error("brain directory not found, using fallback persona", "dir", dir, "error", err)
		return fallbackPrompt, nil
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".txt") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	if len(files) == 0 {
		slog.Error("no brain modules found, using fallback persona", "dir", dir)
		return fallbackPrompt, nil
	}

	parts := make([]string, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("skipping unreadable brain module", "file", name, "error", err)
			continue
		}
		parts = append(parts, string(data))
	}
	if len(parts) == 0 {
		return fallbackPrompt, nil
	}

	slog.Info("loaded brain modules", "dir", dir, "modules", files)
	return strings.Join(parts, "\n\n"), files
}

// LoadConfig reads a brain config file over the defaults. A missing file yields
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every intent is usable and references configured links.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Intents))
	for i, in := range c.Intents {
		if in.Name == "" {
			return fmt.Errorf("intent %d: name is required", i)
		}
		if seen[in.Name] {
			return fmt.Errorf("intent %s: duplicate name", in.Name)
		}
		seen[in.Name] = true
		if len(in.Keywords) == 0 {
			return fmt.Errorf("intent %s: at least one keyword is required", in.Name)
		}
		for _, key := range in.Links {
			if _, ok := c.Links[key]; !ok {
				return fmt.Errorf("intent %s: unknown link %q", in.Name, key)
			}
		}
	}
	return nil
}

// MatchIntent returns the first intent with a keyword contained in text, or nil.
func (c Config) MatchIntent(text string) *Intent {
	lower := strings.ToLower(text)
	for i := range c.Intents {
		for _, k := range c.Intents[i].Keywords {
			if k != "" && strings.Contains(lower, strings.ToLower(k)) {
				return &c.Intents[i]
			}
		}
	}
	return nil
}

// SystemPrompt returns the persona prompt with the channel's style appended.
func (b *Brain) SystemPrompt(ch session.Channel) string {
	style := b.Config.VoiceStyle
	if ch == session.ChannelSMS {
		style = b.Config.SMSStyle
	}
	if style == "" {
		return b.Prompt
	}
	return b.Prompt + "\n\n" + style
}
