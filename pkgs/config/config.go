package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath is the env var that points to the config file used when
	// emx-config is not available. Files ending in .yaml or .yml are read as
	// YAML, anything else as JSON.
	EnvConfigPath = "EMX_COMPOSE_CONFIG"
)

// ProtocolSettings holds connection settings common to IMAP, POP3 and SMTP.
type ProtocolSettings struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// SSL enables implicit TLS (connect directly over TLS).
	SSL bool `json:"ssl" yaml:"ssl"`
	// StartTLS enables opportunistic TLS upgrade after connecting in plaintext.
	StartTLS bool `json:"starttls" yaml:"starttls"`
}

// Addr returns host:port, or just the host when no port is set.
func (p ProtocolSettings) Addr() string {
	if p.Port == 0 {
		return p.Host
	}
	return p.Host + ":" + strconv.Itoa(p.Port)
}

// SMTPSettings extends ProtocolSettings with submission options.
type SMTPSettings struct {
	ProtocolSettings `yaml:",inline"`

	StartTLSRequired bool `json:"starttls_required,omitempty" yaml:"starttls_required,omitempty"`
	// CheckServerIdentity defaults to true when unset.
	CheckServerIdentity *bool `json:"check_server_identity,omitempty" yaml:"check_server_identity,omitempty"`

	ConnectionTimeoutMS int `json:"connection_timeout_ms,omitempty" yaml:"connection_timeout_ms,omitempty"`
	TimeoutMS           int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// VerifyServerIdentity reports whether the server certificate's host name
// must match.
func (s SMTPSettings) VerifyServerIdentity() bool {
	return s.CheckServerIdentity == nil || *s.CheckServerIdentity
}

// ConnectionTimeout returns the dial timeout, or zero when unset.
func (s SMTPSettings) ConnectionTimeout() time.Duration {
	return time.Duration(s.ConnectionTimeoutMS) * time.Millisecond
}

// Timeout returns the socket read/write timeout, or zero when unset.
func (s SMTPSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// AccountConfig holds one sending identity.
//
// NOTE: This structure mirrors the emx-config nested config schema.
// See ExampleRootConfig for the expected shape.
type AccountConfig struct {
	Name          string `json:"name" yaml:"name"`
	Email         string `json:"email" yaml:"email"`
	FromName      string `json:"from_name,omitempty" yaml:"from_name,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty" yaml:"reply_to,omitempty"`
	BounceAddress string `json:"bounce_address,omitempty" yaml:"bounce_address,omitempty"`
	Charset       string `json:"charset,omitempty" yaml:"charset,omitempty"`

	// Transport is "smtp" (default) or "log".
	Transport  string `json:"transport,omitempty" yaml:"transport,omitempty"`
	SentFolder string `json:"sent_folder,omitempty" yaml:"sent_folder,omitempty"`

	SMTP          SMTPSettings     `json:"smtp" yaml:"smtp"`
	POP3          ProtocolSettings `json:"pop3" yaml:"pop3"`
	PopBeforeSMTP bool             `json:"pop_before_smtp,omitempty" yaml:"pop_before_smtp,omitempty"`
	IMAP          ProtocolSettings `json:"imap" yaml:"imap"`
}

// Domain returns the domain part of the account email address.
// Returns "localhost" if no domain can be extracted.
func (a *AccountConfig) Domain() string {
	if idx := strings.LastIndex(a.Email, "@"); idx >= 0 && idx < len(a.Email)-1 {
		return a.Email[idx+1:]
	}
	return "localhost"
}

// Config holds the application configuration
//
// accounts is a map keyed by account name.
// default_account selects the account when none is specified.
type Config struct {
	Accounts       map[string]AccountConfig `json:"accounts" yaml:"accounts"`
	DefaultAccount string                   `json:"default_account,omitempty" yaml:"default_account,omitempty"`
}

// RootConfig wraps the app config to align with emx-config list --json output.
type RootConfig struct {
	Mail Config `json:"mail" yaml:"mail"`
}

// HasEmxConfig returns true when the emx-config CLI is available in PATH.
func HasEmxConfig() bool {
	_, err := exec.LookPath("emx-config")
	return err == nil
}

// LoadConfig loads configuration.
//
// 1) If emx-config exists: read config from `emx-config list --json`.
// 2) Otherwise: read config from the file named by EnvConfigPath.
func LoadConfig() (*Config, error) {
	if HasEmxConfig() {
		return loadFromEmxConfig()
	}
	path, err := GetEnvConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFile(path)
}

// LoadConfigFile loads configuration from a JSON or YAML file path.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if isYAML(path) {
		return parseRootYAML(data)
	}
	return parseRootConfig(data)
}

// SaveConfig saves configuration to path, as YAML when the extension says
// so and as indented JSON otherwise.
func SaveConfig(path string, root *RootConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := Marshal(root, isYAML(path))
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal renders root as YAML or indented JSON.
func Marshal(root *RootConfig, asYAML bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(root)
	} else {
		data, err = json.MarshalIndent(root, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// GetEnvConfigPath returns the config file path from EnvConfigPath.
func GetEnvConfigPath() (string, error) {
	path := strings.TrimSpace(os.Getenv(EnvConfigPath))
	if path == "" {
		return "", fmt.Errorf("%s is not set", EnvConfigPath)
	}
	return path, nil
}

// GetAccount returns an account by name or email.
func (c *Config) GetAccount(identifier string) (*AccountConfig, error) {
	if len(c.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}

	if identifier == "" {
		if c.DefaultAccount != "" {
			identifier = c.DefaultAccount
		} else {
			// Deterministic fallback to the first key
			keys := make([]string, 0, len(c.Accounts))
			for k := range c.Accounts {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			identifier = keys[0]
		}
	}

	if acc, ok := c.Accounts[identifier]; ok {
		if acc.Name == "" {
			acc.Name = identifier
		}
		return &acc, nil
	}

	for name, acc := range c.Accounts {
		if acc.Name == identifier || strings.EqualFold(acc.Email, identifier) {
			if acc.Name == "" {
				acc.Name = name
			}
			return &acc, nil
		}
	}

	return nil, fmt.Errorf("account not found: %s", identifier)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}

	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		acc := c.Accounts[name]
		if acc.Name == "" {
			acc.Name = name
		}
		if acc.Email == "" {
			return fmt.Errorf("account %s: email is required", acc.Name)
		}
		switch acc.Transport {
		case "", "smtp":
			if acc.SMTP.Host == "" {
				return fmt.Errorf("account %s: smtp.host is required", acc.Name)
			}
		case "log":
		default:
			return fmt.Errorf("account %s: unknown transport %q", acc.Name, acc.Transport)
		}
		if acc.PopBeforeSMTP && acc.POP3.Host == "" {
			return fmt.Errorf("account %s: pop_before_smtp requires pop3.host", acc.Name)
		}
	}

	if c.DefaultAccount != "" {
		if _, ok := c.Accounts[c.DefaultAccount]; !ok {
			return fmt.Errorf("default_account not found: %s", c.DefaultAccount)
		}
	}

	return nil
}

// ExampleRootConfig returns an example configuration for "init".
func ExampleRootConfig() *RootConfig {
	return &RootConfig{
		Mail: Config{
			DefaultAccount: "work",
			Accounts: map[string]AccountConfig{
				"work": {
					Name:       "Work Account",
					Email:      "user@example.com",
					FromName:   "Your Name",
					Charset:    "utf-8",
					SentFolder: "Sent",
					SMTP: SMTPSettings{
						ProtocolSettings: ProtocolSettings{
							Host:     "smtp.example.com",
							Port:     587,
							Username: "user@example.com",
							StartTLS: true,
						},
						StartTLSRequired:    true,
						ConnectionTimeoutMS: 60000,
						TimeoutMS:           60000,
					},
					IMAP: ProtocolSettings{
						Host:     "imap.example.com",
						Port:     993,
						Username: "user@example.com",
						SSL:      true,
					},
				},
			},
		},
	}
}

// --- internal helpers ---

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func loadFromEmxConfig() (*Config, error) {
	cmd := exec.Command("emx-config", "list", "--json")
	var out bytes.Buffer
	var errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		stderr := strings.TrimSpace(errOut.String())
		if stderr != "" {
			return nil, fmt.Errorf("emx-config list --json failed: %w: %s", err, stderr)
		}
		return nil, fmt.Errorf("emx-config list --json failed: %w", err)
	}

	return parseRootConfig(out.Bytes())
}

func parseRootConfig(data []byte) (*Config, error) {
	var root RootConfig
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return checkRoot(&root)
}

func parseRootYAML(data []byte) (*Config, error) {
	var root RootConfig
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return checkRoot(&root)
}

func checkRoot(root *RootConfig) (*Config, error) {
	cfg := &root.Mail
	if cfg.Accounts == nil {
		return nil, fmt.Errorf("missing required key: mail.accounts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
