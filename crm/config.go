// ABOUTME: CRM integration configuration and credential management
// ABOUTME: Handles config storage at XDG paths with environment variable overrides
package crm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

// Resolution modes for linking deals to local user accounts.
const (
	ResolutionModeOwner  = "owner"
	ResolutionModeSeller = "seller"
)

// Config stores CRM API credentials, property names on the remote deal
// object, and sync behavior settings.
type Config struct {
	Enabled     bool   `json:"enabled"`
	BaseURL     string `json:"base_url"`
	AccessToken string `json:"access_token"`

	// Deal property names.
	DealNameProperty         string `json:"deal_name_property"`
	OwnerIDProperty          string `json:"owner_id_property"`
	OwnerEmailProperty       string `json:"owner_email_property"`
	SellerIDProperty         string `json:"seller_id_property"`
	FulfilledProperty        string `json:"fulfilled_property"`
	FulfilledDateProperty    string `json:"fulfilled_date_property"`
	DealFallbackDateProperty string `json:"deal_fallback_date_property,omitempty"`
	LastModifiedProperty     string `json:"last_modified_property"`
	AmountProperty           string `json:"amount_property"`
	CurrencyCodeProperty     string `json:"currency_code_property,omitempty"`
	ProvisionProperty        string `json:"provision_property,omitempty"`

	// Contact property carrying the seller number, used for enrichment and
	// window search.
	ContactSellerProperty string `json:"contact_seller_property"`
	ContactDateProperty   string `json:"contact_date_property"`

	// Status labels counted as fulfilled. FulfilledValue is the legacy
	// single-value form; it is folded into FulfilledValues on load.
	FulfilledValues []string `json:"fulfilled_values"`
	FulfilledValue  string   `json:"fulfilled_value,omitempty"`

	// ResolutionMode selects how deals link to local accounts: "owner"
	// follows the owner-mapping chain, "seller" resolves the seller id
	// property directly against usernames.
	ResolutionMode string `json:"resolution_mode"`

	// UsernameEmailDomain restricts derived-username email resolution.
	UsernameEmailDomain string `json:"username_email_domain"`

	PageSize       int           `json:"page_size"`
	MaxPagesPerRun int           `json:"max_pages_per_run"`
	HTTPTimeout    time.Duration `json:"http_timeout"`
}

// DefaultConfig returns the config used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:               "https://api.hubapi.com",
		DealNameProperty:      "dealname",
		OwnerIDProperty:       "hubspot_owner_id",
		OwnerEmailProperty:    "hs_all_owner_emails",
		SellerIDProperty:      "saljid",
		FulfilledProperty:     "dealstage",
		FulfilledDateProperty: "saledate",
		LastModifiedProperty:  "hs_lastmodifieddate",
		AmountProperty:        "amount",
		CurrencyCodeProperty:  "deal_currency_code",
		ProvisionProperty:     "provision",
		ContactSellerProperty: "saljid",
		ContactDateProperty:   "saledate",
		FulfilledValues:       []string{"Fullföljd"},
		ResolutionMode:        ResolutionModeOwner,
		UsernameEmailDomain:   "stl.nu",
		PageSize:              100,
		MaxPagesPerRun:        10,
		HTTPTimeout:           30 * time.Second,
	}
}

// ConfigDir returns the XDG-compliant directory for configuration.
func ConfigDir() string {
	return filepath.Join(xdg.DataHome, "dealsync")
}

// ConfigPath returns the XDG-compliant path for the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig loads configuration from the XDG data directory.
// Returns defaults if the file does not exist. Environment variables
// override file values:
// - DEALSYNC_ENABLED
// - DEALSYNC_BASE_URL
// - DEALSYNC_TOKEN
// - DEALSYNC_RESOLUTION_MODE
// - DEALSYNC_EMAIL_DOMAIN
// - DEALSYNC_MAX_PAGES.
func LoadConfig() (*Config, error) {
	path := ConfigPath()

	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.normalize()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.normalize()
	applyEnvOverrides(cfg)

	return cfg, nil
}

// normalize folds the legacy single fulfilled value into the list and clamps
// paging settings into range.
func (c *Config) normalize() {
	if c.FulfilledValue != "" {
		found := false
		for _, v := range c.FulfilledValues {
			if v == c.FulfilledValue {
				found = true
				break
			}
		}
		if !found {
			c.FulfilledValues = append(c.FulfilledValues, c.FulfilledValue)
		}
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.MaxPagesPerRun < 1 {
		c.MaxPagesPerRun = 10
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	if enabled := os.Getenv("DEALSYNC_ENABLED"); enabled != "" {
		cfg.Enabled = enabled == "true" || enabled == "1"
	}
	if baseURL := os.Getenv("DEALSYNC_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if token := os.Getenv("DEALSYNC_TOKEN"); token != "" {
		cfg.AccessToken = token
	}
	if mode := os.Getenv("DEALSYNC_RESOLUTION_MODE"); mode != "" {
		cfg.ResolutionMode = mode
	}
	if domain := os.Getenv("DEALSYNC_EMAIL_DOMAIN"); domain != "" {
		cfg.UsernameEmailDomain = domain
	}
	if pages := os.Getenv("DEALSYNC_MAX_PAGES"); pages != "" {
		if n, err := strconv.Atoi(pages); err == nil && n > 0 {
			cfg.MaxPagesPerRun = n
		}
	}
}

// SaveConfig saves configuration to the XDG data directory.
func SaveConfig(cfg *Config) error {
	path := ConfigPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Token lives in here, keep permissions tight
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate fails fast on configurations that can never sync.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.AccessToken == "" {
		return fmt.Errorf("integration enabled but no API token configured")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("integration enabled but no base URL configured")
	}
	if c.ResolutionMode != ResolutionModeOwner && c.ResolutionMode != ResolutionModeSeller {
		return fmt.Errorf("unknown resolution mode %q", c.ResolutionMode)
	}
	if len(c.FulfilledValues) == 0 {
		return fmt.Errorf("no fulfilled status values configured")
	}
	return nil
}
