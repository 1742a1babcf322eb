package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"gcp-billing-cost/domain/config"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "./config.yml"

// Path returns the config file location from CONFIG_PATH.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load parses the YAML configuration file at path over the defaults.
// A missing file yields the defaults.
func Load(path string) (config.Config, error) {
	c := config.Default()
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("config.load.default", "path", path)
			return c, nil
		}
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := Validate(c); err != nil {
		return c, fmt.Errorf("invalid config %s: %w", path, err)
	}
	slog.Info(fmt.Sprintf("Loaded config: %s", path))
	return c, nil
}

// Validate rejects values the components cannot work with.
func Validate(c config.Config) error {
	switch c.BigQuery.CostMode {
	case config.CostModeRaw, config.CostModeConverted:
	default:
		return fmt.Errorf("bigquery.cost_mode must be %s or %s, got %q", config.CostModeRaw, config.CostModeConverted, c.BigQuery.CostMode)
	}
	switch c.Defaults.Source {
	case config.SourceBigQuery, config.SourceStorage:
	default:
		return fmt.Errorf("defaults.source must be %s or %s, got %q", config.SourceBigQuery, config.SourceStorage, c.Defaults.Source)
	}
	if c.Defaults.TablePrefix == "" || c.Defaults.BillingDataset == "" {
		return errors.New("defaults.table_prefix and defaults.billing_dataset are required")
	}
	if c.Storage.Currency == "" || c.Storage.ExchangeRatePath == "" {
		return errors.New("storage.currency and storage.exchange_rate_path are required")
	}
	return nil
}

// LoadDocument reads a JSON object such as secret data or plugin options.
// An empty path yields an empty document.
func LoadDocument(path string) (map[string]any, error) {
	doc := map[string]any{}
	if path == "" {
		return doc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}
