package config

// Config represents the structure of config.yml used by the plugin.
// It is read once at startup and handed to components by value; nothing mutates it afterwards.
type Config struct {
	Defaults Defaults `yaml:"defaults"`
	BigQuery BigQuery `yaml:"bigquery"`
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// Defaults holds the process-wide fallbacks used when secret data or options leave a value out.
type Defaults struct {
	BillingDataset string `yaml:"billing_dataset"`
	TablePrefix    string `yaml:"table_prefix"`
	SecretType     string `yaml:"secret_type"`
	Source         string `yaml:"source"`
	HistoryDays    int    `yaml:"history_days"`
	LookbackDays   int    `yaml:"lookback_days"`
}

type BigQuery struct {
	PageSize        int      `yaml:"page_size"`
	CostMode        string   `yaml:"cost_mode"`
	ExcludeProducts []string `yaml:"exclude_products"`
}

type Storage struct {
	PageSize         int     `yaml:"page_size"`
	ExchangeRatePath string  `yaml:"exchange_rate_path"`
	Currency         string  `yaml:"currency"`
	Columns          Columns `yaml:"columns"`
}

// Columns names the billing export CSV headers, compared after trimming whitespace.
type Columns struct {
	ProjectID        string `yaml:"project_id"`
	ProjectName      string `yaml:"project_name"`
	Product          string `yaml:"product"`
	UsageType        string `yaml:"usage_type"`
	UsageQuantity    string `yaml:"usage_quantity"`
	UsageUnit        string `yaml:"usage_unit"`
	Subtotal         string `yaml:"subtotal"`
	Region           string `yaml:"region"`
	BillingAccountID string `yaml:"billing_account_id"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	SecretTypeServiceAccount = "USE_SERVICE_ACCOUNT_SECRET"
	SecretTypeManual         = "MANUAL"

	SourceBigQuery = "bigquery"
	SourceStorage  = "storage"

	CostModeRaw       = "raw"
	CostModeConverted = "converted"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Defaults: Defaults{
			BillingDataset: "billing_export",
			TablePrefix:    "gcp_billing_export_v1",
			SecretType:     SecretTypeServiceAccount,
			Source:         SourceBigQuery,
			HistoryDays:    365,
			LookbackDays:   7,
		},
		BigQuery: BigQuery{
			PageSize:        1,
			CostMode:        CostModeRaw,
			ExcludeProducts: []string{"Invoice"},
		},
		Storage: Storage{
			PageSize:         2000,
			ExchangeRatePath: "exchange_rate/exchange_rate.csv",
			Currency:         "KRW",
			Columns: Columns{
				ProjectID:        "Project ID",
				ProjectName:      "Project name",
				Product:          "Service description",
				UsageType:        "SKU description",
				UsageQuantity:    "Usage amount",
				UsageUnit:        "Usage unit",
				Subtotal:         "Subtotal",
				Region:           "Region",
				BillingAccountID: "Billing account ID",
			},
		},
		Server: Server{Addr: ":8080"},
		Log:    Log{Level: "info", Format: "text"},
	}
}
