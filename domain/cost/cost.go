package cost

import (
	"encoding/json"
	"time"
)

const Provider = "google_cloud"

// Record is one normalized cost line handed to the host platform.
// Cost and UsageQuantity are always set; a row that cannot produce them is rejected upstream.
type Record struct {
	Cost           float64           `json:"cost"`
	Currency       string            `json:"currency,omitempty"`
	Provider       string            `json:"provider"`
	RegionCode     string            `json:"region_code,omitempty"`
	Product        string            `json:"product,omitempty"`
	UsageType      string            `json:"usage_type,omitempty"`
	UsageUnit      string            `json:"usage_unit,omitempty"`
	UsageQuantity  float64           `json:"usage_quantity"`
	BilledDate     Date              `json:"billed_date"`
	Account        string            `json:"account,omitempty"`
	AdditionalInfo map[string]string `json:"additional_info"`
	Tags           map[string]string `json:"tags"`
}

// Batch is one page of records. Every stream ends with an empty batch; the storage stream also
// emits one after each month as a flush marker.
type Batch struct {
	Results []Record `json:"results"`
}

// Terminal reports whether b carries no records.
func (b Batch) Terminal() bool { return len(b.Results) == 0 }

// EndOfStream returns the explicit empty batch that closes every get_data stream.
func EndOfStream() Batch { return Batch{Results: []Record{}} }

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

const DateLayout = "2006-01-02"

func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return d.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// LinkedAccount is a project found in the billing export.
type LinkedAccount struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
}
