package plugin

// Metadata is returned by init and tells the host how to route collected cost records.
type Metadata struct {
	Currency             string           `json:"currency"`
	SupportedSecretTypes []string         `json:"supported_secret_types"`
	UseAccountRouting    bool             `json:"use_account_routing"`
	AccountMatchKey      string           `json:"account_match_key,omitempty"`
	DataSourceRules      []DataSourceRule `json:"data_source_rules"`
}

type DataSourceRule struct {
	Name             string            `json:"name"`
	ConditionsPolicy string            `json:"conditions_policy"`
	Conditions       []Condition       `json:"conditions"`
	Actions          RuleActions       `json:"actions"`
	Options          RuleOptions       `json:"options"`
	Tags             map[string]string `json:"tags"`
}

type Condition struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Operator string `json:"operator"`
}

type RuleActions struct {
	MatchServiceAccount *MatchServiceAccount `json:"match_service_account,omitempty"`
}

type MatchServiceAccount struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type RuleOptions struct {
	StopProcessing bool `json:"stop_processing"`
}

// DefaultAccountMatchKey is the cost record field compared against the service account's project id.
const DefaultAccountMatchKey = "additional_info.Project ID"

// DefaultRules matches every record to the service account owning the same project.
func DefaultRules(source string) []DataSourceRule {
	return []DataSourceRule{
		{
			Name:             "match_service_account",
			ConditionsPolicy: "ALWAYS",
			Conditions:       []Condition{},
			Actions: RuleActions{
				MatchServiceAccount: &MatchServiceAccount{Source: source, Target: "data.project_id"},
			},
			Options: RuleOptions{StopProcessing: true},
			Tags:    map[string]string{},
		},
	}
}
