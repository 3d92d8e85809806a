package models

// ConfigObject is the organizational configuration checked by the config rule engine.
// Field names follow the terraform variables it is usually decoded from.
type ConfigObject struct {
	AWSRegion         string             `json:"aws_region" yaml:"aws_region"`
	AccountIDs        map[string]string  `json:"account_ids" yaml:"account_ids"`
	NotificationEmail string             `json:"notification_email" yaml:"notification_email"`
	BudgetAmounts     map[string]float64 `json:"budget_amounts" yaml:"budget_amounts"`
	BudgetThresholds  []int              `json:"budget_thresholds" yaml:"budget_thresholds"`
	GithubRepository  string             `json:"github_repository" yaml:"github_repository"`
}

// Violation is a single business rule failure. Violations are data, never errors.
type Violation struct {
	RuleID  string `json:"ruleId"`
	Field   string `json:"field"`
	Message string `json:"message"`
}
