// Package configcheck validates an organizational ConfigObject against the business rules
// of the landing zone: required accounts, account id shape, region restriction, budgets,
// alert thresholds and the repository identifier.
//
// Every rule runs on every call and reports zero or more Violations; nothing short-circuits.
// Rules are pure functions of the config and the rule parameters.
package configcheck

import (
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/gh-nvat/iacguard/src/pkg/models"
)

var logger = log.WithField("package", "configcheck")

// Stable rule identifiers, in declaration order
const (
	RuleRequiredAccounts           = "required_accounts"
	RuleAccountIDFormat            = "account_id_format"
	RuleAccountIDUnique            = "account_id_unique"
	RuleAWSRegionAllowed           = "aws_region_allowed"
	RuleAWSRegionFormat            = "aws_region_format"
	RuleNotificationEmailFormat    = "notification_email_format"
	RuleBudgetOrdering             = "budget_ordering"
	RuleBudgetPositive             = "budget_positive"
	RuleBudgetManagementMinimum    = "budget_management_minimum"
	RuleBudgetThresholdCount       = "budget_threshold_count"
	RuleBudgetThresholdOrder       = "budget_threshold_order"
	RuleBudgetThresholdRange       = "budget_threshold_range"
	RuleBudgetThresholdRequired    = "budget_threshold_required"
	RuleGithubRepositoryFormat     = "github_repository_format"
	RuleGithubRepositorySegments   = "github_repository_segments"
	RuleGithubRepositoryCharacters = "github_repository_characters"
)

const (
	accountManagement = "management"
	accountDev        = "dev"
	accountStaging    = "staging"
	accountProd       = "prod"

	accountIDLength = 12
)

// Rules holds the organizational parameters of the rule set
type Rules struct {
	// AllowedRegion is the only region permitted by the organization's SCPs
	AllowedRegion string

	// RequiredAccounts must appear in both account_ids and budget_amounts
	RequiredAccounts []string

	ManagementBudgetMinimum float64

	ThresholdCount     int
	RequiredThresholds []int
}

// DefaultRules returns the built-in organizational parameters
func DefaultRules() Rules {
	return Rules{
		AllowedRegion:           "us-east-1",
		RequiredAccounts:        []string{accountManagement, accountDev, accountStaging, accountProd},
		ManagementBudgetMinimum: 25,
		ThresholdCount:          3,
		RequiredThresholds:      []int{50, 100},
	}
}

type rule struct {
	id    string
	check func(r Rules, cfg *models.ConfigObject) []models.Violation
}

var ruleTable = []rule{
	{RuleRequiredAccounts, checkRequiredAccounts},
	{RuleAccountIDFormat, checkAccountIDFormat},
	{RuleAccountIDUnique, checkAccountIDUnique},
	{RuleAWSRegionAllowed, checkRegionAllowed},
	{RuleAWSRegionFormat, checkRegionFormat},
	{RuleNotificationEmailFormat, checkEmailFormat},
	{RuleBudgetOrdering, checkBudgetOrdering},
	{RuleBudgetPositive, checkBudgetPositive},
	{RuleBudgetManagementMinimum, checkManagementMinimum},
	{RuleBudgetThresholdCount, checkThresholdCount},
	{RuleBudgetThresholdOrder, checkThresholdOrder},
	{RuleBudgetThresholdRange, checkThresholdRange},
	{RuleBudgetThresholdRequired, checkThresholdRequired},
	{RuleGithubRepositoryFormat, checkRepositoryFormat},
	{RuleGithubRepositorySegments, checkRepositorySegments},
	{RuleGithubRepositoryCharacters, checkRepositoryCharacters},
}

var ruleIndex = func() map[string]int {
	m := make(map[string]int, len(ruleTable))
	for i, r := range ruleTable {
		m[r.id] = i
	}
	return m
}()

// RuleIDs returns the built-in rule ids in declaration order
func RuleIDs() []string {
	ids := make([]string, len(ruleTable))
	for i, r := range ruleTable {
		ids[i] = r.id
	}
	return ids
}

// RuleIndex returns the declaration position of a rule id.
// Unknown ids (custom rego rules) sort after every built-in rule.
func RuleIndex(id string) int {
	if i, ok := ruleIndex[id]; ok {
		return i
	}
	return len(ruleTable)
}

// Validate checks cfg against the default rules
func Validate(cfg *models.ConfigObject) []models.Violation {
	return DefaultRules().Validate(cfg)
}

// Validate runs every rule and returns the violations in rule declaration order.
// A nil config is treated as empty.
func (r Rules) Validate(cfg *models.ConfigObject) []models.Violation {
	if cfg == nil {
		cfg = &models.ConfigObject{}
	}
	violations := []models.Violation{}
	for _, rl := range ruleTable {
		found := rl.check(r, cfg)
		if len(found) > 0 {
			logger.WithField("rule", rl.id).WithField("count", len(found)).Debug("Rule violated")
		}
		violations = append(violations, found...)
	}
	return violations
}

func violation(ruleID, field, format string, args ...any) models.Violation {
	return models.Violation{RuleID: ruleID, Field: field, Message: fmt.Sprintf(format, args...)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---- accounts ----

func checkRequiredAccounts(r Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	for _, name := range r.RequiredAccounts {
		if _, ok := cfg.AccountIDs[name]; !ok {
			out = append(out, violation(RuleRequiredAccounts, "account_ids", "Missing account ID for %s", name))
		}
	}
	for _, name := range r.RequiredAccounts {
		if _, ok := cfg.BudgetAmounts[name]; !ok {
			out = append(out, violation(RuleRequiredAccounts, "budget_amounts", "Missing budget for %s", name))
		}
	}
	return out
}

func checkAccountIDFormat(_ Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	for _, name := range sortedKeys(cfg.AccountIDs) {
		id := cfg.AccountIDs[name]
		field := "account_ids." + name
		switch {
		case len(id) != accountIDLength:
			out = append(out, violation(RuleAccountIDFormat, field, "%s account ID must be %d digits, got %d characters", name, accountIDLength, len(id)))
		case !isDigits(id):
			out = append(out, violation(RuleAccountIDFormat, field, "%s account ID must be numeric", name))
		case id[0] == '0':
			out = append(out, violation(RuleAccountIDFormat, field, "%s account ID cannot start with 0", name))
		}
	}
	return out
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func checkAccountIDUnique(_ Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	owner := make(map[string]string, len(cfg.AccountIDs))
	for _, name := range sortedKeys(cfg.AccountIDs) {
		id := cfg.AccountIDs[name]
		if first, ok := owner[id]; ok {
			out = append(out, violation(RuleAccountIDUnique, "account_ids", "Account IDs must be unique: %s and %s share %s", first, name, id))
			continue
		}
		owner[id] = name
	}
	return out
}

// ---- region / email ----

func checkRegionAllowed(r Rules, cfg *models.ConfigObject) []models.Violation {
	if cfg.AWSRegion == r.AllowedRegion {
		return nil
	}
	return []models.Violation{violation(RuleAWSRegionAllowed, "aws_region", "Region must be %s per SCP policy, got %q", r.AllowedRegion, cfg.AWSRegion)}
}

// checkRegionFormat requires us-<area>-<n>
func checkRegionFormat(_ Rules, cfg *models.ConfigObject) []models.Violation {
	region := cfg.AWSRegion
	if !strings.HasPrefix(region, "us-") {
		return []models.Violation{violation(RuleAWSRegionFormat, "aws_region", "Region should be in US, got %q", region)}
	}
	parts := strings.Split(region, "-")
	if len(parts) < 3 {
		return []models.Violation{violation(RuleAWSRegionFormat, "aws_region", "Region should have proper format (us-east-1), got %q", region)}
	}
	for _, p := range parts {
		if p == "" {
			return []models.Violation{violation(RuleAWSRegionFormat, "aws_region", "Region should have proper format (us-east-1), got %q", region)}
		}
	}
	return nil
}

func checkEmailFormat(_ Rules, cfg *models.ConfigObject) []models.Violation {
	email := cfg.NotificationEmail
	if strings.Contains(email, "@") && strings.Contains(email, ".") {
		return nil
	}
	return []models.Violation{violation(RuleNotificationEmailFormat, "notification_email", "Notification email %q must contain '@' and '.'", email)}
}

// ---- budgets ----

func checkBudgetOrdering(_ Rules, cfg *models.ConfigObject) []models.Violation {
	pairs := []struct{ higher, lower string }{
		{accountProd, accountStaging},
		{accountStaging, accountDev},
	}
	var out []models.Violation
	for _, p := range pairs {
		hi, okHi := cfg.BudgetAmounts[p.higher]
		lo, okLo := cfg.BudgetAmounts[p.lower]
		if !okHi || !okLo {
			continue
		}
		if hi < lo {
			out = append(out, violation(RuleBudgetOrdering, "budget_amounts",
				"%s budget (%g) should be >= %s budget (%g)", p.higher, hi, p.lower, lo))
		}
	}
	return out
}

func checkBudgetPositive(_ Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	for _, name := range sortedKeys(cfg.BudgetAmounts) {
		if amount := cfg.BudgetAmounts[name]; !(amount > 0) {
			out = append(out, violation(RuleBudgetPositive, "budget_amounts."+name, "%s budget must be positive, got %g", name, amount))
		}
	}
	return out
}

func checkManagementMinimum(r Rules, cfg *models.ConfigObject) []models.Violation {
	amount, ok := cfg.BudgetAmounts[accountManagement]
	if !ok || amount >= r.ManagementBudgetMinimum {
		return nil
	}
	return []models.Violation{violation(RuleBudgetManagementMinimum, "budget_amounts."+accountManagement,
		"Management account needs minimum budget of %g, got %g", r.ManagementBudgetMinimum, amount)}
}

// ---- thresholds ----

func checkThresholdCount(r Rules, cfg *models.ConfigObject) []models.Violation {
	if len(cfg.BudgetThresholds) == r.ThresholdCount {
		return nil
	}
	return []models.Violation{violation(RuleBudgetThresholdCount, "budget_thresholds",
		"Should have exactly %d budget thresholds, got %d", r.ThresholdCount, len(cfg.BudgetThresholds))}
}

func checkThresholdOrder(_ Rules, cfg *models.ConfigObject) []models.Violation {
	if sort.IntsAreSorted(cfg.BudgetThresholds) {
		return nil
	}
	return []models.Violation{violation(RuleBudgetThresholdOrder, "budget_thresholds",
		"Thresholds should be in ascending order, got %v", cfg.BudgetThresholds)}
}

func checkThresholdRange(_ Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	for _, th := range cfg.BudgetThresholds {
		if th <= 0 || th > 100 {
			out = append(out, violation(RuleBudgetThresholdRange, "budget_thresholds", "Threshold %d should be between 1-100", th))
		}
	}
	return out
}

func checkThresholdRequired(r Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	for _, want := range r.RequiredThresholds {
		found := false
		for _, th := range cfg.BudgetThresholds {
			if th == want {
				found = true
				break
			}
		}
		if !found {
			out = append(out, violation(RuleBudgetThresholdRequired, "budget_thresholds", "Should include %d%% threshold", want))
		}
	}
	return out
}

// ---- repository ----

func checkRepositoryFormat(_ Rules, cfg *models.ConfigObject) []models.Violation {
	if strings.Count(cfg.GithubRepository, "/") == 1 {
		return nil
	}
	return []models.Violation{violation(RuleGithubRepositoryFormat, "github_repository",
		"Repository should be in 'owner/repo' format with exactly one slash, got %q", cfg.GithubRepository)}
}

func checkRepositorySegments(_ Rules, cfg *models.ConfigObject) []models.Violation {
	owner, name, ok := strings.Cut(cfg.GithubRepository, "/")
	if !ok || strings.Contains(name, "/") {
		return nil
	}
	var out []models.Violation
	if owner == "" {
		out = append(out, violation(RuleGithubRepositorySegments, "github_repository", "Repository owner cannot be empty"))
	}
	if name == "" {
		out = append(out, violation(RuleGithubRepositorySegments, "github_repository", "Repository name cannot be empty"))
	}
	return out
}

var invalidRepositoryChars = []string{" ", "@", "#", "$", "%"}

func checkRepositoryCharacters(_ Rules, cfg *models.ConfigObject) []models.Violation {
	var out []models.Violation
	for _, c := range invalidRepositoryChars {
		if strings.Contains(cfg.GithubRepository, c) {
			out = append(out, violation(RuleGithubRepositoryCharacters, "github_repository", "Repository should not contain %q", c))
		}
	}
	return out
}
