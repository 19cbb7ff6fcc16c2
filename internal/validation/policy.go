package validation

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gfgkiit/trapped/internal/catalog"
)

// TeamMode selects how strictly team member fields are checked.
type TeamMode string

const (
	// TeamModeLenient checks presence and duplicate emails only.
	TeamModeLenient TeamMode = "lenient"
	// TeamModeStrict adds roll-number prefix and email domain allow-list checks.
	TeamModeStrict TeamMode = "strict"
)

// Reporting selects how many field failures are returned to clients.
type Reporting string

const (
	// ReportFirst surfaces only the first failing rule.
	ReportFirst Reporting = "first"
	// ReportAll surfaces the first message plus every failure found.
	ReportAll Reporting = "all"
)

// Policy is the deployment-wide validation configuration. It is chosen at
// startup and never changes while the server runs.
type Policy struct {
	TeamMode             TeamMode          `yaml:"team_mode"`
	ErrorReporting       Reporting         `yaml:"error_reporting"`
	ApplicantEmailSuffix string            `yaml:"applicant_email_suffix"`
	TeamEmailSuffixes    []string          `yaml:"team_email_suffixes"`
	RollPrefixes         []string          `yaml:"roll_prefixes"`
	MinMotivationLength  int               `yaml:"min_motivation_length"`
	Domains              []string          `yaml:"domains"`
	DomainAliases        map[string]string `yaml:"domain_aliases"`
}

// DefaultMinMotivationLength is the minimum number of characters in the
// "why do you want to join" statement.
const DefaultMinMotivationLength = 5

// DefaultPolicy returns the policy used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		TeamMode:             TeamModeStrict,
		ErrorReporting:       ReportFirst,
		ApplicantEmailSuffix: "@kiit.ac.in",
		TeamEmailSuffixes:    []string{"@kiit.ac.in", "@gmail.com"},
		RollPrefixes:         []string{"21", "22", "23", "24", "25"},
		MinMotivationLength:  DefaultMinMotivationLength,
		Domains:              append([]string(nil), catalog.DefaultDomains...),
	}
}

// LoadPolicy reads a YAML policy file over the defaults. An empty path yields
// DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if strings.TrimSpace(path) == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return policy, nil
}

// Validate rejects policies that would make every submission fail or pass
// unchecked.
func (p Policy) Validate() error {
	switch p.TeamMode {
	case TeamModeLenient, TeamModeStrict:
	default:
		return fmt.Errorf("team_mode must be %q or %q, got %q", TeamModeLenient, TeamModeStrict, p.TeamMode)
	}
	switch p.ErrorReporting {
	case ReportFirst, ReportAll:
	default:
		return fmt.Errorf("error_reporting must be %q or %q, got %q", ReportFirst, ReportAll, p.ErrorReporting)
	}
	if p.MinMotivationLength < 1 {
		return errors.New("min_motivation_length must be positive")
	}
	if len(p.Domains) == 0 {
		return errors.New("domains must not be empty")
	}
	if p.TeamMode == TeamModeStrict {
		if len(p.RollPrefixes) == 0 {
			return errors.New("strict team mode requires roll_prefixes")
		}
		if len(p.TeamEmailSuffixes) == 0 {
			return errors.New("strict team mode requires team_email_suffixes")
		}
	}
	return nil
}
