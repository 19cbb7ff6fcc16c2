// Package validation checks registration payloads and normalizes them into
// domain records. It performs no I/O.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/gfgkiit/trapped/internal/catalog"
	"github.com/gfgkiit/trapped/internal/domain"
)

// Policy-driven tags registered on every Validator.
const (
	tagApplicantEmail = "applicant_email"
	tagMotivation     = "motivation"
	tagDomain         = "domain"
	tagRollPrefix     = "roll_prefix"
	tagTeamEmail      = "team_email"
	tagUniqueEmails   = "unique_emails"
)

// Validator applies a Policy to incoming payloads.
type Validator struct {
	policy   Policy
	catalog  *catalog.Catalog
	validate *validator.Validate
}

// New builds a Validator for the policy.
func New(policy Policy) *Validator {
	v := &Validator{
		policy:   policy,
		catalog:  catalog.New(policy.Domains, policy.DomainAliases),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	v.validate.RegisterTagNameFunc(jsonName)
	// Registration only fails on an empty tag name, and every tag here is set.
	_ = v.validate.RegisterValidation(tagApplicantEmail, v.applicantEmail)
	_ = v.validate.RegisterValidation(tagMotivation, v.motivation)
	_ = v.validate.RegisterValidation(tagDomain, v.knownDomain)
	_ = v.validate.RegisterValidation(tagRollPrefix, v.rollPrefix)
	_ = v.validate.RegisterValidation(tagTeamEmail, v.teamEmail)
	v.validate.RegisterStructValidation(uniqueMemberEmails, TeamInput{})
	return v
}

// Policy returns the policy the validator enforces.
func (v *Validator) Policy() Policy { return v.policy }

// Catalog returns the domain catalog built from the policy.
func (v *Validator) Catalog() *catalog.Catalog { return v.catalog }

// Registration validates an applicant payload and returns the normalized
// record, or a validation error describing the first failure.
func (v *Validator) Registration(in RegistrationInput) (domain.Registration, error) {
	rec, errs := v.CheckRegistration(in)
	if err := errs.Err(v.policy.ErrorReporting); err != nil {
		return domain.Registration{}, err
	}
	return rec, nil
}

// CheckRegistration evaluates every applicant rule and returns all failures
// in field order.
func (v *Validator) CheckRegistration(in RegistrationInput) (domain.Registration, Errors) {
	in = in.normalized()
	rec := domain.Registration{
		Username:   in.Username,
		Contact:    string(in.Contact),
		Email:      in.Email,
		Year:       string(in.Year),
		WhyGfg:     in.WhyGfg,
		Github:     in.Github,
		LinkedIn:   in.LinkedIn,
		ResumeLink: in.ResumeLink,
		Avatar:     in.Avatar,
		DeviceID:   in.DeviceID,
	}
	if canonical, ok := v.catalog.Resolve(in.Domain1); ok {
		rec.Domain1 = canonical
	}
	if canonical, ok := v.catalog.Resolve(in.Domain2); ok {
		rec.Domain2 = canonical
	}

	var errs Errors
	for _, fe := range v.fieldErrors(in) {
		errs.add(fe.Field(), v.registrationMessage(fe))
	}
	return rec, errs
}

// Team validates a team payload and returns the normalized record, or a
// validation error describing the first failure.
func (v *Validator) Team(in TeamInput) (domain.Team, error) {
	team, errs := v.CheckTeam(in)
	if err := errs.Err(v.policy.ErrorReporting); err != nil {
		return domain.Team{}, err
	}
	return team, nil
}

// CheckTeam evaluates every team rule and returns all failures. Rules run in
// the order shape, per-member, duplicate emails.
func (v *Validator) CheckTeam(in TeamInput) (domain.Team, Errors) {
	in = in.normalized()
	team := domain.Team{TeamName: in.TeamName}
	for _, m := range in.Members {
		team.Members = append(team.Members, domain.Member{Name: m.Name, Roll: string(m.Roll), Email: m.Email})
	}

	fieldErrs := v.fieldErrors(in)
	// A member with a missing field reports that once and skips its format rules.
	incomplete := make(map[string]bool)
	for _, fe := range fieldErrs {
		if member, ok := memberPath(fe); ok && fe.Tag() == "required" {
			incomplete[member] = true
		}
	}

	var errs Errors
	reported := make(map[string]bool)
	for _, fe := range fieldErrs {
		member, ok := memberPath(fe)
		if !ok {
			errs.add(fe.Field(), v.teamMessage(fe))
			continue
		}
		if incomplete[member] {
			if !reported[member] {
				reported[member] = true
				errs.add(member, "all member fields are required")
			}
			continue
		}
		errs.add(member+"."+fe.Field(), v.teamMessage(fe))
	}
	return team, errs
}

func (v *Validator) fieldErrors(s any) validator.ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	// InvalidValidationError only occurs for non-struct input.
	panic(err)
}

func (v *Validator) registrationMessage(fe validator.FieldError) string {
	tag := fe.Tag()
	switch fe.Field() {
	case "username":
		return "name is required"
	case "contact":
		if tag == "required" {
			return "contact number is required"
		}
		return "contact number must be exactly 10 digits"
	case "email":
		switch tag {
		case "required":
			return "email is required"
		case tagApplicantEmail:
			return fmt.Sprintf("email must end with %s", v.policy.ApplicantEmailSuffix)
		default:
			return "email is invalid"
		}
	case "year":
		return "year must be one of 1, 2, 3"
	case "whyGfg":
		return fmt.Sprintf("tell us why you want to join (at least %d characters)", v.policy.MinMotivationLength)
	case "domain1", "domain2":
		if tag == "required" {
			return "first domain preference is required"
		}
		return fmt.Sprintf("unknown domain %q", fe.Value())
	case "deviceId":
		return "device id is required"
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), tag)
}

func (v *Validator) teamMessage(fe validator.FieldError) string {
	tag := fe.Tag()
	switch {
	case fe.Field() == "teamName":
		return "team name is required"
	case tag == tagUniqueEmails:
		return "duplicate emails found in team"
	case fe.Field() == "members" && tag == "required":
		return "members are required"
	case fe.Field() == "members":
		return fmt.Sprintf("team must have 1 to %d members", domain.MaxTeamMembers)
	case tag == tagRollPrefix:
		return fmt.Sprintf("invalid roll number %s: must start with one of %s", fe.Value(), strings.Join(v.policy.RollPrefixes, ", "))
	case tag == tagTeamEmail:
		return fmt.Sprintf("invalid email %s: use %s", fe.Value(), strings.Join(v.policy.TeamEmailSuffixes, " or "))
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), tag)
}

// memberPath returns "members[i]" when fe points inside a roster entry.
func memberPath(fe validator.FieldError) (string, bool) {
	ns := fe.Namespace()
	start := strings.Index(ns, "members[")
	if start < 0 {
		return "", false
	}
	end := strings.Index(ns[start:], "]")
	if end < 0 || start+end+1 == len(ns) {
		return "", false
	}
	return ns[start : start+end+1], true
}

func (v *Validator) applicantEmail(fl validator.FieldLevel) bool {
	suffix := v.policy.ApplicantEmailSuffix
	return suffix == "" || hasSuffixFold(fl.Field().String(), suffix)
}

func (v *Validator) motivation(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) >= v.policy.MinMotivationLength
}

func (v *Validator) knownDomain(fl validator.FieldLevel) bool {
	_, ok := v.catalog.Resolve(fl.Field().String())
	return ok
}

func (v *Validator) rollPrefix(fl validator.FieldLevel) bool {
	return v.policy.TeamMode != TeamModeStrict || hasAnyPrefix(fl.Field().String(), v.policy.RollPrefixes)
}

func (v *Validator) teamEmail(fl validator.FieldLevel) bool {
	if v.policy.TeamMode != TeamModeStrict {
		return true
	}
	email := fl.Field().String()
	return v.validate.Var(email, "email") == nil && hasAnySuffixFold(email, v.policy.TeamEmailSuffixes)
}

// uniqueMemberEmails rejects a roster where two non-empty emails match.
func uniqueMemberEmails(sl validator.StructLevel) {
	in := sl.Current().Interface().(TeamInput)
	seen := make(map[string]struct{}, len(in.Members))
	for _, m := range in.Members {
		if m.Email == "" {
			continue
		}
		if _, dup := seen[m.Email]; dup {
			sl.ReportError(in.Members, "members", "Members", tagUniqueEmails, "")
			return
		}
		seen[m.Email] = struct{}{}
	}
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func hasSuffixFold(s, suffix string) bool {
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	return suffix != "" && strings.HasSuffix(strings.ToLower(s), suffix)
}

func hasAnySuffixFold(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if hasSuffixFold(s, suffix) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
