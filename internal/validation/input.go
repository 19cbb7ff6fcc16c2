package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Scalar accepts a JSON string or number and keeps its text form. Browser
// forms send fields like year and contact either way.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = Scalar(num.String())
	return nil
}

// RegistrationInput is the raw applicant payload as submitted by the form.
// The validate tags run against the trimmed copy returned by normalized.
type RegistrationInput struct {
	Username   string `json:"username" validate:"required"`
	Contact    Scalar `json:"contact" validate:"required,len=10,number"`
	Email      string `json:"email" validate:"required,email,applicant_email"`
	Year       Scalar `json:"year" validate:"required,oneof=1 2 3"`
	WhyGfg     string `json:"whyGfg" validate:"motivation"`
	Domain1    string `json:"domain1" validate:"required,domain"`
	Domain2    string `json:"domain2" validate:"omitempty,domain"`
	Github     string `json:"github"`
	LinkedIn   string `json:"linkedin"`
	ResumeLink string `json:"resumeLink"`
	Avatar     string `json:"avatar"`
	DeviceID   string `json:"deviceId" validate:"required"`
}

func (in RegistrationInput) normalized() RegistrationInput {
	return RegistrationInput{
		Username:   strings.TrimSpace(in.Username),
		Contact:    Scalar(strings.TrimSpace(string(in.Contact))),
		Email:      normalizeEmail(in.Email),
		Year:       Scalar(strings.TrimSpace(string(in.Year))),
		WhyGfg:     strings.TrimSpace(in.WhyGfg),
		Domain1:    strings.TrimSpace(in.Domain1),
		Domain2:    strings.TrimSpace(in.Domain2),
		Github:     strings.TrimSpace(in.Github),
		LinkedIn:   strings.TrimSpace(in.LinkedIn),
		ResumeLink: strings.TrimSpace(in.ResumeLink),
		Avatar:     strings.TrimSpace(in.Avatar),
		DeviceID:   strings.TrimSpace(in.DeviceID),
	}
}

// TeamInput is the raw team payload. Duplicate member emails are checked at
// struct level, after the per-member rules.
type TeamInput struct {
	TeamName string        `json:"teamName" validate:"required"`
	Members  []MemberInput `json:"members" validate:"required,min=1,max=3,dive"`
}

func (in TeamInput) normalized() TeamInput {
	out := TeamInput{TeamName: strings.TrimSpace(in.TeamName)}
	if in.Members != nil {
		out.Members = make([]MemberInput, len(in.Members))
		for i, m := range in.Members {
			out.Members[i] = MemberInput{
				Name:  strings.TrimSpace(m.Name),
				Roll:  Scalar(strings.TrimSpace(string(m.Roll))),
				Email: normalizeEmail(m.Email),
			}
		}
	}
	return out
}

// MemberInput is one raw roster entry.
type MemberInput struct {
	Name  string `json:"name" validate:"required"`
	Roll  Scalar `json:"roll" validate:"required,roll_prefix"`
	Email string `json:"email" validate:"required,team_email"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
