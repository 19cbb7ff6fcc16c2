package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gfgkiit/trapped/internal/apperr"
)

func validRegistration() RegistrationInput {
	return RegistrationInput{
		Username: "Ana",
		Contact:  "9876543210",
		Email:    "ana@kiit.ac.in",
		Year:     "2",
		WhyGfg:   "Because I love it",
		Domain1:  "Web Dev",
		DeviceID: "abcdef1234567890",
	}
}

func TestRegistrationNormalizes(t *testing.T) {
	v := New(DefaultPolicy())
	in := validRegistration()
	in.Username = "  Ana  "
	in.Email = " Ana@KIIT.ac.in "
	in.Domain1 = "ai-ml"
	in.Domain2 = "UI-UX"
	in.Github = " https://github.com/ana "

	rec, err := v.Registration(in)
	require.NoError(t, err)
	assert.Equal(t, "Ana", rec.Username)
	assert.Equal(t, "ana@kiit.ac.in", rec.Email)
	assert.Equal(t, "AI/ML", rec.Domain1)
	assert.Equal(t, "UI/UX", rec.Domain2)
	assert.Equal(t, "https://github.com/ana", rec.Github)
	assert.Empty(t, rec.ID)
}

func TestRegistrationRules(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegistrationInput)
		field  string
	}{
		{"missing name", func(in *RegistrationInput) { in.Username = "   " }, "username"},
		{"short contact", func(in *RegistrationInput) { in.Contact = "98765" }, "contact"},
		{"contact with letters", func(in *RegistrationInput) { in.Contact = "98765abcde" }, "contact"},
		{"eleven digit contact", func(in *RegistrationInput) { in.Contact = "98765432101" }, "contact"},
		{"missing email", func(in *RegistrationInput) { in.Email = "" }, "email"},
		{"malformed email", func(in *RegistrationInput) { in.Email = "ana@kiit" }, "email"},
		{"foreign email domain", func(in *RegistrationInput) { in.Email = "ana@gmail.com" }, "email"},
		{"year out of range", func(in *RegistrationInput) { in.Year = "4" }, "year"},
		{"year missing", func(in *RegistrationInput) { in.Year = "" }, "year"},
		{"short motivation", func(in *RegistrationInput) { in.WhyGfg = "meh" }, "whyGfg"},
		{"missing domain", func(in *RegistrationInput) { in.Domain1 = " " }, "domain1"},
		{"unknown domain", func(in *RegistrationInput) { in.Domain1 = "Quantum" }, "domain1"},
		{"unknown second domain", func(in *RegistrationInput) { in.Domain2 = "Quantum" }, "domain2"},
		{"missing device", func(in *RegistrationInput) { in.DeviceID = "" }, "deviceId"},
	}
	v := New(DefaultPolicy())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validRegistration()
			tc.mutate(&in)
			_, err := v.Registration(in)
			require.Error(t, err)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.KindValidation, e.Kind)
			assert.Equal(t, tc.field, e.Field)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestRegistrationFirstFailureWins(t *testing.T) {
	v := New(DefaultPolicy())
	in := validRegistration()
	in.Contact = "1"
	in.Year = "9"

	_, errs := v.CheckRegistration(in)
	require.Len(t, errs, 2)

	_, err := v.Registration(in)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "contact", e.Field)
	assert.Empty(t, e.Fields)
}

func TestRegistrationReportAll(t *testing.T) {
	policy := DefaultPolicy()
	policy.ErrorReporting = ReportAll
	v := New(policy)
	in := validRegistration()
	in.Contact = "1"
	in.Year = "9"

	_, err := v.Registration(in)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "contact", e.Field)
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "year", e.Fields[1].Field)
}

func TestMotivationThresholdIsFiveCharacters(t *testing.T) {
	v := New(DefaultPolicy())
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z ]{0,40}`).Draw(rt, "whyGfg")
		in := validRegistration()
		in.WhyGfg = text
		_, errs := v.CheckRegistration(in)
		trimmed := strings.TrimSpace(text)
		rejected := len(errs) > 0 && errs[0].Field == "whyGfg"
		if want := len(trimmed) < 5; rejected != want {
			rt.Fatalf("whyGfg %q (trimmed len %d): rejected=%v, want %v", text, len(trimmed), rejected, want)
		}
	})

	in := validRegistration()
	in.WhyGfg = "abcd"
	_, err := v.Registration(in)
	require.Error(t, err)
	in.WhyGfg = "abcde"
	_, err = v.Registration(in)
	require.NoError(t, err)
}

func TestRegistrationAcceptsNumericScalars(t *testing.T) {
	var in RegistrationInput
	payload := `{"username":"Ana","contact":9876543210,"email":"ana@kiit.ac.in","year":2,"whyGfg":"Because I love it","domain1":"Web Dev","deviceId":"abc"}`
	require.NoError(t, json.Unmarshal([]byte(payload), &in))
	assert.Equal(t, Scalar("2"), in.Year)
	assert.Equal(t, Scalar("9876543210"), in.Contact)

	_, err := New(DefaultPolicy()).Registration(in)
	require.NoError(t, err)
}

func TestScalarRejectsObjects(t *testing.T) {
	var s Scalar
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &s))
	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.Equal(t, Scalar(""), s)
}

func member(name, roll, email string) MemberInput {
	return MemberInput{Name: name, Roll: Scalar(roll), Email: email}
}

func TestTeamDuplicateMemberEmail(t *testing.T) {
	v := New(DefaultPolicy())
	_, err := v.Team(TeamInput{
		TeamName: "Rocket",
		Members: []MemberInput{
			member("A", "2301X", "a@kiit.ac.in"),
			member("B", "2301Y", "a@kiit.ac.in"),
		},
	})
	require.Error(t, err)
	e, _ := apperr.As(err)
	assert.Equal(t, "members", e.Field)
	assert.Contains(t, e.Message, "duplicate")
}

func TestTeamStrictRules(t *testing.T) {
	v := New(DefaultPolicy())

	_, err := v.Team(TeamInput{TeamName: "Rocket", Members: []MemberInput{member("A", "1901X", "a@kiit.ac.in")}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "members[0].roll", e.Field)

	_, err = v.Team(TeamInput{TeamName: "Rocket", Members: []MemberInput{member("A", "2301X", "a@yahoo.com")}})
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "members[0].email", e.Field)

	team, err := v.Team(TeamInput{TeamName: " Rocket ", Members: []MemberInput{
		member("A", "2301X", "A@KIIT.ac.in"),
		member("B", "2405Y", "b@gmail.com"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "Rocket", team.TeamName)
	assert.Equal(t, "a@kiit.ac.in", team.Members[0].Email)
}

func TestTeamLenientSkipsFormatChecks(t *testing.T) {
	policy := DefaultPolicy()
	policy.TeamMode = TeamModeLenient
	v := New(policy)

	_, err := v.Team(TeamInput{TeamName: "Rocket", Members: []MemberInput{member("A", "1901X", "a@yahoo.com")}})
	require.NoError(t, err)

	_, err = v.Team(TeamInput{TeamName: "Rocket", Members: []MemberInput{member("A", "", "a@yahoo.com")}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "members[0]", e.Field)
}

func TestTeamShape(t *testing.T) {
	v := New(DefaultPolicy())

	_, err := v.Team(TeamInput{Members: []MemberInput{member("A", "2301X", "a@kiit.ac.in")}})
	e, _ := apperr.As(err)
	assert.Equal(t, "teamName", e.Field)

	_, err = v.Team(TeamInput{TeamName: "Rocket"})
	e, _ = apperr.As(err)
	assert.Equal(t, "members", e.Field)
}

func TestTeamSizeProperty(t *testing.T) {
	v := New(DefaultPolicy())
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(rt, "members")
		members := make([]MemberInput, n)
		for i := range members {
			members[i] = member(fmt.Sprintf("M%d", i), fmt.Sprintf("23%04d", i), fmt.Sprintf("m%d@kiit.ac.in", i))
		}
		_, err := v.Team(TeamInput{TeamName: "Rocket", Members: members})
		valid := n >= 1 && n <= 3
		if valid && err != nil {
			rt.Fatalf("team of %d rejected: %v", n, err)
		}
		if !valid && err == nil {
			rt.Fatalf("team of %d accepted", n)
		}
	})
}

func TestTeamSharedEmailProperty(t *testing.T) {
	v := New(DefaultPolicy())
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 3).Draw(rt, "members")
		local := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "local")
		i := rapid.IntRange(0, n-1).Draw(rt, "i")
		j := rapid.IntRange(0, n-1).Filter(func(j int) bool { return j != i }).Draw(rt, "j")
		members := make([]MemberInput, n)
		for k := range members {
			members[k] = member(fmt.Sprintf("M%d", k), "2301X", fmt.Sprintf("other%d@kiit.ac.in", k))
		}
		members[i].Email = "  " + local + "@kiit.ac.in"
		members[j].Email = strings.ToUpper(local) + "@KIIT.AC.IN  "

		_, err := v.Team(TeamInput{TeamName: "Rocket", Members: members})
		if err == nil {
			rt.Fatalf("members %d and %d share %q but team was accepted", i, j, local)
		}
	})
}

func TestRegistrationMessages(t *testing.T) {
	policy := DefaultPolicy()
	policy.ErrorReporting = ReportAll
	v := New(policy)

	in := RegistrationInput{
		Contact: "-123456789",
		Email:   "ana@gmail.com",
		Year:    "0",
		WhyGfg:  "hey",
		Domain1: "Quantum",
		Domain2: "Alchemy",
	}
	_, errs := v.CheckRegistration(in)
	assert.Equal(t, Errors{
		{Field: "username", Message: "name is required"},
		{Field: "contact", Message: "contact number must be exactly 10 digits"},
		{Field: "email", Message: "email must end with @kiit.ac.in"},
		{Field: "year", Message: "year must be one of 1, 2, 3"},
		{Field: "whyGfg", Message: "tell us why you want to join (at least 5 characters)"},
		{Field: "domain1", Message: `unknown domain "Quantum"`},
		{Field: "domain2", Message: `unknown domain "Alchemy"`},
		{Field: "deviceId", Message: "device id is required"},
	}, errs)

	_, errs = v.CheckRegistration(RegistrationInput{Email: "not an email"})
	assert.Contains(t, errs, apperr.FieldError{Field: "email", Message: "email is invalid"})
	assert.Contains(t, errs, apperr.FieldError{Field: "contact", Message: "contact number is required"})
	assert.Contains(t, errs, apperr.FieldError{Field: "domain1", Message: "first domain preference is required"})
}

func TestRegistrationSuffixFollowsPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.ApplicantEmailSuffix = "@example.edu"
	v := New(policy)

	in := validRegistration()
	in.Email = "ana@EXAMPLE.edu"
	_, err := v.Registration(in)
	require.NoError(t, err)

	in.Email = "ana@kiit.ac.in"
	_, err = v.Registration(in)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "email must end with @example.edu", e.Message)
}

func TestTeamMessages(t *testing.T) {
	policy := DefaultPolicy()
	policy.ErrorReporting = ReportAll
	v := New(policy)

	_, errs := v.CheckTeam(TeamInput{TeamName: "Rocket", Members: []MemberInput{
		member("", "1901X", "a@yahoo.com"),
		member("B", "1901Y", "b@yahoo.com"),
		member("C", "2301Z", "B@yahoo.com"),
	}})
	assert.Equal(t, Errors{
		{Field: "members[0]", Message: "all member fields are required"},
		{Field: "members[1].roll", Message: "invalid roll number 1901Y: must start with one of 21, 22, 23, 24, 25"},
		{Field: "members[1].email", Message: "invalid email b@yahoo.com: use @kiit.ac.in or @gmail.com"},
		{Field: "members[2].email", Message: "invalid email b@yahoo.com: use @kiit.ac.in or @gmail.com"},
		{Field: "members", Message: "duplicate emails found in team"},
	}, errs)

	_, errs = v.CheckTeam(TeamInput{Members: []MemberInput{}})
	assert.Equal(t, Errors{
		{Field: "teamName", Message: "team name is required"},
		{Field: "members", Message: "team must have 1 to 3 members"},
	}, errs)

	_, errs = v.CheckTeam(TeamInput{TeamName: "Rocket"})
	assert.Equal(t, Errors{{Field: "members", Message: "members are required"}}, errs)
}
