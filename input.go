package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix
const DefaultPhoneRegion = "US"

// SignInInput is the email/password pair submitted by the sign in form.
type SignInInput struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Remember bool   `json:"remember" form:"remember"`
}

// Normalize trims the email, the password is kept verbatim.
func (i SignInInput) Normalize() SignInInput {
	i.Email = strings.TrimSpace(i.Email)
	return i
}

// Validate checks the input shape before any remote call is made.
func (i SignInInput) Validate() error {
	err := validation.ValidateStruct(&i,
		validation.Field(&i.Email, validation.Required, is.Email),
		validation.Field(&i.Password, validation.Required),
	)
	if err != nil {
		return invalidInput("email and password are required", validationMetadata(err))
	}
	return nil
}

// ProfilePatch is a partial profile update keyed by column name.
type ProfilePatch map[string]any

// Columns returns the patched columns in a stable order.
func (p ProfilePatch) Columns() []string {
	cols := make([]string, 0, len(p))
	for k := range p {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

type fieldRule struct {
	kind  string
	rules []validation.Rule
}

const (
	fieldText    = "text"
	fieldPhone   = "phone"
	fieldURL     = "url"
	fieldSocials = "socials"
)

var talentPatchFields = map[string]fieldRule{
	"full_name":  {kind: fieldText, rules: []validation.Rule{validation.Required, validation.Length(1, 120)}},
	"stage_name": {kind: fieldText, rules: []validation.Rule{validation.Length(0, 120)}},
	"bio":        {kind: fieldText, rules: []validation.Rule{validation.Length(0, 2000)}},
	"phone":      {kind: fieldPhone},
	"avatar_url": {kind: fieldURL},
	"category":   {kind: fieldText, rules: []validation.Rule{validation.Length(0, 80)}},
	"location":   {kind: fieldText, rules: []validation.Rule{validation.Length(0, 120)}},
	"socials":    {kind: fieldSocials},
}

var adminPatchFields = map[string]fieldRule{
	"name":       {kind: fieldText, rules: []validation.Rule{validation.Required, validation.Length(1, 120)}},
	"phone":      {kind: fieldPhone},
	"avatar_url": {kind: fieldURL},
}

// PatchFields returns the columns a role may update on its own profile.
func PatchFields(role Role) []string {
	fields := patchFieldsFor(role)
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func patchFieldsFor(role Role) map[string]fieldRule {
	switch {
	case role == RoleTalent:
		return talentPatchFields
	case role.IsPrivileged():
		return adminPatchFields
	}
	return nil
}

// NormalizePatch validates a patch against the role allow list and returns a
// copy with normalized values (trimmed text, E.164 phone numbers, JSON socials).
func NormalizePatch(role Role, patch ProfilePatch, region string) (ProfilePatch, error) {
	if len(patch) == 0 {
		return nil, invalidInput("profile patch is empty", nil)
	}

	fields := patchFieldsFor(role)
	if fields == nil {
		return nil, invalidInput("unknown role", map[string]any{"role": role})
	}

	if region == "" {
		region = DefaultPhoneRegion
	}

	out := ProfilePatch{}
	errs := validation.Errors{}

	for _, col := range patch.Columns() {
		rule, ok := fields[col]
		if !ok {
			errs[col] = fmt.Errorf("field can not be updated")
			continue
		}

		value, err := normalizeField(rule, patch[col], region)
		if err != nil {
			errs[col] = err
			continue
		}
		out[col] = value
	}

	if len(errs) > 0 {
		return nil, invalidInput("profile patch is invalid", validationMetadata(errs))
	}

	return out, nil
}

func normalizeField(rule fieldRule, raw any, region string) (any, error) {
	if rule.kind == fieldSocials {
		return normalizeSocials(raw)
	}

	value, ok := raw.(string)
	if !ok {
		if raw != nil {
			return nil, fmt.Errorf("must be a string")
		}
		value = ""
	}
	value = strings.TrimSpace(value)

	switch rule.kind {
	case fieldPhone:
		return NormalizePhone(value, region)
	case fieldURL:
		if err := validation.Validate(value, is.URL); err != nil {
			return nil, err
		}
		return value, nil
	}

	if err := validation.Validate(value, rule.rules...); err != nil {
		return nil, err
	}
	return value, nil
}

// NormalizePhone formats a phone number as E.164. An empty value clears the field.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("invalid phone number")
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number")
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func normalizeSocials(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "{}", nil
	case map[string]any:
		for k, link := range v {
			s, ok := link.(string)
			if !ok {
				return "", fmt.Errorf("%s must be a string", k)
			}
			if err := validation.Validate(s, is.URL); err != nil {
				return "", fmt.Errorf("%s: %w", k, err)
			}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return normalizeSocials(m)
	}
	return "", fmt.Errorf("must be an object")
}

func validationMetadata(err error) map[string]any {
	fields := map[string]any{}
	if errs, ok := err.(validation.Errors); ok {
		for k, v := range errs {
			if v != nil {
				fields[k] = v.Error()
			}
		}
		return map[string]any{"fields": fields}
	}
	return map[string]any{"error": err.Error()}
}
