package onboarding

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavitra93/care-intake-portal/shared/models"
)

const (
	maxNameLength = 120
	maxTeamSize   = 20
)

var (
	validate       = validator.New()
	colourPattern  = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	prefixPattern  = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)
	abnWeights     = [11]int{10, 1, 3, 5, 7, 9, 11, 13, 15, 17, 19}
	documentFormat = map[string]bool{"pdf": true, "csv": true}
)

// FieldError describes one invalid field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a step
type ValidationError struct {
	Step   Step         `json:"step"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("invalid %s step: %s", e.Step, strings.Join(msgs, "; "))
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NormalizeABN strips spaces from an Australian Business Number
func NormalizeABN(abn string) string {
	return strings.Join(strings.Fields(abn), "")
}

// ValidABN checks the 11-digit ABN checksum
func ValidABN(abn string) bool {
	abn = NormalizeABN(abn)
	if len(abn) != 11 {
		return false
	}
	sum := 0
	for i, r := range abn {
		if r < '0' || r > '9' {
			return false
		}
		d := int(r - '0')
		if i == 0 {
			if d == 0 {
				return false
			}
			d--
		}
		sum += d * abnWeights[i]
	}
	return sum%89 == 0
}

// ValidColour accepts #RRGGBB
func ValidColour(c string) bool {
	return colourPattern.MatchString(c)
}

// ValidEmail accepts a single address without display name
func ValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

func validateOrganisation(o *Organisation) error {
	verr := &ValidationError{Step: StepOrganisation}
	o.Name = strings.TrimSpace(o.Name)
	o.LegalName = strings.TrimSpace(o.LegalName)
	o.ABN = NormalizeABN(o.ABN)

	switch {
	case o.Name == "":
		verr.add("name", "is required")
	case len(o.Name) > maxNameLength:
		verr.add("name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	if o.ABN != "" && !ValidABN(o.ABN) {
		verr.add("abn", "is not a valid ABN")
	}
	return verr.orNil()
}

func validateBranding(b *models.Branding) error {
	verr := &ValidationError{Step: StepBranding}
	if b.PrimaryColor == "" {
		b.PrimaryColor = models.DefaultPrimaryColor
	}
	if b.SecondaryColor == "" {
		b.SecondaryColor = models.DefaultSecondaryColor
	}
	if !ValidColour(b.PrimaryColor) {
		verr.add("primary_color", "must be a #RRGGBB colour")
	}
	if !ValidColour(b.SecondaryColor) {
		verr.add("secondary_color", "must be a #RRGGBB colour")
	}
	return verr.orNil()
}

func validateDocuments(d *models.DocumentSettings) error {
	verr := &ValidationError{Step: StepDocuments}
	d.InvoicePrefix = strings.ToUpper(strings.TrimSpace(d.InvoicePrefix))
	if d.InvoicePrefix == "" {
		d.InvoicePrefix = models.DefaultInvoicePrefix
	}
	if d.Format == "" {
		d.Format = models.DefaultDocumentFormat
	}
	d.ABN = NormalizeABN(d.ABN)

	if !prefixPattern.MatchString(d.InvoicePrefix) {
		verr.add("invoice_prefix", "must be 1-10 letters or digits")
	}
	if !documentFormat[d.Format] {
		verr.add("format", "must be pdf or csv")
	}
	if d.ABN != "" && !ValidABN(d.ABN) {
		verr.add("abn", "is not a valid ABN")
	}
	if len(d.FooterText) > 500 {
		verr.add("footer_text", "must be at most 500 characters")
	}
	return verr.orNil()
}

func validateTeam(team []TeamMember) error {
	verr := &ValidationError{Step: StepTeam}
	if len(team) > maxTeamSize {
		verr.add("team", fmt.Sprintf("at most %d members can be invited", maxTeamSize))
		return verr
	}

	seen := make(map[string]bool, len(team))
	for i := range team {
		m := &team[i]
		field := fmt.Sprintf("team[%d]", i)
		m.Email = strings.ToLower(strings.TrimSpace(m.Email))
		if m.Role == "" {
			m.Role = models.RoleUser
		}

		if !ValidEmail(m.Email) {
			verr.add(field+".email", "is not a valid email address")
		} else if seen[m.Email] {
			verr.add(field+".email", "is listed twice")
		}
		seen[m.Email] = true

		if m.Role != models.RoleUser && m.Role != models.RoleTenantOwner {
			verr.add(field+".role", "must be user or tenant_owner")
		}
	}
	return verr.orNil()
}
