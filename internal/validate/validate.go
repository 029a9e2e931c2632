// Package validate enforces address and schema rules on email jobs before
// they reach the queue, and again when they leave it.
package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"PulseQueue/internal/models"
)

const maxAddressLen = 254

var blockedDomains = map[string]struct{}{
	"example.com": {},
	"example.org": {},
	"example.net": {},
	"test.com":    {},
	"localhost":   {},
}

var schema = newSchema()

func newSchema() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return Address(fl.Field().String())
	})
	_ = v.RegisterValidation("sender", func(fl validator.FieldLevel) bool {
		return Sender(fl.Field().String())
	})
	return v
}

// Address reports whether addr is a syntactically usable address: one '@',
// a non-empty local part, a dotted domain and no whitespace.
func Address(addr string) bool {
	if addr == "" || len(addr) > maxAddressLen {
		return false
	}
	if strings.IndexFunc(addr, unicode.IsSpace) >= 0 {
		return false
	}
	if strings.Count(addr, "@") != 1 {
		return false
	}
	local, domain, _ := strings.Cut(addr, "@")
	if local == "" {
		return false
	}
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// Blocked reports whether the address belongs to a placeholder domain
// that must never consume send quota.
func Blocked(addr string) bool {
	_, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return false
	}
	_, blocked := blockedDomains[strings.ToLower(domain)]
	return blocked
}

// Deliverable combines Address and Blocked.
func Deliverable(addr string) bool {
	return Address(addr) && !Blocked(addr)
}

// Sender accepts a bare address or the "Display Name <addr>" form.
func Sender(from string) bool {
	if Address(from) {
		return true
	}
	parsed, err := mail.ParseAddress(from)
	if err != nil {
		return false
	}
	return Address(parsed.Address)
}

// FilterRecipients splits addrs into deliverable and skipped, keeping order.
func FilterRecipients(addrs []string) (kept []string, skipped int) {
	kept = make([]string, 0, len(addrs))
	for _, a := range addrs {
		if Deliverable(a) {
			kept = append(kept, a)
			continue
		}
		skipped++
	}
	return kept, skipped
}

// ValidationError names the offending job, field and rule.
// Index is -1 when the input was not part of a batch.
type ValidationError struct {
	Index int    `json:"index"`
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid %s: failed %q", e.Field, e.Rule)
	}
	return fmt.Sprintf("invalid email job at index %d: %s failed %q", e.Index, e.Field, e.Rule)
}

// Job validates a single job. The recipient domain is checked before the
// schema so a blocked address is reported as such.
func Job(job models.EmailJob, index int) error {
	if Blocked(job.To) {
		return &ValidationError{Index: index, Field: "to", Rule: "blocked_domain"}
	}
	return structErr(schema.Struct(job), index)
}

// Batch validates the HTTP batch envelope. The jobs themselves are checked
// by the enqueuer after undeliverable recipients are filtered out.
func Batch(batch models.EmailJobBatch) error {
	if err := schema.Var(batch.Jobs, "required,min=1,max=500"); err != nil {
		return &ValidationError{Index: -1, Field: "jobs", Rule: ruleOf(err)}
	}
	return nil
}

// Broadcast validates the broadcast envelope. Individual recipients are
// filtered later, not rejected here.
func Broadcast(b models.BroadcastEmail) error {
	return structErr(schema.Struct(b), -1)
}

func structErr(err error, index int) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Index: index, Field: fieldPath(fe), Rule: fe.Tag()}
	}
	return fmt.Errorf("validate: %w", err)
}

func ruleOf(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Tag()
	}
	return "invalid"
}

// fieldPath drops the struct name prefix: "EmailJob.subject" -> "subject".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
