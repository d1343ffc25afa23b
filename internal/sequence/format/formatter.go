package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smallbiznis/pipetrade/internal/fiscalyear"
)

var (
	seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)
	seqAnyRe = regexp.MustCompile(`\{SEQ\d*\}`)
	fyAnyRe  = regexp.MustCompile(`\{FY(FULL)?\}`)
)

const DefaultTemplate = "{PREFIX}/{FY}/{SEQ4}"

var ErrInvalidTemplate = errors.New("invalid_number_template")

// FormatDocumentNumber renders a document number from a template, the type
// prefix, the financial year and the allocated sequence value.
//
// This function is PURE:
// - No side effects
// - No DB access
// - Fully deterministic
func FormatDocumentNumber(
	template string,
	prefix string,
	fy fiscalyear.Year,
	seq int64,
) (string, error) {

	if template == "" {
		return "", fmt.Errorf("%w: template is empty", ErrInvalidTemplate)
	}

	if seq <= 0 {
		return "", fmt.Errorf("invalid document sequence: %d", seq)
	}

	out := template

	out = strings.ReplaceAll(out, "{PREFIX}", prefix)
	out = strings.ReplaceAll(out, "{FYFULL}", fy.FullLabel())
	out = strings.ReplaceAll(out, "{FY}", fy.Label())

	// Simple sequence
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	// Padded sequence; values wider than the pad are printed in full
	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		if len(match) != 2 {
			return m // should never happen
		}

		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}

		return fmt.Sprintf("%0*d", width, seq)
	})

	// Final safety check: unresolved tokens
	if strings.Contains(out, "{") || strings.Contains(out, "}") {
		return "", fmt.Errorf("%w: unresolved token in %s", ErrInvalidTemplate, out)
	}

	return out, nil
}

// ValidateTemplate rejects templates that could format two allocations of the
// same counter, of two financial years, or of two document types to the same
// string. Distinct prefixes across types are the registry's concern.
func ValidateTemplate(template string) error {
	if !strings.Contains(template, "{PREFIX}") {
		return fmt.Errorf("%w: %q has no {PREFIX} token", ErrInvalidTemplate, template)
	}
	if !seqAnyRe.MatchString(template) {
		return fmt.Errorf("%w: %q has no {SEQ} token", ErrInvalidTemplate, template)
	}
	if !fyAnyRe.MatchString(template) {
		return fmt.Errorf("%w: %q has no {FY} token", ErrInvalidTemplate, template)
	}
	_, err := FormatDocumentNumber(template, "X", fiscalyear.Year{StartYear: 2000, ResetMonth: 4}, 1)
	return err
}
