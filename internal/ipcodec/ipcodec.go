// Package ipcodec parses and increments the IPv4 request expressions found
// in app deployment attributes.
//
// The grammar is `segment (';' segment)*` where each segment addresses one
// NIC and is either a range ("10.0.0.10-15"), a comma list of discrete
// addresses, or a single address. Incrementing preserves the structure of
// the expression: a range stays a range, a list keeps its length.
package ipcodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors returned by the codec.
var (
	// ErrInvalidAddress indicates a token that is not a dotted quad.
	ErrInvalidAddress = errors.New("invalid ip address")

	// ErrInvalidRange indicates a token that is not "<ip>-<upper>".
	ErrInvalidRange = errors.New("invalid ip range")

	// ErrUnsupportedOctet indicates an increment octet outside /24, /16, /8.
	ErrUnsupportedOctet = errors.New("unsupported increment octet")

	// ErrIncrementOverflow indicates an increment plan that would push an
	// octet past 255.
	ErrIncrementOverflow = errors.New("ip increment overflows octet")
)

// Octet selects which octet of an address an increment applies to.
type Octet string

const (
	// OctetSlash24 increments the last octet.
	OctetSlash24 Octet = "/24"
	// OctetSlash16 increments the third octet.
	OctetSlash16 Octet = "/16"
	// OctetSlash8 increments the second octet.
	OctetSlash8 Octet = "/8"
)

// octetIndex maps the selector to the index of the octet it moves.
// Order matters: /24 touches split[3], /16 split[2], /8 split[1].
var octetIndex = map[Octet]int{
	OctetSlash24: 3,
	OctetSlash16: 2,
	OctetSlash8:  1,
}

// ValidateOctet checks the selector string and returns its typed form.
func ValidateOctet(sel string) (Octet, error) {
	octet := Octet(sel)
	if _, ok := octetIndex[octet]; !ok {
		return "", fmt.Errorf("%w: %q (supported: /24, /16, /8)", ErrUnsupportedOctet, sel)
	}
	return octet, nil
}

// IncrementSingleIP adds amount to the octet selected by octet, leaving the
// other octets untouched.
//
// Overflow past 255 is not defended here; callers incrementing at scale
// must run CheckIncrementBounds before planning any mutation.
func IncrementSingleIP(ip string, octet Octet, amount int) (string, error) {
	idx, ok := octetIndex[octet]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOctet, string(octet))
	}

	parts, err := parseQuad(ip)
	if err != nil {
		return "", err
	}
	parts[idx] += amount

	return fmt.Sprintf("%d.%d.%d.%d", parts[0], parts[1], parts[2], parts[3]), nil
}

// IncrementRange increments the base address of a "<ip>-<upper>" range.
// The trailing bound denotes a last-octet span, so it moves together with
// the base only for /24 increments and is left as-is for /16 and /8.
func IncrementRange(rangeExpr string, octet Octet, amount int) (string, error) {
	base, upper, err := splitRange(rangeExpr)
	if err != nil {
		return "", err
	}

	newBase, err := IncrementSingleIP(base, octet, amount)
	if err != nil {
		return "", err
	}

	if octet == OctetSlash24 {
		bound, err := strconv.Atoi(upper)
		if err != nil {
			return "", fmt.Errorf("%w: bad upper bound in %q", ErrInvalidRange, rangeExpr)
		}
		upper = strconv.Itoa(bound + amount)
	}

	return newBase + "-" + upper, nil
}

// IsRange reports whether the token has valid "<ip>-<upper>" shape.
func IsRange(token string) bool {
	_, _, err := splitRange(token)
	return err == nil
}

// IncrementRequestString increments every address in a full request
// expression, preserving its semicolon/comma structure. Whitespace around
// items is dropped.
func IncrementRequestString(expr string, octet Octet, amount int) (string, error) {
	if _, err := ValidateOctet(string(octet)); err != nil {
		return "", err
	}

	segments := strings.Split(expr, ";")
	newSegments := make([]string, 0, len(segments))
	for _, segment := range segments {
		incremented, err := incrementSegment(strings.TrimSpace(segment), octet, amount)
		if err != nil {
			return "", err
		}
		newSegments = append(newSegments, incremented)
	}
	return strings.Join(newSegments, ";"), nil
}

func incrementSegment(segment string, octet Octet, amount int) (string, error) {
	items := strings.Split(segment, ",")
	newItems := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)

		var incremented string
		var err error
		if IsRange(item) {
			incremented, err = IncrementRange(item, octet, amount)
		} else {
			incremented, err = IncrementSingleIP(item, octet, amount)
		}
		if err != nil {
			return "", err
		}
		newItems = append(newItems, incremented)
	}
	return strings.Join(newItems, ","), nil
}

// CheckIncrementBounds verifies that applying totalIncrement to the last
// octet of every /24-incremented address in expr stays within 255. It is
// the caller-level guard the codec's increment functions rely on; run it
// during configuration validation, before any mutation is issued.
func CheckIncrementBounds(expr string, totalIncrement int) error {
	for _, segment := range strings.Split(expr, ";") {
		for _, item := range strings.Split(strings.TrimSpace(segment), ",") {
			item = strings.TrimSpace(item)

			base := item
			bound := -1
			if b, upper, err := splitRange(item); err == nil {
				base = b
				bound, err = strconv.Atoi(upper)
				if err != nil {
					return fmt.Errorf("%w: bad upper bound in %q", ErrInvalidRange, item)
				}
			}

			parts, err := parseQuad(base)
			if err != nil {
				return err
			}
			if parts[3]+totalIncrement > 255 {
				return fmt.Errorf("%w: %q + %d exceeds 255", ErrIncrementOverflow, item, totalIncrement)
			}
			if bound >= 0 && bound+totalIncrement > 255 {
				return fmt.Errorf("%w: range bound of %q + %d exceeds 255", ErrIncrementOverflow, item, totalIncrement)
			}
		}
	}
	return nil
}

func splitRange(token string) (base, upper string, err error) {
	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q (valid example: 10.0.0.1-10)", ErrInvalidRange, token)
	}
	if _, err := parseQuad(parts[0]); err != nil {
		return "", "", fmt.Errorf("%w: %q has invalid base address", ErrInvalidRange, token)
	}
	return parts[0], parts[1], nil
}

func parseQuad(ip string) ([4]int, error) {
	var parts [4]int
	fields := strings.Split(ip, ".")
	if len(fields) != 4 {
		return parts, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 || n > 255 {
			return parts, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
		}
		parts[i] = n
	}
	return parts, nil
}
