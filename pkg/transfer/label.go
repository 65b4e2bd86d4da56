package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// LabelDelimiter joins the file name and parameters in the legacy label form.
const LabelDelimiter = "|"

// ErrDelimiterInLabel is returned when a name or parameter contains LabelDelimiter.
var ErrDelimiterInLabel = errors.New("label component contains the delimiter")

// FormatLabel builds "name|p1|p2". Components containing the delimiter are
// rejected instead of producing a label that parses back differently.
func FormatLabel(name string, params ...string) (string, error) {
	if name == "" {
		return "", errors.New("label needs a file name")
	}
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, name)
	parts = append(parts, params...)
	for _, p := range parts {
		if strings.Contains(p, LabelDelimiter) {
			return "", fmt.Errorf("%w: %q", ErrDelimiterInLabel, p)
		}
	}
	return strings.Join(parts, LabelDelimiter), nil
}

// ParseLabel splits a label produced by FormatLabel into its name and params.
func ParseLabel(label string) (string, []string, error) {
	if label == "" {
		return "", nil, errors.New("empty label")
	}
	parts := strings.Split(label, LabelDelimiter)
	if parts[0] == "" {
		return "", nil, fmt.Errorf("label %q has no file name", label)
	}
	if len(parts) == 1 {
		return parts[0], nil, nil
	}
	return parts[0], parts[1:], nil
}

// HeaderFromLabel parses a legacy label into a structured header.
func HeaderFromLabel(label string) (*Header, error) {
	name, params, err := ParseLabel(label)
	if err != nil {
		return nil, err
	}
	h := &Header{Name: name, Params: params}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
