// Package operation maps operation names to the remote call that performs
// them and to the parameters that travel in the stream header.
package operation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rescp17/fileproc/api"
	"github.com/rescp17/fileproc/pkg/transfer"
)

// ErrUnknownOperation is returned for names that are not in the registry.
var ErrUnknownOperation = errors.New("unknown operation")

// ParamType is the type rule a parameter must satisfy.
type ParamType int

const (
	// TypeString accepts one of Param.Allowed, case-insensitively.
	TypeString ParamType = iota
	// TypePositiveInt accepts a base-10 integer greater than zero.
	TypePositiveInt
)

func (t ParamType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypePositiveInt:
		return "positive integer"
	default:
		return "unknown"
	}
}

// MaxImageSide bounds each side of a resize box, in pixels.
const MaxImageSide = 16384

// Param describes one positional operation parameter.
type Param struct {
	Name    string
	Type    ParamType
	Allowed []string
	// Max is the largest TypePositiveInt value accepted; 0 means unbounded.
	Max int
}

// Normalize checks raw against the type rule and returns its canonical form,
// which is what goes into the stream header.
func (p Param) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	switch p.Type {
	case TypeString:
		v := strings.ToLower(raw)
		if len(p.Allowed) == 0 && v != "" {
			return v, nil
		}
		for _, a := range p.Allowed {
			if v == a {
				return v, nil
			}
		}
		return "", fmt.Errorf("%s must be one of %s, got %q", p.Name, strings.Join(p.Allowed, ", "), raw)
	case TypePositiveInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", fmt.Errorf("%s must be an integer, got %q", p.Name, raw)
		}
		if n <= 0 {
			return "", fmt.Errorf("%s must be positive, got %d", p.Name, n)
		}
		if p.Max > 0 && n > p.Max {
			return "", fmt.Errorf("%s must be at most %d, got %d", p.Name, p.Max, n)
		}
		return strconv.Itoa(n), nil
	default:
		return "", fmt.Errorf("%s has an unsupported type", p.Name)
	}
}

// Operation is one entry of the registry.
type Operation struct {
	Name        string
	Method      string
	Unary       bool
	Params      []Param
	Description string
}

// ImageFormats lists the format names convertimg accepts.
var ImageFormats = []string{"png", "jpeg", "jpg", "gif", "bmp", "tiff"}

var registry = map[string]*Operation{
	"compress": {
		Name:        "compress",
		Method:      api.MethodCompressPDF,
		Unary:       true,
		Description: "Compress a PDF document",
	},
	"totxt": {
		Name:        "totxt",
		Method:      api.MethodConvertToTXT,
		Description: "Extract the text of a PDF document",
	},
	"convertimg": {
		Name:        "convertimg",
		Method:      api.MethodConvertImageFormat,
		Params:      []Param{{Name: "format", Type: TypeString, Allowed: ImageFormats}},
		Description: "Convert an image to another format",
	},
	"resize": {
		Name:   "resize",
		Method: api.MethodResizeImage,
		Params: []Param{
			{Name: "width", Type: TypePositiveInt, Max: MaxImageSide},
			{Name: "height", Type: TypePositiveInt, Max: MaxImageSide},
		},
		Description: "Resize an image to fit within width x height",
	},
}

// Lookup returns the operation registered under name.
func Lookup(name string) (*Operation, bool) {
	op, ok := registry[name]
	return op, ok
}

// All returns every operation sorted by name.
func All() []*Operation {
	ops := make([]*Operation, 0, len(registry))
	for _, op := range registry {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Names returns the registered operation names, sorted.
func Names() []string {
	var names []string
	for _, op := range All() {
		names = append(names, op.Name)
	}
	return names
}

// Usage renders the positional parameters, e.g. "<width> <height>".
func (o *Operation) Usage() string {
	parts := make([]string, len(o.Params))
	for i, p := range o.Params {
		parts[i] = "<" + p.Name + ">"
	}
	return strings.Join(parts, " ")
}

// Call is a validated operation together with its canonical parameters.
type Call struct {
	Operation *Operation
	Params    []string
}

// Select validates args against the named operation. Every failure is a
// validation error and nothing should be sent for it.
func Select(name string, args []string) (*Call, error) {
	op, ok := Lookup(name)
	if !ok {
		return nil, &transfer.Error{
			Category: transfer.CategoryValidation,
			Op:       "select",
			Err:      fmt.Errorf("%w %q (want one of %s)", ErrUnknownOperation, name, strings.Join(Names(), ", ")),
		}
	}
	params, err := op.normalize(args)
	if err != nil {
		return nil, transfer.Validationf("select", "%s: %v", op.Name, err)
	}
	return &Call{Operation: op, Params: params}, nil
}

func (o *Operation) normalize(args []string) ([]string, error) {
	if len(args) != len(o.Params) {
		if len(o.Params) == 0 {
			return nil, fmt.Errorf("takes no parameters, got %d", len(args))
		}
		return nil, fmt.Errorf("expects %d parameter(s) %s, got %d", len(o.Params), o.Usage(), len(args))
	}
	if len(args) == 0 {
		return nil, nil
	}
	params := make([]string, len(args))
	for i, p := range o.Params {
		v, err := p.Normalize(args[i])
		if err != nil {
			return nil, err
		}
		params[i] = v
	}
	return params, nil
}

// Values holds decoded parameters by name.
type Values map[string]any

// String returns the named string parameter, or "".
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Int returns the named integer parameter, or 0.
func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

// DecodeParams parses header params back into typed values. It accepts
// exactly what Select produces.
func (o *Operation) DecodeParams(params []string) (Values, error) {
	canonical, err := o.normalize(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Name, err)
	}
	values := make(Values, len(canonical))
	for i, p := range o.Params {
		switch p.Type {
		case TypePositiveInt:
			n, _ := strconv.Atoi(canonical[i])
			values[p.Name] = n
		default:
			values[p.Name] = canonical[i]
		}
	}
	return values, nil
}

// ForMethod returns the operation served by an RPC method.
func ForMethod(method string) (*Operation, bool) {
	for _, op := range registry {
		if op.Method == method {
			return op, true
		}
	}
	return nil, false
}
