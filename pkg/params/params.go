// Package params holds the flat string parameter set a job is triggered with,
// typed accessors for reading it, and declarative validation.
package params

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jdziat/pass-batch/pkg/core"
	"github.com/jdziat/pass-batch/pkg/security"
)

// DateTimeLayout is the primary layout accepted for date-time parameters.
const DateTimeLayout = "2006-01-02 15:04"

var timeLayouts = []string{DateTimeLayout, time.RFC3339, "2006-01-02"}

// Parameters is an immutable key to string value map.
type Parameters struct {
	values map[string]string
}

// New copies raw into a Parameters value.
func New(raw map[string]string) Parameters {
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[k] = v
	}
	return Parameters{values: values}
}

// Parse reads "key=value" arguments as given on a command line.
func Parse(args []string) (Parameters, error) {
	raw := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return Parameters{}, &Error{Key: arg, Reason: "expected key=value"}
		}
		raw[k] = v
	}
	return New(raw), nil
}

// Len returns the number of parameters.
func (p Parameters) Len() int { return len(p.values) }

// Has reports whether key is present.
func (p Parameters) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys returns the parameter keys in sorted order.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map returns a copy of the underlying values.
func (p Parameters) Map() map[string]string {
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// String returns the raw value for key, or "" when absent.
func (p Parameters) String(key string) string {
	return p.values[key]
}

// Int reads key as a base-10 integer.
func (p Parameters) Int(key string) (int64, error) {
	v, ok := p.values[key]
	if !ok {
		return 0, &Error{Key: key, Reason: "missing"}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, &Error{Key: key, Reason: "not an integer", Err: err}
	}
	return n, nil
}

// Time reads key as a date-time. Values without a zone are read as UTC.
func (p Parameters) Time(key string) (time.Time, error) {
	v, ok := p.values[key]
	if !ok {
		return time.Time{}, &Error{Key: key, Reason: "missing"}
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, &Error{Key: key, Reason: "not a date-time", Err: err}
	}
	return t, nil
}

// Enum reads key and checks it against allowed.
func (p Parameters) Enum(key string, allowed ...string) (string, error) {
	v, ok := p.values[key]
	if !ok {
		return "", &Error{Key: key, Reason: "missing"}
	}
	if !slices.Contains(allowed, v) {
		return "", &Error{Key: key, Reason: fmt.Sprintf("must be one of %s", strings.Join(allowed, ","))}
	}
	return v, nil
}

// ParseTime parses s using the accepted date-time layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// FormatTime renders t in DateTimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateTimeLayout)
}

// IdentityKey returns a stable digest of the sorted key=value pairs. Two
// parameter sets share a key exactly when they hold the same entries.
func (p Parameters) IdentityKey() string {
	h := sha256.New()
	for _, k := range p.Keys() {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(p.values[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Encode serializes the parameters as a JSON object for storage.
func (p Parameters) Encode() string {
	if len(p.values) == 0 {
		return "{}"
	}
	b, err := json.Marshal(p.values)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Decode is the inverse of Encode.
func Decode(s string) (Parameters, error) {
	if s == "" {
		return New(nil), nil
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Parameters{}, fmt.Errorf("decode parameters: %w", err)
	}
	return New(raw), nil
}

// Type is the declared type of a parameter.
type Type string

const (
	TypeString   Type = "string"
	TypeInt      Type = "int"
	TypeDateTime Type = "datetime"
	TypeEnum     Type = "enum"
)

// Definition declares one parameter a job reads.
type Definition struct {
	Key      string
	Type     Type
	Required bool
	// Values lists the accepted values for TypeEnum.
	Values []string
}

// Spec is the set of parameters a job declares.
type Spec []Definition

// Validate checks p against the limits in package security and every
// definition in s. Keys that s does not declare are allowed.
func (s Spec) Validate(p Parameters) error {
	if err := security.ValidateParameters(p.values); err != nil {
		return err
	}
	for _, d := range s {
		if !p.Has(d.Key) {
			if d.Required {
				return &Error{Key: d.Key, Reason: "required"}
			}
			continue
		}
		var err error
		switch d.Type {
		case TypeInt:
			_, err = p.Int(d.Key)
		case TypeDateTime:
			_, err = p.Time(d.Key)
		case TypeEnum:
			_, err = p.Enum(d.Key, d.Values...)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Error reports a missing or malformed parameter.
type Error struct {
	Key    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("batch: parameter %q: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("batch: parameter %q: %s", e.Key, e.Reason)
}

// Unwrap returns the wrapped parse error, if any.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{core.ErrInvalidParameters, e.Err}
	}
	return []error{core.ErrInvalidParameters}
}
