// Package identity canonicalizes the id representations the tracker backends
// send (numbers, "12", "#12", free-form strings) into one comparable key.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unknown is the display form of an entity whose identity is not known yet.
const Unknown = "#?"

// ID is a canonical identity. The zero value is None and never equals a real
// identity. IDs are comparable and can be used as map keys.
type ID struct {
	num     int64
	str     string
	numeric bool
	valid   bool
}

// None is the "no identity" sentinel.
var None = ID{}

// Identifiable is implemented by entities that carry their own identity.
type Identifiable interface {
	IdentityValue() any
}

// Int returns a numeric identity.
func Int(n int64) ID {
	return ID{num: n, numeric: true, valid: true}
}

// Normalize returns the canonical identity of v. Blank, nil and unsupported
// values yield None.
func Normalize(v any) ID {
	switch x := v.(type) {
	case nil:
		return None
	case ID:
		return x
	case *ID:
		if x == nil {
			return None
		}
		return *x
	case Identifiable:
		return Normalize(x.IdentityValue())
	case map[string]any:
		if raw, ok := x["rawId"]; ok && raw != nil {
			return Normalize(raw)
		}
		return Normalize(x["id"])
	case string:
		return Parse(x)
	case *string:
		if x == nil {
			return None
		}
		return Parse(*x)
	case json.Number:
		return Parse(x.String())
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case *int:
		if x == nil {
			return None
		}
		return Int(int64(*x))
	case *int64:
		if x == nil {
			return None
		}
		return Int(*x)
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint64:
		return fromUint(x)
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case fmt.Stringer:
		return Parse(x.String())
	default:
		return Parse(fmt.Sprint(x))
	}
}

// Parse normalizes a textual id: one leading '#' is dropped, whitespace is
// trimmed, and fully numeric text becomes a numeric identity. Decimal and
// exponent spellings of an integer ("12.0", "1.2e1") parse to the same
// identity as 12.
func Parse(s string) ID {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "#")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return None
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err == nil {
		return Int(n)
	}
	if errors.Is(err, strconv.ErrRange) {
		return ID{str: cleaned, valid: true}
	}
	if f, ok := parseDecimal(cleaned); ok {
		return fromFloat(f)
	}
	return ID{str: cleaned, valid: true}
}

// parseDecimal accepts finite base-10 numbers only. strconv.ParseFloat also
// takes "inf", "nan" and hex floats, which stay textual ids.
func parseDecimal(s string) (float64, bool) {
	for _, r := range s {
		if !strings.ContainsRune("0123456789+-.eE", r) {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func fromUint(u uint64) ID {
	if u > math.MaxInt64 {
		return ID{str: strconv.FormatUint(u, 10), valid: true}
	}
	return Int(int64(u))
}

func fromFloat(f float64) ID {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return None
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Int(int64(f))
	}
	return ID{str: strconv.FormatFloat(f, 'f', -1, 64), valid: true}
}

// Valid reports whether id is a real identity.
func (id ID) Valid() bool { return id.valid }

// IsNumeric reports whether the identity is numeric.
func (id ID) IsNumeric() bool { return id.valid && id.numeric }

// Int64 returns the numeric value and whether the identity is numeric.
func (id ID) Int64() (int64, bool) {
	if !id.IsNumeric() {
		return 0, false
	}
	return id.num, true
}

// String returns the bare identity ("12", "abc"), or "" for None.
func (id ID) String() string {
	switch {
	case !id.valid:
		return ""
	case id.numeric:
		return strconv.FormatInt(id.num, 10)
	default:
		return id.str
	}
}

// Display returns "#" followed by the identity, or Unknown for None.
func (id ID) Display() string {
	if !id.valid {
		return Unknown
	}
	return "#" + id.String()
}

// Equal reports whether v normalizes to id. None never equals anything.
func (id ID) Equal(v any) bool {
	other := Normalize(v)
	return id.valid && other.valid && id == other
}

// MarshalJSON encodes numeric identities as numbers, others as strings and
// None as null.
func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case !id.valid:
		return []byte("null"), nil
	case id.numeric:
		return []byte(strconv.FormatInt(id.num, 10)), nil
	default:
		return json.Marshal(id.str)
	}
}

// UnmarshalJSON accepts any JSON scalar and normalizes it.
func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	*id = Normalize(v)
	return nil
}
