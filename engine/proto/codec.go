package proto

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

var (
	// ErrMalformedMessage is returned for frames with an unknown shape or wrong field count
	ErrMalformedMessage = errors.New("malformed message")
	// ErrDelimiterInField is returned when a value contains a delimiter of its level
	ErrDelimiterInField = errors.New("delimiter in field")
	// ErrInvalidName is returned for display names that are too short or not alphanumeric
	ErrInvalidName = errors.New("invalid name")
)

// MinNameLength is the shortest accepted display name
const MinNameLength = 3

// Message is a decoded frame
type Message struct {
	Type   MsgType
	Fields []string
}

// NewMessage creates a message of type mt
func NewMessage(mt MsgType, fields ...string) Message {
	return Message{Type: mt, Fields: fields}
}

func (m Message) String() string {
	return string(m.Type) + "[" + strings.Join(m.Fields, " , ") + "]"
}

func checkNoDelims(s string, delims string) error {
	if i := strings.IndexAny(s, delims); i >= 0 {
		return errors.Wrapf(ErrDelimiterInField, "%q contains %q", s, s[i])
	}
	return nil
}

// Encode joins the type and fields into a frame
func (m Message) Encode() (string, error) {
	if m.Type == "" {
		return "", errors.Wrap(ErrMalformedMessage, "empty message type")
	}
	if err := checkNoDelims(string(m.Type), FieldSep); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString(string(m.Type))
	for _, f := range m.Fields {
		if err := checkNoDelims(f, FieldSep); err != nil {
			return "", err
		}
		sb.WriteString(FieldSep)
		sb.WriteString(f)
	}
	return sb.String(), nil
}

// Bytes encodes the message as the payload of a transport send
func (m Message) Bytes() ([]byte, error) {
	s, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Decode splits a frame into type and fields
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, errors.Wrap(ErrMalformedMessage, "empty frame")
	}
	parts := strings.Split(string(data), FieldSep)
	if parts[0] == "" {
		return Message{}, errors.Wrapf(ErrMalformedMessage, "missing message type in %q", data)
	}
	return Message{Type: MsgType(parts[0]), Fields: parts[1:]}, nil
}

// Expect checks that the message has exactly n fields
func (m Message) Expect(n int) error {
	if len(m.Fields) != n {
		return errors.Wrapf(ErrMalformedMessage, "%s: expect %d fields, got %d", m.Type, n, len(m.Fields))
	}
	return nil
}

// Diagnostic builds the reply sent on the unreliable channel for a malformed frame
func Diagnostic(frame []byte) []byte {
	return []byte(DiagnosticPrefix + strings.ReplaceAll(string(frame), FieldSep, ""))
}

// IsDiagnostic reports whether a frame is a diagnostic rather than a message
func IsDiagnostic(frame []byte) bool {
	return strings.HasPrefix(string(frame), "Error: ")
}

// JoinRecord joins record parts with '%'
func JoinRecord(parts ...string) (string, error) {
	for _, p := range parts {
		if err := checkNoDelims(p, FieldSep+RecordSep); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, RecordSep), nil
}

// SplitRecord splits a record into its parts
func SplitRecord(s string) []string {
	return strings.Split(s, RecordSep)
}

// JoinArgs joins RPC arguments with '$', or returns "null" for no arguments
func JoinArgs(args []string) (string, error) {
	if len(args) == 0 {
		return NullArgs, nil
	}
	if len(args) == 1 && args[0] == NullArgs {
		return "", errors.Wrapf(ErrDelimiterInField, "a sole argument cannot be %q", NullArgs)
	}
	for _, a := range args {
		if err := checkNoDelims(a, FieldSep+RecordSep+ArgSep); err != nil {
			return "", err
		}
	}
	return strings.Join(args, ArgSep), nil
}

// SplitArgs splits '$' joined arguments; "null" gives no arguments
func SplitArgs(s string) []string {
	if s == NullArgs {
		return nil
	}
	return strings.Split(s, ArgSep)
}

// ValidateName checks a display name: at least MinNameLength letters or digits
func ValidateName(name string) error {
	if len([]rune(name)) < MinNameLength {
		return errors.Wrapf(ErrInvalidName, "%q is shorter than %d", name, MinNameLength)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return errors.Wrapf(ErrInvalidName, "%q contains %q", name, r)
		}
	}
	return nil
}

// FormatFloat formats a float field with the fewest digits that read back to the same float32
func FormatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}

// ParseFloat parses a finite float field
func ParseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Wrapf(ErrMalformedMessage, "bad float %q", s)
	}
	return float32(f), nil
}

// FormatInt formats an int field
func FormatInt(i int) string {
	return strconv.Itoa(i)
}

// ParseInt parses an int field
func ParseInt(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedMessage, "bad int %q", s)
	}
	return i, nil
}

// FormatBool formats a bool field
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool parses a bool field, accepting True/False in any case and 1/0
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, errors.Wrapf(ErrMalformedMessage, "bad bool %q", s)
}
