package builtin

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRandomLength = 16
	maxRandomLength     = 4096
	alphanumeric        = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Func is a placeholder function. Args arrive already unquoted.
type Func func(args []string) (any, error)

type Registry struct {
	funcs map[string]Func
	now   func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used by now(), timestamp() and timestampMs().
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["uuid"] = funcUUID
	r.funcs["now"] = r.funcNow
	r.funcs["timestamp"] = r.funcTimestamp
	r.funcs["timestampMs"] = r.funcTimestampMs
	r.funcs["randomString"] = funcRandomString
	r.funcs["base64"] = funcBase64
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Names returns the registered function names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// IsCall reports whether expr has the shape of a function call.
func IsCall(expr string) bool {
	return funcCallPattern.MatchString(strings.TrimSpace(expr))
}

// Call evaluates expr. ok is false when expr is not a call to a registered
// function or the function rejected its arguments.
func (r *Registry) Call(expr string) (any, bool) {
	matches := funcCallPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return nil, false
	}

	fn, ok := r.funcs[matches[1]]
	if !ok {
		return nil, false
	}

	var args []string
	if strings.TrimSpace(matches[2]) != "" {
		args = parseArgs(matches[2])
	}

	v, err := fn(args)
	if err != nil {
		return nil, false
	}
	return v, true
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case !inQuote && (ch == '"' || ch == '\''):
			inQuote = true
			quoteChar = ch
		case inQuote && ch == quoteChar:
			inQuote = false
			quoteChar = 0
		case !inQuote && ch == ',':
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	args = append(args, strings.TrimSpace(current.String()))
	return args
}

func funcUUID(_ []string) (any, error) {
	return uuid.New().String(), nil
}

func (r *Registry) funcNow(_ []string) (any, error) {
	return r.now().UTC().Format(time.RFC3339), nil
}

func (r *Registry) funcTimestamp(_ []string) (any, error) {
	return r.now().Unix(), nil
}

func (r *Registry) funcTimestampMs(_ []string) (any, error) {
	return r.now().UnixMilli(), nil
}

func funcRandomString(args []string) (any, error) {
	length := defaultRandomLength
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, err
		}
		length = v
	}
	if length < 0 {
		length = 0
	}
	if length > maxRandomLength {
		length = maxRandomLength
	}
	return randomString(length, alphanumeric)
}

func funcBase64(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0])), nil
}

func randomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	limit := big.NewInt(int64(len(charset)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
