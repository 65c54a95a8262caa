package relay

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusAborted:
		return true
	default:
		return false
	}
}

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = "300"
	DefaultTemperature = "0.7"

	defaultMaxTokensValue   = 300
	defaultTemperatureValue = 0.7
)

const (
	BriefSystemMessage   = "You are a helpful assistant. Your response must be very brief and concise, try not to use more than 100 chars."
	VerboseSystemMessage = "You are a helpful assistant. Your response must be detailed and comprehensive."
)

// Params are generation parameters as they come out of configuration storage.
type Params struct {
	Model       string
	MaxTokens   string
	Temperature string
}

// withFallback fills empty fields from fallback, then from the built-in defaults.
func (p Params) withFallback(fallback Params) Params {
	pick := func(v, f, d string) string {
		if strings.TrimSpace(v) != "" {
			return v
		}
		if strings.TrimSpace(f) != "" {
			return f
		}
		return d
	}
	return Params{
		Model:       pick(p.Model, fallback.Model, DefaultModel),
		MaxTokens:   pick(p.MaxTokens, fallback.MaxTokens, DefaultMaxTokens),
		Temperature: pick(p.Temperature, fallback.Temperature, DefaultTemperature),
	}
}

// MaxTokensValue parses MaxTokens, falling back to the default when it is not a number.
func (p Params) MaxTokensValue() int {
	v, err := strconv.Atoi(strings.TrimSpace(p.MaxTokens))
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(p.MaxTokens), 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return defaultMaxTokensValue
		}
		return int(f)
	}
	return v
}

// TemperatureValue parses Temperature, falling back to the default for NaN, Inf or garbage.
func (p Params) TemperatureValue() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Temperature), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return defaultTemperatureValue
	}
	return v
}

// Request is a point-in-time copy of a request record.
type Request struct {
	ID       string
	ParentID string
	Surface  string

	Query         string
	Prompt        string
	PromptName    string
	SystemMessage string
	Params        Params

	Text        string
	Status      Status
	Error       string
	AbortReason string

	CreatedAt  time.Time
	FinishedAt time.Time
}

// UserContent is the single user message sent upstream.
func (r Request) UserContent() string {
	return r.Prompt + "\n\n" + r.Query
}

// entry is the mutable record behind a Request. mu serializes every reaction
// for this request: state changes, broadcasts and attach replays.
type entry struct {
	mu     sync.Mutex
	req    Request
	ctx    context.Context
	cancel context.CancelFunc
	// final is set once a full-text event replaced the accumulated text.
	final bool
	// gone is set when cleanup removed the entry from the store.
	gone bool
	// primed holds the channels that got a start replay while pending.
	primed map[string]struct{}
}
