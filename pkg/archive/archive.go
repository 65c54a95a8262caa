// Package archive keeps the outcome of finished requests after the relay has
// reclaimed them.
package archive

import (
	"context"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

// Record is the terminal state of one request.
type Record struct {
	RequestID   string `json:"requestId"`
	ParentID    string `json:"parentId,omitempty"`
	PromptName  string `json:"promptName"`
	Query       string `json:"query"`
	Model       string `json:"model"`
	Status      string `json:"status"`
	Text        string `json:"text,omitempty"`
	Error       string `json:"error,omitempty"`
	AbortReason string `json:"abortReason,omitempty"`
	CreatedAtMs int64  `json:"createdAtMs"`
	FinishedMs  int64  `json:"finishedAtMs"`
}

// Archive stores request outcomes. Recent returns newest first.
type Archive interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

// FromRequest converts a finished relay request.
func FromRequest(req relay.Request) Record {
	rec := Record{
		RequestID:   req.ID,
		ParentID:    req.ParentID,
		PromptName:  req.PromptName,
		Query:       req.Query,
		Model:       req.Params.Model,
		Status:      string(req.Status),
		Text:        req.Text,
		Error:       req.Error,
		AbortReason: req.AbortReason,
	}
	if !req.CreatedAt.IsZero() {
		rec.CreatedAtMs = req.CreatedAt.UnixMilli()
	}
	if !req.FinishedAt.IsZero() {
		rec.FinishedMs = req.FinishedAt.UnixMilli()
	}
	return rec
}
