package relay

import "github.com/pkg/errors"

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrNoActiveRequest = errors.New("no active request found")
)

// Terminal messages surfaced to subscribers.
const (
	MessageMissingAPIKey = "OpenAI API key is not set."
	MessageNoOutput      = "No output returned from the model."
	MessageNoActive      = "No active request found."
	MessageFailed        = "Request failed."
	MessageMalformed     = "Malformed response from the model."

	ReasonCancelled = "Request cancelled."
	ReasonByUser    = "Cancelled by user."
	ReasonReplaced  = "Replaced by a new request."
)

func incompleteMessage(reason string) string {
	return "Response incomplete: " + reason + ". Try increasing max output tokens."
}
