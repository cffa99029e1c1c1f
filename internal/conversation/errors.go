package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/samsaffron/gemchat/internal/llm"
)

// ErrBusy is returned by Send while another exchange is in flight.
var ErrBusy = errors.New("a response is already streaming")

// ValidationError rejects input before any state is touched.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

const (
	genericFailureMessage = "I'm sorry, I encountered an error while processing your request. Please try again."
	cancelledMessage      = "Response cancelled."
)

// FailureMessage converts a remote error into the text shown in place of a reply.
func FailureMessage(err error, credentialEnv []string) string {
	if errors.Is(err, llm.ErrMissingCredential) {
		return missingCredentialMessage(credentialEnv)
	}
	return genericFailureMessage
}

func missingCredentialMessage(envVars []string) string {
	switch len(envVars) {
	case 0:
		return "Configuration Error: API key is missing. Add api_key for the provider to your gemchat config and restart."
	case 1:
		return "Configuration Error: API key is missing. Set " + envVars[0] + " in your environment (or api_key in your gemchat config) and restart."
	default:
		return "Configuration Error: API key is missing. Set " + envVars[0] + " (or one of " +
			strings.Join(envVars[1:], ", ") + ") in your environment and restart."
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
