package exitcode

// Exit codes for gemchat commands
const (
	Success     = 0
	Error       = 1
	ReplyFailed = 2   // the model reply ended in an error entry
	Cancelled   = 130 // 128 + SIGINT
)

// ExitError is an error that carries a specific exit code
type ExitError struct {
	Code    int
	Message string
}

func (e ExitError) Error() string {
	return e.Message
}

// Convenience constructors
func Failed(msg string) ExitError { return ExitError{Code: ReplyFailed, Message: msg} }
func Cancel() ExitError           { return ExitError{Code: Cancelled, Message: "cancelled"} }
