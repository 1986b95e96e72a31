package twilio

// Call statuses reported by status callbacks.
const (
	CallQueued     = "queued"
	CallRinging    = "ringing"
	CallInProgress = "in-progress"
	CallCompleted  = "completed"
	CallBusy       = "busy"
	CallFailed     = "failed"
	CallNoAnswer   = "no-answer"
	CallCanceled   = "canceled"
)

// IsTerminalCallStatus reports whether the call is over.
func IsTerminalCallStatus(status string) bool {
	switch status {
	case CallCompleted, CallBusy, CallFailed, CallNoAnswer, CallCanceled:
		return true
	default:
		return false
	}
}
