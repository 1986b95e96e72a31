package agent

// OutcomeKind classifies how a turn ended.
type OutcomeKind string

const (
	// OutcomeReprompt asks the caller to repeat; nothing was recorded.
	OutcomeReprompt OutcomeKind = "reprompt"
	// OutcomeContinue speaks the reply and listens again.
	OutcomeContinue OutcomeKind = "continue"
	// OutcomeEnd speaks the reply and ends the conversation.
	OutcomeEnd OutcomeKind = "end"
	// OutcomeError speaks an apology. Voice calls hang up, SMS threads stay open.
	OutcomeError OutcomeKind = "error"
)

// Fixed lines spoken without consulting the model.
const (
	RepromptText  = "I didn't catch that. Could you repeat that?"
	FallbackReply = "I'm here and ready to help. What would you like to do next?"
	ApologyText   = "I'm sorry, I'm having trouble on my end right now. Please try again in a few minutes."
)

// Outcome is the result of one turn, ready to be rendered for its channel.
type Outcome struct {
	Kind OutcomeKind
	Text string
	// Err is set for reprompt and error outcomes.
	Err error
	// ToolResults lists the invocations executed during the turn.
	ToolResults []ToolResultSummary
}

// ToolResultSummary is a loggable view of one executed invocation.
type ToolResultSummary struct {
	InvocationID string
	ToolName     string
	Failed       bool
}

// Terminal reports whether the conversation is over after this outcome on a
// voice call.
func (o Outcome) Terminal() bool {
	return o.Kind == OutcomeEnd || o.Kind == OutcomeError
}
