package openai

// RunStatus is the lifecycle state of an assistant run.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Failed reports whether the run ended without a usable reply.
func (s RunStatus) Failed() bool {
	switch s {
	case RunFailed, RunCancelled, RunExpired, RunIncomplete:
		return true
	}
	return false
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Thread is a conversation container.
type Thread struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
}

// Run is one execution of an assistant on a thread.
type Run struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      RunStatus `json:"status"`
	Model       string    `json:"model"`
	Usage       *Usage    `json:"usage"`
	LastError   *RunError `json:"last_error"`
}

// Usage reports run token consumption. It is null until the run finishes.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RunError describes why a run failed.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Message is a thread message.
type Message struct {
	ID        string        `json:"id"`
	ThreadID  string        `json:"thread_id"`
	RunID     string        `json:"run_id"`
	Role      string        `json:"role"`
	CreatedAt int64         `json:"created_at"`
	Content   []ContentPart `json:"content"`
}

// Text returns the value of the first text part, or "".
func (m Message) Text() string {
	for _, p := range m.Content {
		if p.Type == "text" && p.Text != nil {
			return p.Text.Value
		}
	}
	return ""
}

// ContentPart is one element of a message's content array.
type ContentPart struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

// TextContent holds a text part's value.
type TextContent struct {
	Value string `json:"value"`
}

// ListMessagesParams filters ListMessages.
type ListMessagesParams struct {
	Order string
	Limit int
	RunID string
}

type messageList struct {
	Data    []Message `json:"data"`
	HasMore bool      `json:"has_more"`
}
