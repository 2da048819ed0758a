// Package agent runs the analyst, researcher, and writer LLM agents.
package agent

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/cost"
	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/pkg/openai"
)

// Sentinel errors returned by the agents.
var (
	ErrRunFailed       = eris.New("agent: run ended without completing")
	ErrRunTimeout      = eris.New("agent: run did not finish within the poll budget")
	ErrNoReply         = eris.New("agent: run completed without an assistant reply")
	ErrInvalidResearch = eris.New("agent: research response is not a valid insights document")
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultMaxPollAttempts = 30
)

// Reply is the assistant's answer to one message.
type Reply struct {
	Text  string
	Usage model.TokenUsage
}

// Asker sends one message to an assistant and waits for its reply.
type Asker interface {
	Ask(ctx context.Context, agentID, text string) (*Reply, error)
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithPollInterval sets the wait between run status checks.
func WithPollInterval(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMaxPollAttempts bounds the number of status checks per run.
func WithMaxPollAttempts(n int) RuntimeOption {
	return func(r *Runtime) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithPollObserver is called with the number of status checks each run took.
func WithPollObserver(fn func(attempts int)) RuntimeOption {
	return func(r *Runtime) {
		r.observe = fn
	}
}

// Runtime drives an assistant run on a fresh thread.
type Runtime struct {
	client      openai.Client
	interval    time.Duration
	maxAttempts int
	observe     func(attempts int)
}

// NewRuntime creates a Runtime over an Assistants client.
func NewRuntime(client openai.Client, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		client:      client,
		interval:    defaultPollInterval,
		maxAttempts: defaultMaxPollAttempts,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CreateConversation opens a new thread.
func (r *Runtime) CreateConversation(ctx context.Context) (string, error) {
	th, err := r.client.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	if th.ID == "" {
		return "", eris.New("agent: thread created without id")
	}
	return th.ID, nil
}

// PostMessage adds a user message to the thread.
func (r *Runtime) PostMessage(ctx context.Context, conv, text string) error {
	_, err := r.client.AddMessage(ctx, conv, openai.RoleUser, text)
	return err
}

// StartRun starts agentID on the thread and returns the run id.
func (r *Runtime) StartRun(ctx context.Context, conv, agentID string) (string, error) {
	run, err := r.client.CreateRun(ctx, conv, agentID)
	if err != nil {
		return "", err
	}
	if run.ID == "" {
		return "", eris.New("agent: run created without id")
	}
	return run.ID, nil
}

// PollUntilTerminal checks the run every poll interval until it completes,
// fails, or the attempt budget runs out. A failed status check counts as an
// attempt.
func (r *Runtime) PollUntilTerminal(ctx context.Context, conv, runID string) (*Reply, error) {
	log := zap.L().With(zap.String("thread_id", conv), zap.String("run_id", runID))

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := sleep(ctx, r.interval); err != nil {
			return nil, eris.Wrap(err, "agent: poll cancelled")
		}

		run, err := r.client.GetRun(ctx, conv, runID)
		if err != nil {
			log.Warn("agent: run status check failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		switch {
		case run.Status == openai.RunCompleted:
			r.observed(attempt)
			return r.reply(ctx, conv, run)
		case run.Status.Failed():
			r.observed(attempt)
			msg := ""
			if run.LastError != nil {
				msg = run.LastError.Message
			}
			log.Warn("agent: run failed", zap.String("status", string(run.Status)), zap.String("last_error", msg))
			return nil, eris.Wrapf(ErrRunFailed, "agent: run %s is %s", runID, run.Status)
		}
	}

	r.observed(r.maxAttempts)
	return nil, eris.Wrapf(ErrRunTimeout, "agent: run %s after %d attempts", runID, r.maxAttempts)
}

// Ask runs agentID on text in a new thread and returns the reply.
func (r *Runtime) Ask(ctx context.Context, agentID, text string) (*Reply, error) {
	conv, err := r.CreateConversation(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.PostMessage(ctx, conv, text); err != nil {
		return nil, err
	}
	runID, err := r.StartRun(ctx, conv, agentID)
	if err != nil {
		return nil, err
	}
	return r.PollUntilTerminal(ctx, conv, runID)
}

func (r *Runtime) reply(ctx context.Context, conv string, run *openai.Run) (*Reply, error) {
	msgs, err := r.client.ListMessages(ctx, conv, openai.ListMessagesParams{Order: "desc", Limit: 20})
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		if m.Role != openai.RoleAssistant {
			continue
		}
		text := m.Text()
		if text == "" {
			break
		}
		out := &Reply{Text: text, Usage: model.TokenUsage{Provider: cost.ProviderOpenAI, Model: run.Model}}
		if run.Usage != nil {
			out.Usage.InputTokens = run.Usage.PromptTokens
			out.Usage.OutputTokens = run.Usage.CompletionTokens
		}
		return out, nil
	}
	return nil, eris.Wrapf(ErrNoReply, "agent: thread %s", conv)
}

func (r *Runtime) observed(attempts int) {
	if r.observe != nil {
		r.observe(attempts)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
