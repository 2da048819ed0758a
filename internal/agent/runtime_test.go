package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reengage-cli/internal/cost"
	"github.com/sells-group/reengage-cli/pkg/openai"
)

func fastRuntime(c openai.Client, opts ...RuntimeOption) *Runtime {
	return NewRuntime(c, append([]RuntimeOption{WithPollInterval(time.Millisecond), WithMaxPollAttempts(5)}, opts...)...)
}

func TestAsk_Completed(t *testing.T) {
	fake := &fakeAssistants{
		statuses: []*openai.RunStatus{status(openai.RunQueued), status(openai.RunInProgress), status(openai.RunCompleted)},
		messages: []openai.Message{assistantMsg("newest"), {Role: openai.RoleUser}, assistantMsg("older")},
		usage:    &openai.Usage{PromptTokens: 100, CompletionTokens: 20},
	}
	var observed int
	rt := fastRuntime(fake, WithPollObserver(func(n int) { observed = n }))

	reply, err := rt.Ask(context.Background(), "asst_1", "olá")
	require.NoError(t, err)
	assert.Equal(t, "newest", reply.Text)
	assert.Equal(t, cost.ProviderOpenAI, reply.Usage.Provider)
	assert.Equal(t, "gpt-4o", reply.Usage.Model)
	assert.Equal(t, 100, reply.Usage.InputTokens)
	assert.Equal(t, 20, reply.Usage.OutputTokens)
	assert.Equal(t, "asst_1", fake.assistant)
	assert.Equal(t, []string{"olá"}, fake.posted)
	assert.Equal(t, 3, observed)
}

func TestPoll_TerminalFailures(t *testing.T) {
	for _, s := range []openai.RunStatus{openai.RunFailed, openai.RunCancelled, openai.RunExpired, openai.RunIncomplete} {
		t.Run(string(s), func(t *testing.T) {
			fake := &fakeAssistants{statuses: []*openai.RunStatus{status(openai.RunInProgress), status(s)}}

			_, err := fastRuntime(fake).Ask(context.Background(), "asst_1", "x")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrRunFailed))
			assert.Equal(t, 2, fake.getRuns)
		})
	}
}

func TestPoll_Timeout(t *testing.T) {
	fake := &fakeAssistants{}
	var observed int
	rt := fastRuntime(fake, WithPollObserver(func(n int) { observed = n }))

	_, err := rt.Ask(context.Background(), "asst_1", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunTimeout))
	assert.Equal(t, 5, fake.getRuns)
	assert.Equal(t, 5, observed)
}

func TestPoll_TransportErrorCountsAsAttempt(t *testing.T) {
	fake := &fakeAssistants{
		statuses: []*openai.RunStatus{nil, nil, status(openai.RunCompleted)},
		messages: []openai.Message{assistantMsg("ok")},
	}

	reply, err := fastRuntime(fake).Ask(context.Background(), "a", "x")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, 3, fake.getRuns)

	fake = &fakeAssistants{statuses: []*openai.RunStatus{nil, nil, nil, nil, nil, status(openai.RunCompleted)}}
	_, err = fastRuntime(fake).Ask(context.Background(), "a", "x")
	assert.True(t, errors.Is(err, ErrRunTimeout))
	assert.Equal(t, 5, fake.getRuns)
}

func TestPoll_NoAssistantReply(t *testing.T) {
	fake := &fakeAssistants{
		statuses: []*openai.RunStatus{status(openai.RunCompleted)},
		messages: []openai.Message{{Role: openai.RoleUser}},
	}

	_, err := fastRuntime(fake).Ask(context.Background(), "a", "x")
	assert.True(t, errors.Is(err, ErrNoReply))
}

func TestPoll_ContextCancelled(t *testing.T) {
	fake := &fakeAssistants{}
	rt := NewRuntime(fake, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.PollUntilTerminal(ctx, "thread_1", "run_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, fake.getRuns)
}

func TestAsk_CreateThreadError(t *testing.T) {
	fake := &fakeAssistants{threadErr: errors.New("openai: HTTP 401")}

	_, err := fastRuntime(fake).Ask(context.Background(), "a", "x")
	require.Error(t, err)
	assert.Empty(t, fake.posted)
}

func TestNewRuntime_Defaults(t *testing.T) {
	rt := NewRuntime(&fakeAssistants{}, WithPollInterval(0), WithMaxPollAttempts(-1))
	assert.Equal(t, defaultPollInterval, rt.interval)
	assert.Equal(t, defaultMaxPollAttempts, rt.maxAttempts)
}
