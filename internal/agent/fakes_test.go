package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/sells-group/reengage-cli/pkg/gemini"
	"github.com/sells-group/reengage-cli/pkg/openai"
)

// fakeAssistants scripts the Assistants API. Each GetRun call consumes one
// entry of statuses; a nil status entry simulates a transport error.
type fakeAssistants struct {
	mu        sync.Mutex
	statuses  []*openai.RunStatus
	messages  []openai.Message
	usage     *openai.Usage
	getRuns   int
	posted    []string
	assistant string
	threadErr error
}

func status(s openai.RunStatus) *openai.RunStatus { return &s }

func (f *fakeAssistants) CreateThread(context.Context) (*openai.Thread, error) {
	if f.threadErr != nil {
		return nil, f.threadErr
	}
	return &openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeAssistants) AddMessage(_ context.Context, _, _, content string) (*openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, content)
	return &openai.Message{ID: "msg_user"}, nil
}

func (f *fakeAssistants) CreateRun(_ context.Context, _, assistantID string) (*openai.Run, error) {
	f.assistant = assistantID
	return &openai.Run{ID: "run_1", Status: openai.RunQueued}, nil
}

func (f *fakeAssistants) GetRun(context.Context, string, string) (*openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.getRuns
	f.getRuns++
	if i >= len(f.statuses) {
		return &openai.Run{ID: "run_1", Status: openai.RunInProgress}, nil
	}
	if f.statuses[i] == nil {
		return nil, errors.New("connection reset by peer")
	}
	return &openai.Run{ID: "run_1", Status: *f.statuses[i], Model: "gpt-4o", Usage: f.usage}, nil
}

func (f *fakeAssistants) ListMessages(context.Context, string, openai.ListMessagesParams) ([]openai.Message, error) {
	return f.messages, nil
}

func assistantMsg(text string) openai.Message {
	return openai.Message{Role: openai.RoleAssistant, Content: []openai.ContentPart{{Type: "text", Text: &openai.TextContent{Value: text}}}}
}

// fakeAsker returns a canned reply and records the prompt.
type fakeAsker struct {
	reply   *Reply
	err     error
	calls   int
	agentID string
	text    string
}

func (f *fakeAsker) Ask(_ context.Context, agentID, text string) (*Reply, error) {
	f.calls++
	f.agentID = agentID
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

// fakeGemini returns a canned response and records the request.
type fakeGemini struct {
	resp  *gemini.Response
	err   error
	calls int
	req   gemini.Request
}

func (f *fakeGemini) Generate(_ context.Context, req gemini.Request) (*gemini.Response, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}
