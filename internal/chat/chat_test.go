package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/deadbot/internal/completion"
	"github.com/ent0n29/deadbot/internal/embedding/hashing"
	"github.com/ent0n29/deadbot/internal/knowledge"
	"github.com/ent0n29/deadbot/internal/session"
)

type recordingSearcher struct {
	mu    sync.Mutex
	ks    []int
	docs  []knowledge.RetrievedDocument
	calls int
}

func (s *recordingSearcher) Search(_ context.Context, _ string, k int) []knowledge.RetrievedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.ks = append(s.ks, k)
	if len(s.docs) > k {
		return s.docs[:k]
	}
	return s.docs
}

type recordingComposer struct {
	mu        sync.Mutex
	histories [][]session.Turn
	docCounts []int
	reply     string
	onCompose func()
}

func (c *recordingComposer) Compose(_ context.Context, query string, docs []knowledge.RetrievedDocument, history []session.Turn) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histories = append(c.histories, append([]session.Turn(nil), history...))
	c.docCounts = append(c.docCounts, len(docs))
	if c.onCompose != nil {
		c.onCompose()
	}
	if c.reply != "" {
		return c.reply
	}
	return "reply to " + query
}

type scriptedProvider struct {
	reply string
	err   error
	last  completion.Request
}

func (p *scriptedProvider) Complete(_ context.Context, req completion.Request) (string, error) {
	p.last = req
	return p.reply, p.err
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}
func (failingEmbedder) Dimensions() int  { return 8 }
func (failingEmbedder) ModelID() string { return "down" }

type stageRecorder struct {
	mu     sync.Mutex
	stages map[string]int
	errs   []string
}

func (r *stageRecorder) ObserveStage(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages == nil {
		r.stages = map[string]int{}
	}
	r.stages[stage]++
}

func (r *stageRecorder) ObserveProviderError(provider, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, provider+":"+code)
}

func manyDocs(n int) []knowledge.RetrievedDocument {
	out := make([]knowledge.RetrievedDocument, n)
	for i := range out {
		out[i] = knowledge.RetrievedDocument{ID: string(rune('a' + i)), Text: "doc"}
	}
	return out
}

func TestRespondFirstTurn(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	searcher := &recordingSearcher{docs: manyDocs(8)}
	composer := &recordingComposer{}
	o := NewOrchestrator(sessions, searcher, composer, 0, nil, nil)

	reply, err := o.Respond(context.Background(), "s1", "Who played guitar?")
	require.NoError(t, err)

	assert.Equal(t, []int{5}, searcher.ks)
	require.Len(t, composer.histories, 1)
	assert.Empty(t, composer.histories[0])
	assert.LessOrEqual(t, composer.docCounts[0], 5)
	assert.NotEmpty(t, reply.Text)
	assert.Equal(t, 2, reply.ConversationLength)

	s, ok := sessions.Get("s1")
	require.True(t, ok)
	require.Len(t, s.Turns, 2)
	assert.Equal(t, session.RoleUser, s.Turns[0].Role)
	assert.Equal(t, "Who played guitar?", s.Turns[0].Content)
	assert.Equal(t, session.RoleAssistant, s.Turns[1].Role)
	assert.Equal(t, reply.Text, s.Turns[1].Content)
}

func TestRespondSecondTurnSeesFirstExchange(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	composer := &recordingComposer{}
	o := NewOrchestrator(sessions, &recordingSearcher{}, composer, 5, nil, nil)

	_, err := o.Respond(context.Background(), "s1", "Who played guitar?")
	require.NoError(t, err)
	reply, err := o.Respond(context.Background(), "s1", "What guitars did he play?")
	require.NoError(t, err)

	require.Len(t, composer.histories, 2)
	second := composer.histories[1]
	require.Len(t, second, 2)
	assert.Equal(t, "Who played guitar?", second[0].Content)
	assert.Equal(t, "reply to Who played guitar?", second[1].Content)
	assert.Equal(t, 4, reply.ConversationLength)
}

func TestRespondBlankMessageLeavesMemoryUntouched(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	searcher := &recordingSearcher{}
	composer := &recordingComposer{}
	o := NewOrchestrator(sessions, searcher, composer, 5, nil, nil)

	for _, msg := range []string{"", "   ", "\n\t"} {
		reply, err := o.Respond(context.Background(), "s1", msg)
		require.NoError(t, err)
		assert.Equal(t, PromptForInput, reply.Text)
		assert.True(t, reply.Prompted)
	}

	_, ok := sessions.Get("s1")
	assert.False(t, ok)
	assert.Zero(t, searcher.calls)
	assert.Empty(t, composer.histories)
}

func TestRespondWithRetrievalFailureStillReplies(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	retriever := knowledge.NewRetriever(failingEmbedder{}, knowledge.NewMemoryStore(8), nil, nil)
	composer := NewComposer(completion.NewMockProvider(), DefaultComposerOptions(), nil, nil)
	o := NewOrchestrator(sessions, retriever, composer, 5, nil, nil)

	reply, err := o.Respond(context.Background(), "s1", "Who played guitar?")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(reply.Text))
	assert.Equal(t, 2, reply.ConversationLength)
}

func TestRespondWithGenerationFailureRecordsApology(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	rec := &stageRecorder{}
	composer := NewComposer(&scriptedProvider{err: errors.New("connection refused")}, DefaultComposerOptions(), nil, rec)
	o := NewOrchestrator(sessions, &recordingSearcher{}, composer, 5, nil, rec)

	reply, err := o.Respond(context.Background(), "s1", "Who played guitar?")
	require.NoError(t, err)
	assert.Equal(t, ApologyPrefix+"connection refused", reply.Text)
	assert.Equal(t, 2, reply.ConversationLength)
	assert.Equal(t, []string{"completion:error"}, rec.errs)
	assert.Equal(t, 1, rec.stages["generation"])
	assert.Equal(t, 1, rec.stages["turn_total"])
}

func TestRespondCancelledBeforeAppendRecordsNothing(t *testing.T) {
	sessions := session.NewManager(session.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	composer := &recordingComposer{onCompose: cancel}
	o := NewOrchestrator(sessions, &recordingSearcher{}, composer, 5, nil, nil)

	_, err := o.Respond(ctx, "s1", "Who played guitar?")
	assert.ErrorIs(t, err, context.Canceled)

	s, ok := sessions.Get("s1")
	require.True(t, ok)
	assert.Empty(t, s.Turns)
}

func TestRespondEndToEndWithSeededKnowledge(t *testing.T) {
	embedder := hashing.New(128)
	store := knowledge.NewMemoryStore(embedder.Dimensions())
	_, err := knowledge.NewIngestor(embedder, store, nil).Ingest(context.Background(), knowledge.SeedDocuments())
	require.NoError(t, err)

	provider := &scriptedProvider{reply: "Jerry Garcia, man."}
	composer := NewComposer(provider, DefaultComposerOptions(), nil, nil)
	o := NewOrchestrator(session.NewManager(session.Options{}), knowledge.NewRetriever(embedder, store, nil, nil), composer, 5, nil, nil)

	reply, err := o.Respond(context.Background(), "s1", "Who was the lead guitarist Jerry Garcia?")
	require.NoError(t, err)
	assert.Equal(t, "Jerry Garcia, man.", reply.Text)

	system := provider.last.Messages[0].Content
	assert.True(t, strings.HasPrefix(system, DefaultPersona))
	assert.Contains(t, system, "Jerry Garcia was the lead guitarist")
}

func TestComposerBuildRequestWindows(t *testing.T) {
	c := NewComposer(&scriptedProvider{}, DefaultComposerOptions(), nil, nil)

	var history []session.Turn
	for i := 0; i < 8; i++ {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		history = append(history, session.Turn{Role: role, Content: "t" + string(rune('0'+i))})
	}
	docs := []knowledge.RetrievedDocument{{Text: "first doc"}, {Text: "second doc"}}

	req := c.BuildRequest("the question", docs, history)

	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	require.Len(t, req.Messages, 1+DefaultReplayTurns+1)

	system := req.Messages[0]
	assert.Equal(t, completion.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "Context information:\nfirst doc\n\nsecond doc")
	assert.Contains(t, system.Content, "\n\nRecent conversation:\nHuman: t2\nAssistant: t3\nHuman: t4\nAssistant: t5\nHuman: t6\nAssistant: t7\n")
	assert.NotContains(t, system.Content, "t1\n")

	replay := req.Messages[1:5]
	assert.Equal(t, completion.Message{Role: completion.RoleUser, Content: "t4"}, replay[0])
	assert.Equal(t, completion.Message{Role: completion.RoleAssistant, Content: "t5"}, replay[1])
	assert.Equal(t, completion.Message{Role: completion.RoleAssistant, Content: "t7"}, replay[3])

	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, completion.Message{Role: completion.RoleUser, Content: "the question"}, last)
}

func TestComposerWithoutHistoryOmitsExcerpt(t *testing.T) {
	c := NewComposer(&scriptedProvider{}, DefaultComposerOptions(), nil, nil)
	req := c.BuildRequest("q", nil, nil)

	require.Len(t, req.Messages, 2)
	assert.NotContains(t, req.Messages[0].Content, "Recent conversation")
	assert.True(t, strings.HasSuffix(req.Messages[0].Content, "Context information:\n"))
}

func TestComposerEmptyReplyBecomesApology(t *testing.T) {
	c := NewComposer(&scriptedProvider{reply: "  "}, DefaultComposerOptions(), nil, nil)
	out := c.Compose(context.Background(), "q", nil, nil)
	assert.True(t, strings.HasPrefix(out, ApologyPrefix))
}

func TestComposerCircuitOpenCode(t *testing.T) {
	rec := &stageRecorder{}
	c := NewComposer(&scriptedProvider{err: completion.ErrCircuitOpen}, DefaultComposerOptions(), nil, rec)
	out := c.Compose(context.Background(), "q", nil, nil)
	assert.Equal(t, ApologyPrefix+completion.ErrCircuitOpen.Error(), out)
	assert.Equal(t, []string{"completion:circuit_open"}, rec.errs)
}

func TestLoadPersona(t *testing.T) {
	p, err := LoadPersona("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPersona, p)

	dir := t.TempDir()
	path := filepath.Join(dir, "persona.txt")
	require.NoError(t, os.WriteFile(path, []byte("\nYou are a taper.\n"), 0o644))
	p, err = LoadPersona(path)
	require.NoError(t, err)
	assert.Equal(t, "You are a taper.", p)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = LoadPersona(empty)
	assert.Error(t, err)

	_, err = LoadPersona(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
