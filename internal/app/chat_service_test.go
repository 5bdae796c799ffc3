package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatrelay/internal/genproc"
	"chatrelay/internal/model"
)

type fakeTurnStore struct {
	created   []model.ChatTurn
	createErr error
	recent    []model.ChatTurn
	lastLimit int
	deleted   []string
}

func (s *fakeTurnStore) Create(turn *model.ChatTurn) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, *turn)
	return nil
}

func (s *fakeTurnStore) ListRecentByUsername(username string, limit int) ([]model.ChatTurn, error) {
	s.lastLimit = limit
	return s.recent, nil
}

func (s *fakeTurnStore) DeleteByUsername(username string) error {
	s.deleted = append(s.deleted, username)
	return nil
}

type fakeDocStore struct {
	latest    string
	hasLatest bool
	latestErr error
	created   []model.Document
	deleted   []string
}

func (s *fakeDocStore) Create(doc *model.Document) error {
	s.created = append(s.created, *doc)
	return nil
}

func (s *fakeDocStore) LatestContentByUsername(username string) (string, bool, error) {
	if s.latestErr != nil {
		return "", false, s.latestErr
	}
	return s.latest, s.hasLatest, nil
}

func (s *fakeDocStore) DeleteByUsername(username string) error {
	s.deleted = append(s.deleted, username)
	return nil
}

type fakePublisher struct {
	published  []model.ChatTurn
	publishErr error
}

func (p *fakePublisher) Publish(ctx context.Context, turn model.ChatTurn) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, turn)
	return nil
}

type fakeGenerator struct {
	chunks   []string
	startErr error
	waitErr  error
	prompt   string
	started  bool
}

func (g *fakeGenerator) Start(ctx context.Context) error {
	if g.startErr != nil {
		return g.startErr
	}
	g.started = true
	return nil
}

func (g *fakeGenerator) Feed(prompt string) error {
	g.prompt = prompt
	return nil
}

func (g *fakeGenerator) Chunks() <-chan string {
	ch := make(chan string, len(g.chunks))
	for _, chunk := range g.chunks {
		ch <- chunk
	}
	close(ch)
	return ch
}

func (g *fakeGenerator) Wait() error { return g.waitErr }

func (g *fakeGenerator) Accumulated() string { return strings.Join(g.chunks, "") }

type fakeFactory struct {
	gen   *fakeGenerator
	onNew func()
}

func (f *fakeFactory) New() genproc.Generator {
	if f.onNew != nil {
		f.onNew()
	}
	return f.gen
}

func newTestService(turns *fakeTurnStore, docs *fakeDocStore, pub *fakePublisher, factory *fakeFactory) *ChatService {
	return NewChatService(turns, docs, pub, nil, factory, 0, nil)
}

func TestStreamChat_InvalidInput(t *testing.T) {
	turns := &fakeTurnStore{}
	svc := newTestService(turns, &fakeDocStore{}, &fakePublisher{}, &fakeFactory{gen: &fakeGenerator{}})

	cases := []StreamChatInput{
		{Username: "", Message: "hi"},
		{Username: "alice", Message: ""},
		{Username: "   ", Message: "hi"},
		{Username: "alice", Message: "  \n "},
	}
	for _, input := range cases {
		if _, err := svc.StreamChat(context.Background(), input, discardChunks); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%+v: expected ErrInvalidInput, got %v", input, err)
		}
	}
	if len(turns.created) != 0 {
		t.Errorf("no turns should be recorded for invalid input, got %d", len(turns.created))
	}
}

func TestStreamChat_UserTurnRecordedBeforeGeneration(t *testing.T) {
	turns := &fakeTurnStore{}
	var turnsAtSpawn int
	factory := &fakeFactory{
		gen:   &fakeGenerator{chunks: []string{"ok\n"}},
		onNew: func() { turnsAtSpawn = len(turns.created) },
	}
	svc := newTestService(turns, &fakeDocStore{}, &fakePublisher{}, factory)

	if _, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "What is 2+2?"}, discardChunks); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if turnsAtSpawn != 1 {
		t.Errorf("user turn must be recorded before generation, had %d at spawn", turnsAtSpawn)
	}
	got := turns.created[0]
	if got.Username != "carol" || got.Role != model.RoleUser || got.Message != "What is 2+2?" {
		t.Errorf("unexpected user turn: %+v", got)
	}
}

func TestStreamChat_ForwardedChunksMatchAccumulatedReply(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"The answer ", "is 4.", "\n"}}
	pub := &fakePublisher{}
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, pub, &fakeFactory{gen: gen})

	var forwarded []string
	full, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "What is 2+2?"}, func(chunk string) error {
		forwarded = append(forwarded, chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	joined := strings.Join(forwarded, "")
	if joined != gen.Accumulated() {
		t.Errorf("forwarded %q, accumulated %q", joined, gen.Accumulated())
	}
	if full != strings.TrimSpace(joined) {
		t.Errorf("returned reply %q does not match trimmed stream %q", full, joined)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected exactly one bot turn, got %d", len(pub.published))
	}
	bot := pub.published[0]
	if bot.Role != model.RoleBot || bot.Username != "carol" || bot.Message != "The answer is 4." {
		t.Errorf("unexpected bot turn: %+v", bot)
	}
}

func TestStreamChat_EmptyReplyNotPersisted(t *testing.T) {
	pub := &fakePublisher{}
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, pub, &fakeFactory{gen: &fakeGenerator{chunks: []string{"  \n", "\t\n"}}})

	full, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, discardChunks)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if full != "" {
		t.Errorf("expected empty reply, got %q", full)
	}
	if len(pub.published) != 0 {
		t.Errorf("whitespace-only reply must not be persisted, got %d turns", len(pub.published))
	}
}

func TestStreamChat_SpawnErrorBeforeStreaming(t *testing.T) {
	turns := &fakeTurnStore{}
	pub := &fakePublisher{}
	svc := newTestService(turns, &fakeDocStore{}, pub, &fakeFactory{gen: &fakeGenerator{startErr: errors.New("executable missing")}})

	chunksSeen := 0
	_, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, func(string) error {
		chunksSeen++
		return nil
	})
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if chunksSeen != 0 {
		t.Errorf("no chunks must be forwarded on spawn failure, got %d", chunksSeen)
	}
	if len(pub.published) != 0 {
		t.Errorf("no bot turn on spawn failure, got %d", len(pub.published))
	}
	// The user turn was already durable by the time the spawn failed.
	if len(turns.created) != 1 {
		t.Errorf("expected the user turn to remain recorded, got %d", len(turns.created))
	}
}

func TestStreamChat_ClientDisconnectStillDrainsAndPersists(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"part one\n", "part two\n", "part three\n"}}
	pub := &fakePublisher{}
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, pub, &fakeFactory{gen: gen})

	calls := 0
	full, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, func(string) error {
		calls++
		if calls >= 2 {
			return errors.New("broken pipe")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("disconnect must not surface as an error: %v", err)
	}
	if calls != 2 {
		t.Errorf("forwarding should stop after the failed write, got %d calls", calls)
	}
	if full != "part one\npart two\npart three" {
		t.Errorf("accumulated reply must include drained chunks, got %q", full)
	}
	if len(pub.published) != 1 || pub.published[0].Message != full {
		t.Errorf("accumulated reply must still be persisted, got %+v", pub.published)
	}
}

func TestStreamChat_PromptEmbedsLatestDocument(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok\n"}}
	docs := &fakeDocStore{latest: "contract text", hasLatest: true}
	svc := newTestService(&fakeTurnStore{}, docs, &fakePublisher{}, &fakeFactory{gen: gen})

	if _, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "Summarize it"}, discardChunks); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	want := composePrompt("Summarize it", "contract text")
	if gen.prompt != want {
		t.Errorf("prompt mismatch:\n got: %q\nwant: %q", gen.prompt, want)
	}
}

func TestStreamChat_PromptWithoutDocument(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok\n"}}
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, &fakePublisher{}, &fakeFactory{gen: gen})

	if _, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "What is 2+2?"}, discardChunks); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if gen.prompt != composePrompt("What is 2+2?", "") {
		t.Errorf("prompt should have an empty file-content section, got %q", gen.prompt)
	}
	if !strings.Contains(gen.prompt, "What is 2+2?") {
		t.Errorf("prompt must contain the literal question, got %q", gen.prompt)
	}
}

func TestStreamChat_DocumentLookupFailureDegrades(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"ok\n"}}
	docs := &fakeDocStore{latestErr: errors.New("db down")}
	svc := newTestService(&fakeTurnStore{}, docs, &fakePublisher{}, &fakeFactory{gen: gen})

	if _, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, discardChunks); err != nil {
		t.Fatalf("document lookup failure must not fail the request: %v", err)
	}
	if gen.prompt != composePrompt("hi", "") {
		t.Errorf("expected empty context on lookup failure, got %q", gen.prompt)
	}
}

func TestStreamChat_PersistenceFailureDoesNotFailRequest(t *testing.T) {
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, &fakePublisher{publishErr: errors.New("broker down")}, &fakeFactory{gen: &fakeGenerator{chunks: []string{"reply\n"}}})

	full, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, discardChunks)
	if err != nil {
		t.Fatalf("persistence failure must be silent to the caller: %v", err)
	}
	if full != "reply" {
		t.Errorf("unexpected reply: %q", full)
	}
}

func TestStreamChat_ProcessExitErrorKeepsPartialReply(t *testing.T) {
	gen := &fakeGenerator{chunks: []string{"partial\n"}, waitErr: errors.New("exit status 1")}
	pub := &fakePublisher{}
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, pub, &fakeFactory{gen: gen})

	full, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, discardChunks)
	if err != nil {
		t.Fatalf("non-zero exit must not discard streamed output: %v", err)
	}
	if full != "partial" {
		t.Errorf("unexpected reply: %q", full)
	}
	if len(pub.published) != 1 {
		t.Errorf("partial reply should still be persisted, got %d turns", len(pub.published))
	}
}

func TestStreamChat_UserTurnWriteFailureAborts(t *testing.T) {
	turns := &fakeTurnStore{createErr: errors.New("db down")}
	spawned := false
	svc := newTestService(turns, &fakeDocStore{}, &fakePublisher{}, &fakeFactory{
		gen:   &fakeGenerator{},
		onNew: func() { spawned = true },
	})

	if _, err := svc.StreamChat(context.Background(), StreamChatInput{Username: "carol", Message: "hi"}, discardChunks); err == nil {
		t.Fatal("expected error when the user turn cannot be recorded")
	}
	if spawned {
		t.Error("generation must not start when the user turn is not durable")
	}
}

func TestGetHistory_EmptyUsername(t *testing.T) {
	svc := newTestService(&fakeTurnStore{}, &fakeDocStore{}, &fakePublisher{}, &fakeFactory{gen: &fakeGenerator{}})

	turns, err := svc.GetHistory(context.Background(), " ")
	if err != nil {
		t.Fatalf("get history failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty history, got %d", len(turns))
	}
}

func TestGetHistory_UsesFiftyTurnLimit(t *testing.T) {
	turns := &fakeTurnStore{recent: []model.ChatTurn{{Username: "bob", Role: model.RoleUser, Message: "hi"}}}
	svc := newTestService(turns, &fakeDocStore{}, &fakePublisher{}, &fakeFactory{gen: &fakeGenerator{}})

	got, err := svc.GetHistory(context.Background(), "bob")
	if err != nil {
		t.Fatalf("get history failed: %v", err)
	}
	if turns.lastLimit != 50 {
		t.Errorf("expected limit 50, got %d", turns.lastLimit)
	}
	if len(got) != 1 || got[0].Message != "hi" {
		t.Errorf("unexpected history: %+v", got)
	}
}

func TestClearHistory(t *testing.T) {
	turns := &fakeTurnStore{}
	docs := &fakeDocStore{}
	svc := newTestService(turns, docs, &fakePublisher{}, &fakeFactory{gen: &fakeGenerator{}})

	if err := svc.ClearHistory(context.Background(), "alice"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(turns.deleted) != 1 || turns.deleted[0] != "alice" {
		t.Errorf("turns not cleared for alice: %v", turns.deleted)
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != "alice" {
		t.Errorf("documents not cleared for alice: %v", docs.deleted)
	}

	if err := svc.ClearHistory(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank username, got %v", err)
	}
}

func discardChunks(string) error { return nil }
