package app

import (
	"context"
	"strings"
	"testing"

	"theduck/pkg/ai"
	"theduck/pkg/domain"
	"theduck/pkg/store"
)

// fakeChatClient returns a canned reply or error for every completion.
type fakeChatClient struct {
	reply string
	err   error

	calls        int
	lastMessages []ai.Message
	lastModel    string
}

func (f *fakeChatClient) Chat(_ context.Context, messages []ai.Message, model string, _ ai.Options) (string, error) {
	f.calls++
	f.lastMessages = messages
	f.lastModel = model
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChatClient) StreamChat(context.Context, []ai.Message, string, ai.Options) (*ai.Stream, error) {
	return nil, &ai.UpstreamError{Message: "streaming not supported in fake"}
}

func newTestApp(t *testing.T, llm ai.ChatClient) (*App, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	a, err := New(Config{
		Store:        st,
		ChatClient:   llm,
		DefaultModel: "meta-llama/llama-3.1-8b-instruct",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, st
}

func conversation() []domain.Message {
	return []domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "How do I plan a trip to Paris?"},
		{ID: "m2", Role: domain.RoleAssistant, Content: "Start with the dates and a budget."},
	}
}

func TestGenerateTitleAdoptsAITitle(t *testing.T) {
	llm := &fakeChatClient{reply: `"Paris Trip Planning"`}
	a, _ := newTestApp(t, llm)

	session, err := a.CreateSession("user-1", "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result := a.GenerateTitle(context.Background(), conversation(), session.ID, false, "user-1")
	if result.Method != TitleMethodAIGenerated {
		t.Fatalf("method = %q, want ai-generated", result.Method)
	}
	if result.Title != "Paris Trip Planning" {
		t.Fatalf("title = %q, want cleaned AI title", result.Title)
	}
	if !result.Updated {
		t.Fatalf("expected session title to be persisted")
	}

	stored, err := a.GetSession("user-1", session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if stored.Title != "Paris Trip Planning" {
		t.Fatalf("stored title = %q, want persisted AI title", stored.Title)
	}
}

func TestGenerateTitleExcludesWelcomeFromPrompt(t *testing.T) {
	llm := &fakeChatClient{reply: "Paris Trip Planning"}
	a, _ := newTestApp(t, llm)

	messages := append([]domain.Message{
		{ID: domain.WelcomeMessageID, Role: domain.RoleAssistant, Content: "Welcome!"},
	}, conversation()...)
	a.GenerateTitle(context.Background(), messages, "", false, "")

	for _, msg := range llm.lastMessages {
		if strings.Contains(msg.Content, "Welcome!") {
			t.Fatalf("welcome greeting leaked into the title prompt: %+v", llm.lastMessages)
		}
	}
}

func TestGenerateTitleFallsBackOnUpstreamError(t *testing.T) {
	llm := &fakeChatClient{err: &ai.UpstreamError{Status: 500, Message: "boom"}}
	a, _ := newTestApp(t, llm)

	result := a.GenerateTitle(context.Background(), conversation(), "", false, "")
	if result.Method != TitleMethodFallback {
		t.Fatalf("method = %q, want fallback", result.Method)
	}
	if result.Title != "How do I plan" {
		t.Fatalf("title = %q, want deterministic fallback", result.Title)
	}
}

func TestGenerateTitleRejectsDegenerateAITitle(t *testing.T) {
	llm := &fakeChatClient{reply: "!!"}
	a, _ := newTestApp(t, llm)

	result := a.GenerateTitle(context.Background(), conversation(), "", false, "")
	if result.Method != TitleMethodFallback {
		t.Fatalf("method = %q, want fallback for a too-short AI title", result.Method)
	}
}

func TestGenerateTitleTruncatesLongAITitle(t *testing.T) {
	llm := &fakeChatClient{reply: strings.Repeat("Paris ", 20)}
	a, _ := newTestApp(t, llm)

	result := a.GenerateTitle(context.Background(), conversation(), "", false, "")
	if result.Method != TitleMethodAIGenerated {
		t.Fatalf("method = %q, want ai-generated", result.Method)
	}
	if n := len([]rune(result.Title)); n != 40 {
		t.Fatalf("len(title) = %d, want 40 runes", n)
	}
	if !strings.HasSuffix(result.Title, "...") {
		t.Fatalf("title = %q, want ellipsis suffix", result.Title)
	}
}

func TestGenerateTitlePreservesStoredTitle(t *testing.T) {
	llm := &fakeChatClient{err: &ai.UpstreamError{Status: 503, Message: "down"}}
	a, _ := newTestApp(t, llm)

	session, err := a.CreateSession("user-1", "Paris Travel Plans", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result := a.GenerateTitle(context.Background(), conversation(), session.ID, true, "user-1")
	if result.Method != TitleMethodPreserved {
		t.Fatalf("method = %q, want preserved", result.Method)
	}
	if result.Title != "Paris Travel Plans" {
		t.Fatalf("title = %q, want stored title kept", result.Title)
	}
	if result.Updated {
		t.Fatalf("preserved result must not report a write")
	}
}

func TestGenerateTitleKeepsRealTitleOnPlaceholderFallback(t *testing.T) {
	a, _ := newTestApp(t, nil)

	session, err := a.CreateSession("user-1", "Paris Travel Plans", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Welcome-only input derives nothing; the stored title must survive
	// even without the preserve flag.
	messages := []domain.Message{
		{ID: domain.WelcomeMessageID, Role: domain.RoleAssistant, Content: "Welcome!"},
	}
	result := a.GenerateTitle(context.Background(), messages, session.ID, false, "user-1")
	if result.Method != TitleMethodPreserved {
		t.Fatalf("method = %q, want preserved", result.Method)
	}
	if result.Title != "Paris Travel Plans" {
		t.Fatalf("title = %q, want stored title kept", result.Title)
	}
	if result.Updated {
		t.Fatalf("placeholder fallback must not write")
	}

	stored, err := a.GetSession("user-1", session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if stored.Title != "Paris Travel Plans" {
		t.Fatalf("stored title = %q, real title was regressed", stored.Title)
	}
}

func TestGenerateTitleOverwritesPlaceholderDespitePreserve(t *testing.T) {
	llm := &fakeChatClient{err: &ai.UpstreamError{Status: 503, Message: "down"}}
	a, _ := newTestApp(t, llm)

	// Placeholder titles are never worth preserving.
	session, err := a.CreateSession("user-1", DefaultTitle, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result := a.GenerateTitle(context.Background(), conversation(), session.ID, true, "user-1")
	if result.Method != TitleMethodFallback {
		t.Fatalf("method = %q, want fallback", result.Method)
	}
	if !result.Updated {
		t.Fatalf("placeholder title should be replaced")
	}
	stored, err := a.GetSession("user-1", session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if stored.Title != "How do I plan" {
		t.Fatalf("stored title = %q, want fallback persisted", stored.Title)
	}
}

func TestGenerateTitleAnonymousSkipsPersistence(t *testing.T) {
	llm := &fakeChatClient{reply: "Paris Trip Planning"}
	a, _ := newTestApp(t, llm)

	session, err := a.CreateSession("user-1", "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	result := a.GenerateTitle(context.Background(), conversation(), session.ID, false, "")
	if result.Updated {
		t.Fatalf("anonymous caller must not persist")
	}
	stored, err := a.GetSession("user-1", session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if stored.Title != DefaultTitle {
		t.Fatalf("stored title = %q, must be untouched", stored.Title)
	}
}

func TestGenerateTitleUnknownSessionSkipsPersistence(t *testing.T) {
	llm := &fakeChatClient{reply: "Paris Trip Planning"}
	a, _ := newTestApp(t, llm)

	result := a.GenerateTitle(context.Background(), conversation(), "missing", false, "user-1")
	if result.Method != TitleMethodAIGenerated {
		t.Fatalf("method = %q, want ai-generated even without persistence", result.Method)
	}
	if result.Updated {
		t.Fatalf("missing session must not report a write")
	}
}

func TestCleanTitleStripsQuotesAndPunctuation(t *testing.T) {
	cases := map[string]string{
		"\"Quoted Title\"":        "Quoted Title",
		"`Backticked`":            "Backticked",
		"Title: with, symbols!?":  "Title with symbols",
		"  spaced   out   title ": "spaced out title",
		"Hyphen-ated Title":       "Hyphen-ated Title",
	}
	for raw, want := range cases {
		if got := cleanTitle(raw); got != want {
			t.Fatalf("cleanTitle(%q) = %q, want %q", raw, got, want)
		}
	}
}
