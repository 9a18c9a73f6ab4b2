package app

import (
	"context"
	"testing"

	"theduck/pkg/ai"
	"theduck/pkg/domain"
)

const summaryJSON = `{
	"summary": "User planned a trip to Paris with budgeting help.",
	"keyTopics": ["travel", "budgeting"],
	"userPreferences": {
		"explicit": {"tone": "casual"},
		"implicit": {"writingStyle": {"formality": 0.2, "verbosity": 0.7, "technicalLevel": 1.8, "preferredResponseLength": -0.3}}
	}
}`

func TestSummarizeConversationParsesUpstreamJSON(t *testing.T) {
	llm := &fakeChatClient{reply: summaryJSON}
	a, st := newTestApp(t, llm)

	session, err := a.CreateSession("user-1", "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	summary := a.SummarizeConversation(context.Background(), session.ID, conversation(), "user-1")
	if summary.Summary != "User planned a trip to Paris with budgeting help." {
		t.Fatalf("summary = %q", summary.Summary)
	}
	if len(summary.KeyTopics) != 2 || summary.KeyTopics[0] != "travel" {
		t.Fatalf("keyTopics = %v", summary.KeyTopics)
	}

	// Out-of-range style scores are clamped into [0,1].
	style := summary.UserPreferences.Implicit.WritingStyle
	if style.TechnicalLevel != 1 {
		t.Fatalf("technicalLevel = %v, want clamped to 1", style.TechnicalLevel)
	}
	if style.PreferredResponseLength != 0 {
		t.Fatalf("preferredResponseLength = %v, want clamped to 0", style.PreferredResponseLength)
	}
	if style.Formality != 0.2 || style.Verbosity != 0.7 {
		t.Fatalf("in-range scores must pass through, got %+v", style)
	}

	stored, err := st.ListSummariesBySession(session.ID)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != summary.ID {
		t.Fatalf("expected persisted summary, got %+v", stored)
	}

	prefs, err := a.GetPreferences("user-1")
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if prefs["tone"] != "casual" {
		t.Fatalf("explicit preference not merged: %v", prefs)
	}
}

func TestSummarizeConversationStripsCodeFence(t *testing.T) {
	llm := &fakeChatClient{reply: "```json\n" + summaryJSON + "\n```"}
	a, _ := newTestApp(t, llm)

	summary := a.SummarizeConversation(context.Background(), "", conversation(), "")
	if summary.Summary != "User planned a trip to Paris with budgeting help." {
		t.Fatalf("fenced JSON not parsed, summary = %q", summary.Summary)
	}
}

func TestSummarizeConversationNeutralOnUpstreamError(t *testing.T) {
	llm := &fakeChatClient{err: &ai.UpstreamError{Status: 500, Message: "boom"}}
	a, _ := newTestApp(t, llm)

	summary := a.SummarizeConversation(context.Background(), "sess-1", conversation(), "")
	assertNeutralSummary(t, summary, "sess-1")
}

func TestSummarizeConversationNeutralOnMalformedJSON(t *testing.T) {
	llm := &fakeChatClient{reply: "Sure! Here is your summary: the user asked about Paris."}
	a, _ := newTestApp(t, llm)

	summary := a.SummarizeConversation(context.Background(), "sess-1", conversation(), "")
	assertNeutralSummary(t, summary, "sess-1")
}

func TestSummarizeConversationNeutralWithoutContent(t *testing.T) {
	llm := &fakeChatClient{reply: summaryJSON}
	a, _ := newTestApp(t, llm)

	messages := []domain.Message{
		{ID: domain.WelcomeMessageID, Role: domain.RoleAssistant, Content: "Welcome!"},
		{ID: "m1", Role: domain.RoleUser, Content: "   "},
	}
	summary := a.SummarizeConversation(context.Background(), "sess-1", messages, "")
	assertNeutralSummary(t, summary, "sess-1")
	if llm.calls != 0 {
		t.Fatalf("upstream must not be called without real content")
	}
}

func TestSummarizeConversationNeutralWithoutClient(t *testing.T) {
	a, _ := newTestApp(t, nil)

	summary := a.SummarizeConversation(context.Background(), "sess-1", conversation(), "")
	assertNeutralSummary(t, summary, "sess-1")
}

func TestSummarizeSessionLoadsStoredHistory(t *testing.T) {
	llm := &fakeChatClient{reply: summaryJSON}
	a, _ := newTestApp(t, llm)

	session, err := a.CreateSession("user-1", "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := a.AppendSessionMessage("user-1", session.ID, domain.RoleUser, "Plan me a Paris trip"); err != nil {
		t.Fatalf("append message: %v", err)
	}

	summary, err := a.SummarizeSession(context.Background(), "user-1", session.ID)
	if err != nil {
		t.Fatalf("summarize session: %v", err)
	}
	if summary.Summary != "User planned a trip to Paris with budgeting help." {
		t.Fatalf("summary = %q", summary.Summary)
	}
	if llm.calls != 1 {
		t.Fatalf("upstream calls = %d, want 1", llm.calls)
	}
}

func assertNeutralSummary(t *testing.T, summary domain.ChatSummary, sessionID string) {
	t.Helper()
	if summary.Summary != "Chat session completed" {
		t.Fatalf("summary = %q, want neutral default", summary.Summary)
	}
	if summary.SessionID != sessionID {
		t.Fatalf("sessionId = %q, want %q", summary.SessionID, sessionID)
	}
	if summary.ID == "" {
		t.Fatalf("neutral summary must carry an id")
	}
	if len(summary.KeyTopics) != 0 {
		t.Fatalf("keyTopics = %v, want empty", summary.KeyTopics)
	}
	style := summary.UserPreferences.Implicit.WritingStyle
	for name, v := range map[string]float64{
		"formality":               style.Formality,
		"verbosity":               style.Verbosity,
		"technicalLevel":          style.TechnicalLevel,
		"preferredResponseLength": style.PreferredResponseLength,
	} {
		if v != 0.5 {
			t.Fatalf("%s = %v, want neutral 0.5", name, v)
		}
	}
}
