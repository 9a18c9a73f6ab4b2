package app

import (
	"strings"
	"testing"

	"theduck/pkg/domain"
)

func TestFallbackTitleFirstUserMessage(t *testing.T) {
	title := FallbackTitle([]domain.Message{
		{ID: "m1", Role: domain.RoleAssistant, Content: "Hello! How can I help?"},
		{ID: "m2", Role: domain.RoleUser, Content: "What is the capital of France?"},
	})
	if title != "What is the capital" {
		t.Fatalf("title = %q, want first four words of the user message", title)
	}
}

func TestFallbackTitleDefaultsWhenNothingQualifies(t *testing.T) {
	cases := map[string][]domain.Message{
		"empty":        nil,
		"welcome only": {{ID: domain.WelcomeMessageID, Role: domain.RoleAssistant, Content: "Welcome to the chat!"}},
		"blank only":   {{ID: "m1", Role: domain.RoleUser, Content: "   "}},
		"system only":  {{ID: "m1", Role: domain.RoleSystem, Content: "You are a helpful assistant."}},
	}
	for name, messages := range cases {
		if title := FallbackTitle(messages); title != DefaultTitle {
			t.Fatalf("%s: title = %q, want %q", name, title, DefaultTitle)
		}
	}
}

func TestFallbackTitlePrefersUserOverAssistant(t *testing.T) {
	title := FallbackTitle([]domain.Message{
		{ID: "m1", Role: domain.RoleAssistant, Content: "assistant opener here"},
		{ID: "m2", Role: domain.RoleUser, Content: "user question here"},
	})
	if title != "user question here" {
		t.Fatalf("title = %q, want user message to win", title)
	}
}

func TestFallbackTitleUsesAssistantWhenNoUserTurn(t *testing.T) {
	title := FallbackTitle([]domain.Message{
		{ID: "m1", Role: domain.RoleSystem, Content: "instructions"},
		{ID: "m2", Role: domain.RoleAssistant, Content: "Here is a summary of quantum computing"},
	})
	if title != "Here is a summary" {
		t.Fatalf("title = %q, want first non-system message", title)
	}
}

func TestFallbackTitleTruncatesLongTitles(t *testing.T) {
	title := FallbackTitle([]domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "supercalifragilisticexpialidocious antidisestablishmentarianism floccinaucinihilipilification"},
	})
	runes := []rune(title)
	if len(runes) != 30 {
		t.Fatalf("len(title) = %d, want 30 runes", len(runes))
	}
	if !strings.HasSuffix(title, "...") {
		t.Fatalf("title = %q, want ellipsis suffix", title)
	}
}

func TestFallbackTitleKeepsOriginalCasing(t *testing.T) {
	title := FallbackTitle([]domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "how do i sort a slice"},
	})
	if title != "how do i sort" {
		t.Fatalf("title = %q, casing must be untouched", title)
	}
}
