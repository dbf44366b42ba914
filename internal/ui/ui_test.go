package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/rikipost/internal/booru"
	"github.com/five82/rikipost/internal/bot"
	"github.com/five82/rikipost/internal/compose"
	"github.com/five82/rikipost/internal/selector"
	"github.com/five82/rikipost/internal/state"
)

func TestThemeNamesAndCycle(t *testing.T) {
	names := ThemeNames()
	if len(names) != 2 || names[0] != "Dracula" || names[1] != "Slate" {
		t.Fatalf("ThemeNames() = %v, want [Dracula Slate]", names)
	}
	if got := NextTheme("Dracula"); got != "Slate" {
		t.Fatalf("NextTheme(Dracula) = %q, want Slate", got)
	}
	if got := NextTheme("Slate"); got != "Dracula" {
		t.Fatalf("NextTheme(Slate) = %q, want Dracula", got)
	}
	if got := NextTheme("Unknown"); got != "Dracula" {
		t.Fatalf("NextTheme(Unknown) = %q, want Dracula", got)
	}
	if got := GetTheme("Unknown").Name; got != "Dracula" {
		t.Fatalf("GetTheme(Unknown).Name = %q, want Dracula (fallback)", got)
	}
}

func TestTierBadge(t *testing.T) {
	styles := GetTheme("Slate").Styles()
	for _, tier := range []int{1, 2, 3, 0} {
		if got := styles.TierBadge(tier); !strings.Contains(got, "tier ") {
			t.Fatalf("TierBadge(%d) = %q, want a tier label", tier, got)
		}
	}
}

func sampleRecords() []state.PublishRecord {
	base := time.Date(2024, 3, 23, 12, 0, 0, 0, time.UTC)
	return []state.PublishRecord{
		{Image: booru.Image{VKID: 1, Tags: []string{"крош"}}, RemotePostID: "a", RemotePostURL: "https://m.example/@bot/a", PublishedAt: base, Tier: 1},
		{Image: booru.Image{VKID: 2}, RemotePostID: "b", PublishedAt: base.Add(2 * time.Hour), Tier: 2, Sensitive: true},
		{Image: booru.Image{VKID: 3}, RemotePostID: "c", RemotePostURL: "https://m.example/@bot/c", PublishedAt: base.Add(4 * time.Hour), Tier: 3},
	}
}

func press(m tea.Model, msg tea.KeyMsg) tea.Model {
	next, _ := m.Update(msg)
	return next
}

func TestHistoryModel_NewestFirstAndNavigation(t *testing.T) {
	var m tea.Model = NewHistory(sampleRecords(), "Dracula")

	rec, ok := m.(HistoryModel).Selected()
	if !ok || rec.Image.VKID != 3 {
		t.Fatalf("initial selection = %d, want newest (3)", rec.Image.VKID)
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	if rec, _ := m.(HistoryModel).Selected(); rec.Image.VKID != 2 {
		t.Fatalf("after down = %d, want 2", rec.Image.VKID)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	if rec, _ := m.(HistoryModel).Selected(); rec.Image.VKID != 1 {
		t.Fatalf("after G = %d, want oldest (1)", rec.Image.VKID)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	if rec, _ := m.(HistoryModel).Selected(); rec.Image.VKID != 3 {
		t.Fatalf("after g = %d, want 3", rec.Image.VKID)
	}
}

func TestHistoryModel_ThemeDetailAndQuit(t *testing.T) {
	var m tea.Model = NewHistory(sampleRecords(), "Dracula")
	m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'T'}})
	if got := m.(HistoryModel).theme.Name; got != "Slate" {
		t.Fatalf("theme after T = %q, want Slate", got)
	}

	if view := m.View(); !strings.Contains(view, "https://m.example/@bot/c") || !strings.Contains(view, "3 published") {
		t.Fatalf("View missing header or detail:\n%s", view)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.(HistoryModel).showDetail {
		t.Fatalf("enter did not hide the detail card")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatalf("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q did not quit")
	}
}

func TestHistoryModel_Empty(t *testing.T) {
	m := NewHistory(nil, "Slate")
	if _, ok := m.Selected(); ok {
		t.Fatalf("Selected on empty history returned ok")
	}
	if view := m.View(); !strings.Contains(view, "Nothing published yet.") {
		t.Fatalf("empty View = %q", view)
	}
}

func TestRenderPreview(t *testing.T) {
	d := bot.Draft{
		Candidate: selector.Candidate{
			Image:     booru.Image{VKID: 42, PictureURL: "https://img/42.jpg"},
			Media:     booru.Media{Data: []byte("jpeg"), Filename: "42.jpg", MimeType: "image/jpeg"},
			Inherited: true,
		},
		Message: compose.Message{
			Text:             "Крош\n\nsource: https://vk.com/wall-1_2\n\n#смешарики",
			Sensitive:        true,
			SpoilerText:      "NSFW",
			MediaDescription: "Смешарики; Крош; NSFW",
			Tier:             1,
		},
		Limits: compose.Limits{MaxCharacters: 500, CharactersReservedPerURL: 23},
	}
	out := RenderPreview(d, "Dracula", 80)
	for _, want := range []string{"42", "tags inherited", "NSFW", "#смешарики", "limit 500", "42.jpg"} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderPreview missing %q:\n%s", want, out)
		}
	}
}

func TestPlainHistory(t *testing.T) {
	out := PlainHistory(sampleRecords())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("PlainHistory lines = %d, want 3:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "\t2\ttier 2 cw\t-") {
		t.Fatalf("line 2 = %q, want sensitive record without url", lines[1])
	}
}
