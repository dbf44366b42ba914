package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/five82/rikipost/internal/bot"
	"github.com/five82/rikipost/internal/compose"
	"github.com/five82/rikipost/internal/state"
)

// RenderPreview draws a composed but unpublished post as a card.
func RenderPreview(d bot.Draft, themeName string, width int) string {
	styles := GetTheme(themeName).Styles()
	if width <= 0 {
		width = defaultWidth
	}
	img := d.Candidate.Image
	msg := d.Message

	source := "sequence scan"
	if d.Candidate.Inherited {
		source = "post scan, tags inherited from a sibling"
	}
	meta := []string{
		styles.Logo.Render("preview") + "  " + styles.TierBadge(msg.Tier) + "  " + styles.MutedText.Render(limitsLabel(d.Limits)),
		styles.FaintText.Render("vk_id   ") + styles.Text.Render(strconv.FormatInt(img.VKID, 10)) + styles.MutedText.Render("  ("+source+")"),
		styles.FaintText.Render("media   ") + styles.Text.Render(mediaLabel(d)),
		styles.FaintText.Render("alt     ") + styles.Text.Render(orDash(msg.MediaDescription)),
	}
	if msg.Sensitive {
		meta = append(meta, styles.FaintText.Render("warning ")+styles.DangerText.Render(msg.SpoilerText))
	}

	length := compose.Length(msg.Text, d.Limits.CharactersReservedPerURL)
	body := styles.Card.Width(max(width-2, 20)).Render(msg.Text)
	footer := styles.MutedText.Render(fmt.Sprintf("%d characters", length))
	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(meta, "\n"), body, footer)
}

func limitsLabel(l compose.Limits) string {
	if l.MaxCharacters <= 0 {
		return "no instance limit"
	}
	return fmt.Sprintf("limit %d, %d per link", l.MaxCharacters, l.CharactersReservedPerURL)
}

func mediaLabel(d bot.Draft) string {
	m := d.Candidate.Media
	if len(m.Data) == 0 {
		return d.Candidate.Image.PictureURL
	}
	return fmt.Sprintf("%s %s %s", m.Filename, m.MimeType, humanize.Bytes(uint64(len(m.Data))))
}

// PlainHistory formats records one per line, oldest first, for pipes and
// logs.
func PlainHistory(records []state.PublishRecord) string {
	var b strings.Builder
	for _, rec := range records {
		flags := ""
		if rec.Sensitive {
			flags = " cw"
		}
		fmt.Fprintf(&b, "%s\t%d\ttier %d%s\t%s\n",
			rec.PublishedAt.Local().Format(time.DateTime),
			rec.Image.VKID,
			rec.Tier,
			flags,
			orDash(rec.RemotePostURL),
		)
	}
	return b.String()
}
