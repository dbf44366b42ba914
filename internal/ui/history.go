package ui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/five82/rikipost/internal/state"
)

const (
	defaultWidth  = 100
	defaultHeight = 24
	// header, table border, detail card and footer
	chromeHeight = 4
	detailHeight = 7
)

// HistoryModel is a read-only browser over the publish history.
type HistoryModel struct {
	records []state.PublishRecord // newest first
	table   table.Model
	help    help.Model
	keys    keyMap
	theme   Theme

	showDetail bool
	showHelp   bool
	width      int
	height     int
	now        func() time.Time
}

// NewHistory builds the browser. records are in log order, oldest first.
func NewHistory(records []state.PublishRecord, themeName string) HistoryModel {
	newest := slices.Clone(records)
	slices.Reverse(newest)

	m := HistoryModel{
		records:    newest,
		help:       help.New(),
		keys:       defaultKeyMap(),
		theme:      GetTheme(themeName),
		showDetail: true,
		width:      defaultWidth,
		height:     defaultHeight,
		now:        time.Now,
	}
	m.table = table.New(
		table.WithColumns(historyColumns(m.width)),
		table.WithFocused(true),
	)
	m.table.SetRows(m.rows())
	m.applyTheme()
	m.resize()
	return m
}

// Selected returns the record under the cursor.
func (m HistoryModel) Selected() (state.PublishRecord, bool) {
	if len(m.records) == 0 {
		return state.PublishRecord{}, false
	}
	return m.records[m.table.Cursor()], true
}

// Init implements tea.Model.
func (m HistoryModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(historyColumns(m.width))
		m.resize()
		return m, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.help.ShowAll = m.showHelp
		case key.Matches(msg, m.keys.CycleTheme):
			m.theme = GetTheme(NextTheme(m.theme.Name))
			m.applyTheme()
		case key.Matches(msg, m.keys.ToggleDetail):
			m.showDetail = !m.showDetail
			m.resize()
		case key.Matches(msg, m.keys.Up):
			m.table.MoveUp(1)
		case key.Matches(msg, m.keys.Down):
			m.table.MoveDown(1)
		case key.Matches(msg, m.keys.Top):
			m.table.GotoTop()
		case key.Matches(msg, m.keys.Bottom):
			m.table.GotoBottom()
		}
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m HistoryModel) View() string {
	styles := m.theme.Styles()
	parts := []string{m.renderHeader(styles)}
	if len(m.records) == 0 {
		parts = append(parts, styles.MutedText.Padding(1, 1).Render("Nothing published yet."))
	} else {
		parts = append(parts, m.table.View())
		if m.showDetail {
			if rec, ok := m.Selected(); ok {
				parts = append(parts, m.renderDetail(styles, rec))
			}
		}
	}
	parts = append(parts, styles.Footer.Render(m.help.View(m.keys)))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m HistoryModel) renderHeader(styles Styles) string {
	content := styles.Logo.Render("rikipost") + "  " +
		styles.Text.Render(fmt.Sprintf("%d published", len(m.records)))
	if len(m.records) > 0 {
		content += "  " + styles.MutedText.Render("last "+humanize.RelTime(m.records[0].PublishedAt, m.now(), "ago", "from now"))
	}
	return styles.Header.Width(m.width).Render(content)
}

func (m HistoryModel) renderDetail(styles Styles, rec state.PublishRecord) string {
	label := func(s string) string { return styles.FaintText.Render(fmt.Sprintf("%-9s", s)) }
	lines := []string{
		label("status") + styles.AccentText.Render(orDash(rec.RemotePostURL)) + "  " + styles.TierBadge(rec.Tier),
		label("picture") + styles.Text.Render(rec.Image.PictureURL),
		label("post") + styles.Text.Render(rec.Image.PostURL),
		label("tags") + styles.Text.Render(orDash(strings.Join(rec.Image.Tags, ", "))),
		label("time") + styles.MutedText.Render(rec.PublishedAt.Local().Format(time.RFC1123)),
	}
	if rec.Sensitive {
		lines = append(lines, styles.WarningText.Render("posted behind a content warning"))
	}
	return styles.Card.Width(max(m.width-2, 20)).Render(strings.Join(lines, "\n"))
}

func (m *HistoryModel) applyTheme() {
	styles := m.theme.Styles()
	ts := table.DefaultStyles()
	ts.Header = styles.TableHeader.Padding(0, 1)
	ts.Cell = styles.Text.Padding(0, 1)
	ts.Selected = styles.Selected.Bold(true)
	m.table.SetStyles(ts)
}

func (m *HistoryModel) resize() {
	h := m.height - chromeHeight
	if m.showDetail {
		h -= detailHeight
	}
	m.table.SetHeight(max(h, 3))
	m.table.SetWidth(m.width)
	m.help.Width = m.width
}

func (m HistoryModel) rows() []table.Row {
	rows := make([]table.Row, 0, len(m.records))
	for _, rec := range m.records {
		cw := ""
		if rec.Sensitive {
			cw = "CW"
		}
		tier := "-"
		if rec.Tier > 0 {
			tier = strconv.Itoa(rec.Tier)
		}
		rows = append(rows, table.Row{
			humanize.Time(rec.PublishedAt),
			strconv.FormatInt(rec.Image.VKID, 10),
			tier,
			cw,
			orDash(rec.RemotePostURL),
		})
	}
	return rows
}

func historyColumns(width int) []table.Column {
	fixed := []table.Column{
		{Title: "Published", Width: 16},
		{Title: "VK ID", Width: 10},
		{Title: "Tier", Width: 4},
		{Title: "CW", Width: 3},
	}
	used := 0
	for _, c := range fixed {
		used += c.Width + 2
	}
	return append(fixed, table.Column{Title: "Status", Width: max(width-used-2, 12)})
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// RunHistory opens the history browser until the user quits.
func RunHistory(records []state.PublishRecord, themeName string) error {
	_, err := tea.NewProgram(NewHistory(records, themeName), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("history browser: %w", err)
	}
	return nil
}
