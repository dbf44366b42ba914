// Package ui renders rikipost state for a terminal.
//
// RunHistory opens a bubbletea browser over the publish history: a table of
// statuses, newest first, with a detail card for the selected record. The
// browser is read-only. RenderPreview draws a bot.Draft with lipgloss so a
// dry run shows exactly the text, spoiler and alt text that would be posted.
//
// Two palettes are available, Dracula and Slate; "T" cycles them in the
// browser and the ui.theme config key picks the starting one.
package ui
