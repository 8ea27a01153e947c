package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/fableloom/fableloom/pkg/errors"
	"github.com/fableloom/fableloom/pkg/party"
	"github.com/fableloom/fableloom/pkg/session"
	"github.com/fableloom/fableloom/pkg/store"
	"github.com/fableloom/fableloom/pkg/story"
)

// Play TUI styles.
var (
	playPageStyle     = lipgloss.NewStyle().Foreground(colorWhite).PaddingLeft(2)
	playSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	playChoiceStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	playEndingStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	playNoticeStyle   = lipgloss.NewStyle().Foreground(colorYellow)
)

// playCommand creates the play command for reading a story in the terminal.
func (c *CLI) playCommand() *cobra.Command {
	var reader string

	cmd := &cobra.Command{
		Use:   "play [story.json]",
		Short: "Read a story interactively in the terminal",
		Long: `Read a story interactively in the terminal.

Loads a story file into an in-memory store and walks it one choice at a
time. Going back re-renders the previous page without rewriting the visit
log; restarting begins again from the root. Undeveloped choices are listed
but cannot be followed.

Where you left off is remembered per machine: quitting mid-story saves a
reader session file, and the next play of the same story resumes on the
last visited page. Reaching an ending clears it.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: storyFileCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlay(cmd.Context(), args[0], reader)
		},
	}

	cmd.Flags().StringVar(&reader, "reader", "reader", "reader id recorded on the party")

	return cmd
}

func (c *CLI) runPlay(ctx context.Context, input, reader string) error {
	f, err := story.ReadFile(input)
	if err != nil {
		return fmt.Errorf("load story %s: %w", input, err)
	}

	st := store.NewMemoryStore()
	st.Seed(f)

	p, err := st.CreateParty(ctx, reader, f.Story.ID)
	if err != nil {
		return fmt.Errorf("create party: %w", err)
	}

	resume, err := session.NewCLIStore("")
	if err != nil {
		c.Logger.Warn("reader session unavailable; not resuming", "error", err)
	} else {
		p = c.resumeParty(ctx, st, resume, p, f.Story.ID)
	}

	sess, err := party.NewSession(ctx, p, f.Graph(), st, log.New(io.Discard))
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	title := f.Story.Title
	if title == "" {
		title = f.Story.ID
	}

	model := newPlayModel(sess, title)
	prog := tea.NewProgram(model, tea.WithContext(ctx))
	final, err := prog.Run()
	if err != nil {
		return fmt.Errorf("run tui: %w", err)
	}

	m, ok := final.(playModel)
	if !ok {
		return nil
	}
	if resume != nil {
		c.saveReaderSession(ctx, resume, reader, m.session)
	}
	if m.session.State() == party.Ended {
		if cur := m.session.Current(); cur != nil {
			label := cur.EndingLabel
			if label == "" {
				label = cur.ID
			}
			printSuccess("Reached ending: %s", label)
			printDetail("Progress: %d%%", m.session.Progress())
		}
	}
	return nil
}

// resumeParty replays a saved visit log onto a freshly created party, so the
// session opens on the page the reader left. The saved session only applies
// to the story it was recorded for.
func (c *CLI) resumeParty(ctx context.Context, st *store.MemoryStore, resume *session.CLIStore, p *party.Party, storyID string) *party.Party {
	prev, err := resume.GetSession(ctx)
	if err != nil {
		c.Logger.Warn("could not read reader session", "error", err)
		return p
	}
	if prev == nil || prev.StoryID != storyID || len(prev.Path) == 0 {
		return p
	}
	updated, err := st.UpdateParty(ctx, p.ID, party.Update{AppendPath: prev.Path})
	if err != nil {
		c.Logger.Warn("could not replay reader session", "error", err)
		return p
	}
	c.Logger.Debug("resuming reader session", "story", storyID, "page", updated.CurrentPageID())
	return updated
}

// saveReaderSession persists the visit log for the next play of the same
// story. Reaching an ending clears the resume point instead, so a finished
// story starts fresh.
func (c *CLI) saveReaderSession(ctx context.Context, resume *session.CLIStore, reader string, sess *party.Session) {
	if sess.State() == party.Ended {
		if err := resume.DeleteSession(ctx); err != nil {
			c.Logger.Warn("could not clear reader session", "error", err)
		}
		return
	}
	p := sess.Party()
	saved, err := session.New(reader, p.ID, p.StoryID, session.DefaultTTL)
	if err != nil {
		c.Logger.Warn("could not create reader session", "error", err)
		return
	}
	saved.Path = p.Path
	if err := resume.SaveSession(ctx, saved); err != nil {
		c.Logger.Warn("could not save reader session", "error", err)
	}
}

// playModel is the bubbletea model for the interactive reader.
type playModel struct {
	session *party.Session
	title   string
	cursor  int
	width   int
	notice  string
}

func newPlayModel(sess *party.Session, title string) playModel {
	return playModel{session: sess, title: title, width: 80}
}

func (m playModel) Init() tea.Cmd {
	return nil
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.session.Choices())-1 {
				m.cursor++
			}
		case "enter":
			return m.selectCurrent(), nil
		case "b", "backspace":
			if err := m.session.GoBack(); err != nil {
				m.notice = errors.UserMessage(err)
			} else {
				m.cursor = 0
				m.notice = ""
			}
		case "r":
			if err := m.session.Restart(context.Background()); err != nil {
				m.notice = errors.UserMessage(err)
			} else {
				m.cursor = 0
				m.notice = ""
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	}
	return m, nil
}

func (m playModel) selectCurrent() playModel {
	choices := m.session.Choices()
	if m.cursor >= len(choices) {
		return m
	}
	if err := m.session.SelectChoice(context.Background(), choices[m.cursor].ID); err != nil {
		m.notice = errors.UserMessage(err)
		return m
	}
	m.cursor = 0
	m.notice = ""
	return m
}

func (m playModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.title))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %d%%", m.session.Progress())))
	b.WriteString("\n\n")

	cur := m.session.Current()
	if cur == nil {
		b.WriteString(playNoticeStyle.Render("This story has no pages."))
		b.WriteString("\n\n")
		b.WriteString(StyleDim.Render("q quit"))
		return b.String()
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	content := cur.Content
	if content == "" {
		content = "(this page has not been written yet)"
	}
	b.WriteString(playPageStyle.Width(width).Render(content))
	b.WriteString("\n\n")

	if m.session.State() == party.Ended {
		label := cur.EndingLabel
		if label == "" {
			label = "The End"
		}
		b.WriteString(playEndingStyle.Render("■ " + label))
		b.WriteString("\n\n")
		b.WriteString(StyleDim.Render("r restart  q quit"))
		b.WriteString("\n")
		return b.String()
	}

	choices := m.session.Choices()
	if len(choices) == 0 {
		b.WriteString(playNoticeStyle.Render("No choices lead on from here."))
		b.WriteString("\n")
	}
	for i, choice := range choices {
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}
		text := choice.Text
		if !choice.IsLinked() {
			text += " (unwritten)"
			b.WriteString(cursor + StyleDim.Render(text))
		} else if i == m.cursor {
			b.WriteString(cursor + playSelectedStyle.Render(text))
		} else {
			b.WriteString(cursor + playChoiceStyle.Render(text))
		}
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(playNoticeStyle.Render(iconWarning + " " + m.notice))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	help := "↑/↓ choose  ⏎ select  r restart  q quit"
	if m.session.CanGoBack() {
		help = "↑/↓ choose  ⏎ select  b back  r restart  q quit"
	}
	b.WriteString(StyleDim.Render(help))
	b.WriteString("\n")
	return b.String()
}
