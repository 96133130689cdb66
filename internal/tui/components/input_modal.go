package components

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/pixora/internal/tui/styles"
)

// InputModal is a single-line text prompt used for search terms, filters and profile edits
type InputModal struct {
	visible bool
	title   string
	width   int
	input   textinput.Model
}

// NewInputModal creates a new input modal
func NewInputModal(placeholder string, charLimit int) InputModal {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = charLimit
	ti.Width = 40
	ti.Prompt = "› "
	ti.PromptStyle = styles.FilterPromptStyle
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle

	return InputModal{
		input: ti,
		width: 44,
	}
}

// Show displays the modal with a title and initial value
func (m *InputModal) Show(title, value string) tea.Cmd {
	m.visible = true
	m.title = title
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

// Hide dismisses the modal
func (m *InputModal) Hide() {
	m.visible = false
	m.input.Blur()
}

// IsVisible returns whether the modal is shown
func (m InputModal) IsVisible() bool {
	return m.visible
}

// Value returns the current input value
func (m InputModal) Value() string {
	return m.input.Value()
}

// Update handles input events, returns (modal, cmd, submitted).
// Esc hides the modal without submitting.
func (m InputModal) Update(msg tea.Msg) (InputModal, tea.Cmd, bool) {
	if !m.visible {
		return m, nil, false
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			return m, nil, true
		case "esc":
			m.Hide()
			return m, nil, false
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd, false
}

// InlineView renders the prompt as a single line for use above a list
func (m InputModal) InlineView() string {
	if !m.visible {
		return ""
	}
	return styles.DimStyle.Render(m.title+" ") + m.input.View()
}

// View renders the input modal
func (m InputModal) View() string {
	if !m.visible {
		return ""
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.ModalTitleStyle.Width(m.width).Render(m.title),
		lipgloss.NewStyle().Width(m.width).Render(m.input.View()),
		"",
		styles.KeyHint("enter", "save")+"  "+styles.KeyHint("esc", "cancel"),
	)

	return styles.ModalStyle.Render(content)
}
