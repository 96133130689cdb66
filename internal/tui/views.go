package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/tui/styles"
)

const (
	gridCellLines  = 4
	gridCellChrome = 2 // rounded border, top and bottom
)

// View renders the whole screen
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	// Handle modal states
	switch m.State {
	case StateHelp:
		return m.renderHelp()
	case StateConfirmSignOut:
		return m.renderSignOutConfirmation()
	case StateDetail:
		return m.renderDetail()
	case StateEditUsername:
		return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, m.UsernameInput.View())
	}

	contentHeight := m.Height - ChromeHeight
	var content string
	switch m.Screen {
	case ViewFavorites:
		content = m.renderFavorites(contentHeight)
	case ViewProfile:
		content = m.renderProfile()
	default:
		content = m.renderHome(contentHeight)
	}

	content = lipgloss.NewStyle().Height(contentHeight).MaxHeight(contentHeight).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), content, m.renderFooter())
}

func (m Model) renderHeader() string {
	tabs := []string{styles.LogoStyle.Render("pixora")}
	for _, v := range []View{ViewHome, ViewFavorites, ViewProfile} {
		label := fmt.Sprintf("%d %s", v+1, v)
		if v == m.Screen {
			tabs = append(tabs, styles.ActiveTabStyle.Render(label))
		} else {
			tabs = append(tabs, styles.TabStyle.Render(label))
		}
	}
	left := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	who := "signed out"
	if m.Session != nil && m.Session.SignedIn() {
		who = m.Session.User().DisplayName()
	}
	right := styles.FavoriteBadge + " " + styles.DimStyle.Render(fmt.Sprintf("%d · %s", m.Favorites.Count(), who))

	gap := max(m.Width-lipgloss.Width(left)-lipgloss.Width(right)-1, 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderHome(height int) string {
	var lines []string

	title := "Editorial feed"
	if m.snapshot.Query != "" {
		title = fmt.Sprintf("Results for %q", m.snapshot.Query)
	}
	lines = append(lines, " "+styles.TitleStyle.Render(title)+styles.DimStyle.Render(fmt.Sprintf("  %d photos", len(m.snapshot.Photos))))

	switch {
	case m.SearchInput.IsVisible():
		lines = append(lines, " "+m.SearchInput.InlineView())
	case m.FilterInput.IsVisible():
		lines = append(lines, " "+m.FilterInput.InlineView())
	case m.filter != "":
		lines = append(lines, " "+styles.DimStyle.Render("filter: ")+styles.AccentStyle.Render(m.filter)+styles.DimStyle.Render("  (esc to clear)"))
	}

	photos := m.visiblePhotos()
	if len(photos) == 0 {
		switch {
		case m.Loading:
			lines = append(lines, "", " "+styles.DimStyle.Render("Fetching photos..."))
		case m.snapshot.Err != nil:
			lines = append(lines, "", " "+styles.ErrorStyle.Render("Error: "+m.snapshot.Err.Error()), " "+styles.DimStyle.Render("Press r to retry"))
		case m.filter != "":
			lines = append(lines, "", " "+styles.DimStyle.Render("Nothing on this page matches the filter"))
		default:
			lines = append(lines, "", " "+styles.DimStyle.Render("No photos found"))
		}
		return strings.Join(lines, "\n")
	}

	lines = append(lines, m.renderGrid(photos, height-len(lines)))
	return strings.Join(lines, "\n")
}

// renderGrid lays photos out in rows of gridColumns cells, scrolled so the cursor is visible
func (m Model) renderGrid(photos []domain.AnnotatedPhoto, height int) string {
	cols := m.gridColumns
	cellOuter := max(m.Width/cols, 12)
	inner := cellOuter - 4 // border and padding

	visibleRows := max(height/(gridCellLines+gridCellChrome), 1)
	cursorRow := m.cursor / cols
	startRow := max(cursorRow-visibleRows+1, 0)

	var rows []string
	for r := startRow; r < startRow+visibleRows; r++ {
		start := r * cols
		if start >= len(photos) {
			break
		}
		end := min(start+cols, len(photos))

		cells := make([]string, 0, cols)
		for i := start; i < end; i++ {
			cells = append(cells, m.renderCell(photos[i].Photo, inner, i == m.cursor))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderCell(p domain.Photo, width int, selected bool) string {
	swatchColor := styles.SlateLight
	if p.Color != "" {
		swatchColor = lipgloss.Color(p.Color)
	}
	swatch := lipgloss.NewStyle().Background(swatchColor).Render(strings.Repeat(" ", width))

	badge := styles.NotFavoriteBadge
	if m.Favorites.IsFavorited(p.ID) {
		badge = styles.FavoriteBadge
	}

	meta := p.Handle()
	if p.Likes > 0 {
		meta = fmt.Sprintf("%s · %d likes", meta, p.Likes)
	}

	body := strings.Join([]string{
		swatch,
		badge + " " + styles.TitleStyle.Render(styles.Truncate(p.GetTitle(), width-2)),
		styles.SubtitleStyle.Render(styles.Truncate(p.AuthorName, width)),
		styles.DimStyle.Render(styles.Truncate(meta, width)),
	}, "\n")

	style := styles.GridCellStyle
	if selected {
		style = styles.GridCellSelectedStyle
	}
	return style.Width(width + 2).Render(body)
}

func (m Model) renderFavorites(height int) string {
	all := m.Favorites.Count()
	lines := []string{" " + styles.TitleStyle.Render("Favorites") + styles.DimStyle.Render(fmt.Sprintf("  %d saved", all))}

	switch {
	case m.FilterInput.IsVisible():
		lines = append(lines, " "+m.FilterInput.InlineView())
	case m.favFilter != "":
		lines = append(lines, " "+styles.DimStyle.Render("filter: ")+styles.AccentStyle.Render(m.favFilter)+styles.DimStyle.Render("  (esc to clear)"))
	}

	items := m.visibleFavorites()
	if len(items) == 0 {
		if all == 0 {
			lines = append(lines, "", " "+styles.DimStyle.Render("No favorites yet. Press f on a photo to save it."))
		} else {
			lines = append(lines, "", " "+styles.DimStyle.Render("No favorites match the filter"))
		}
		return strings.Join(lines, "\n")
	}

	visible := max(height-len(lines), 1)
	start := max(m.favCursor-visible+1, 0)
	end := min(start+visible, len(items))
	for i := start; i < end; i++ {
		lines = append(lines, m.renderFavoriteRow(items[i], i == m.favCursor))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFavoriteRow(f domain.Favorite, selected bool) string {
	name := f.AttributionName
	if f.AttributionHandle != "" {
		name += " @" + f.AttributionHandle
	}
	added := ""
	if !f.AddedAt.IsZero() {
		added = f.AddedAt.Local().Format("2006-01-02")
	}

	width := max(m.Width-4, 20)
	idWidth := 14
	nameWidth := max(width-idWidth-len(added)-6, 8)
	row := styles.FavoriteChar + " " + styles.Pad(styles.Truncate(name, nameWidth), nameWidth) + "  " +
		styles.Pad(styles.Truncate(f.ID, idWidth), idWidth) + "  " + added

	if selected {
		return styles.SelectedItemStyle.Width(width).Render(row)
	}
	return styles.NormalItemStyle.Width(width).Render(row)
}

func (m Model) renderProfile() string {
	lines := []string{" " + styles.TitleStyle.Render("Profile"), ""}
	field := func(label, value string) string {
		return "   " + styles.DimStyle.Render(styles.Pad(label, 12)) + styles.SubtitleStyle.Render(value)
	}

	switch {
	case m.Session == nil || !m.Session.IdentityConfigured():
		lines = append(lines,
			"   "+styles.DimStyle.Render("Accounts are not configured."),
			"   "+styles.DimStyle.Render("Set identity.url and identity.anon_key to sign in."),
		)
	case !m.Session.SignedIn():
		lines = append(lines,
			"   "+styles.DimStyle.Render("Not signed in. Favorites are kept for this device."),
			"   "+styles.DimStyle.Render("Run `pixora login` or `pixora signup` to use an account."),
		)
	default:
		u := m.Session.User()
		username := u.Username
		if username == "" {
			username = "(not set)"
		}
		provider := u.Provider
		if provider == "" {
			provider = "email"
		}
		lines = append(lines,
			field("Username", username),
			field("Email", u.Email),
			field("Sign-in", provider),
		)
	}

	lines = append(lines, field("Favorites", fmt.Sprintf("%d", m.Favorites.Count())))

	if m.Session != nil && m.Session.SignedIn() {
		lines = append(lines, "", "   "+styles.KeyHint("e", "edit username")+"   "+styles.KeyHint("L", "sign out"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderDetail() string {
	p := *m.detail

	badge := styles.NotFavoriteBadge + styles.DimStyle.Render(" not in favorites")
	if m.Favorites.IsFavorited(p.ID) {
		badge = styles.FavoriteBadge + styles.AccentStyle.Render(" favorited")
	}

	var facts []string
	if d := p.Dimensions(); d != "" {
		facts = append(facts, d)
	}
	if p.Likes > 0 {
		facts = append(facts, fmt.Sprintf("%d likes", p.Likes))
	}
	if p.Color != "" {
		facts = append(facts, lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render("■")+" "+p.Color)
	}

	byline := "by " + p.AuthorName
	if h := p.Handle(); h != "" {
		byline += " " + h
	}

	req := m.previewRequest(p)
	var art string
	switch {
	case m.Previews == nil:
		art = ""
	case m.detailErr != nil:
		art = styles.DimStyle.Render("Preview unavailable: " + m.detailErr.Error())
	case m.detailArt == "":
		art = m.Spinner.View() + styles.DimStyle.Render(" loading preview")
	default:
		art = m.detailArt
	}

	parts := []string{
		styles.TitleStyle.Render(styles.Truncate(p.GetTitle(), req.Cols)),
		styles.SubtitleStyle.Render(byline),
		styles.DimStyle.Render(strings.Join(facts, " · ")),
		badge,
	}
	if art != "" {
		parts = append(parts, "", art)
	}
	parts = append(parts, "",
		styles.KeyHint("f", "favorite")+"  "+styles.KeyHint("d", "download")+"  "+
			styles.KeyHint("y", "copy link")+"  "+styles.KeyHint("esc", "close"))
	if m.StatusMsg != "" {
		parts = append(parts, m.renderStatus())
	}

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
}

func (m Model) renderStatus() string {
	if m.StatusIsErr {
		return styles.ErrorStyle.Render(m.StatusMsg)
	}
	return styles.SuccessStyle.Render(m.StatusMsg)
}

func (m Model) renderFooter() string {
	// Left side: spinner while loading, otherwise the status message
	var left string
	if m.Loading {
		left = m.Spinner.View() + styles.DimStyle.Render(" Loading photos...")
		if m.StatusMsg != "" {
			left += "  " + m.renderStatus()
		}
	} else if m.StatusMsg != "" {
		left = m.renderStatus()
	}

	// Center: context-specific hints
	var center string
	switch m.Screen {
	case ViewHome:
		center = styles.KeyHint("s", "search") + "  " + styles.KeyHint("f", "favorite") + "  " + styles.KeyHint("enter", "details")
	case ViewFavorites:
		center = styles.KeyHint("/", "filter") + "  " + styles.KeyHint("x", "remove") + "  " + styles.KeyHint("d", "download")
	}

	right := styles.KeyHint("?", "help")

	leftWidth := lipgloss.Width(left)
	centerWidth := lipgloss.Width(center)
	rightWidth := lipgloss.Width(right)

	if leftWidth+centerWidth+rightWidth >= m.Width {
		gap := max(m.Width-leftWidth-rightWidth, 0)
		return left + strings.Repeat(" ", gap) + right
	}

	available := m.Width - leftWidth - rightWidth
	leftPad := (available - centerWidth) / 2
	rightPad := available - centerWidth - leftPad
	return left + strings.Repeat(" ", leftPad) + center + strings.Repeat(" ", rightPad) + right
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
DISCOVER                        FAVORITES
  h/j/k/l    Move in grid          j/k        Up/down
  s          Search catalog        /          Filter favorites
  /          Filter this page      x          Remove
  r          Refresh               d          Download
  enter      Details               y          Copy link
  f/space    Toggle favorite
  d          Download            PROFILE
  y          Copy download link    e          Edit username
                                   L          Sign out
VIEWS
  1 2 3      Discover/Favorites/Profile
  tab        Next view             ?          This help
  esc        Close / clear         q          Quit

Press any key to return...
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(help))
}

// renderSignOutConfirmation renders the sign-out confirmation modal
func (m Model) renderSignOutConfirmation() string {
	modal := `
              Sign Out?

  Your favorites stay with your account.
  This device switches back to its own
  collection until you sign in again.

        [Y] Yes      [N] No
`

	return lipgloss.Place(m.Width, m.Height,
		lipgloss.Center, lipgloss.Center,
		styles.ModalStyle.Render(modal))
}
