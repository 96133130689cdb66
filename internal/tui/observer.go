package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/pixora/internal/domain"
)

// ChannelObserver adapts store and session callbacks to a channel for Bubble Tea.
type ChannelObserver struct {
	ch chan tea.Msg
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(size int) *ChannelObserver {
	return &ChannelObserver{ch: make(chan tea.Msg, size)}
}

// Events returns the receive side for ListenCmd
func (o *ChannelObserver) Events() <-chan tea.Msg {
	return o.ch
}

// OnFavorites forwards a favorites change (non-blocking if full).
func (o *ChannelObserver) OnFavorites(ev domain.FavoritesEvent) {
	o.send(FavoritesChangedMsg{Event: ev})
}

// OnSession forwards a session change (non-blocking if full).
func (o *ChannelObserver) OnSession(ev domain.SessionEvent) {
	o.send(SessionChangedMsg{Event: ev})
}

func (o *ChannelObserver) send(msg tea.Msg) {
	select {
	case o.ch <- msg:
	default: // Non-blocking if channel full
	}
}
