package favorites

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/sahilm/fuzzy"
)

// SharedKey is the single collection used when favorites are scoped to the machine profile.
// It matches the web client's localStorage key.
const SharedKey = "pixora-favorites"

// UserKey is the collection of a signed-in account
func UserKey(userID string) string {
	return SharedKey + ":" + userID
}

// ProfileKey is the collection used while signed out
func ProfileKey(profileID string) string {
	return SharedKey + ":profile:" + profileID
}

// KeyFor picks the active collection for the configured scope.
// A nil user means nobody is signed in.
func KeyFor(scope config.Scope, profileID string, user *domain.User) string {
	if scope == config.ScopeProfile {
		return SharedKey
	}
	if user != nil && user.ID != "" {
		return UserKey(user.ID)
	}
	if profileID == "" {
		return SharedKey
	}
	return ProfileKey(profileID)
}

// Store is the single reader and writer of persisted favorites.
// Every mutation is a read-modify-write of the whole collection under s.mu.
type Store struct {
	kv     domain.KeyValueStore
	logger *slog.Logger

	mu    sync.Mutex
	key   string
	items []domain.Favorite

	subMu   sync.Mutex
	subs    map[int]func(domain.FavoritesEvent)
	nextSub int
}

// NewStore creates a favorites store over kv, reading the collection under key
func NewStore(kv domain.KeyValueStore, key string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:     kv,
		logger: logger,
		key:    key,
		subs:   make(map[int]func(domain.FavoritesEvent)),
	}
	s.items = s.read()
	return s
}

// Key returns the storage key of the active collection
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Use switches to another collection and loads it
func (s *Store) Use(key string) []domain.Favorite {
	s.mu.Lock()
	if key == s.key {
		s.mu.Unlock()
		return s.Load()
	}
	s.key = key
	s.items = s.read()
	items := slices.Clone(s.items)
	s.mu.Unlock()

	s.logger.Info("favorites collection switched", "key", key, "count", len(items))
	s.notify(domain.FavoritesEvent{Key: key, Count: len(items)})
	return items
}

// Load reads the persisted collection. Missing, unreadable or malformed
// data yields an empty collection; it never fails.
func (s *Store) Load() []domain.Favorite {
	s.mu.Lock()
	s.items = s.read()
	items := slices.Clone(s.items)
	s.mu.Unlock()
	return items
}

// List returns the collection in insertion order
func (s *Store) List() []domain.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Count returns the number of favorites
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IsFavorited reports whether id is in the collection
func (s *Store) IsFavorited(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return indexOf(s.items, id) >= 0
}

// Get returns the favorite with id
func (s *Store) Get(id string) (domain.Favorite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i], true
	}
	return domain.Favorite{}, false
}

// Add inserts entry. An entry whose id is already present is left untouched.
func (s *Store) Add(entry domain.Favorite) error {
	if entry.ID == "" {
		return fmt.Errorf("favorite has no id")
	}

	s.mu.Lock()
	items, err := s.readForUpdate()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if indexOf(items, entry.ID) >= 0 {
		s.items = items
		s.mu.Unlock()
		return nil
	}
	items = append(items, entry)
	if err := s.write(items); err != nil {
		s.mu.Unlock()
		return err
	}
	key, count := s.key, len(items)
	s.mu.Unlock()

	s.logger.Debug("favorite added", "id", entry.ID, "key", key)
	s.notify(domain.FavoritesEvent{Key: key, Count: count, ID: entry.ID, Favorited: true})
	return nil
}

// Remove deletes the entry with id; absent ids are ignored
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	items, err := s.readForUpdate()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := indexOf(items, id)
	if i < 0 {
		s.items = items
		s.mu.Unlock()
		return nil
	}
	items = slices.Delete(items, i, i+1)
	if err := s.write(items); err != nil {
		s.mu.Unlock()
		return err
	}
	key, count := s.key, len(items)
	s.mu.Unlock()

	s.logger.Debug("favorite removed", "id", id, "key", key)
	s.notify(domain.FavoritesEvent{Key: key, Count: count, ID: id, Favorited: false})
	return nil
}

// Toggle removes photo if favorited, otherwise adds a snapshot of it.
// It returns the new favorited state.
func (s *Store) Toggle(photo domain.Photo) (bool, error) {
	if s.IsFavorited(photo.ID) {
		if err := s.Remove(photo.ID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.Add(domain.FavoriteFromPhoto(photo)); err != nil {
		return false, err
	}
	return true, nil
}

// Annotate pairs each photo with its favorite status
func (s *Store) Annotate(photos []domain.Photo) []domain.AnnotatedPhoto {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(s.items))
	for _, f := range s.items {
		ids[f.ID] = struct{}{}
	}
	out := make([]domain.AnnotatedPhoto, len(photos))
	for i, p := range photos {
		_, ok := ids[p.ID]
		out[i] = domain.AnnotatedPhoto{Photo: p, Favorited: ok}
	}
	return out
}

// Subscribe registers fn for change events and returns a function that unregisters it
func (s *Store) Subscribe(fn func(domain.FavoritesEvent)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(ev domain.FavoritesEvent) {
	s.subMu.Lock()
	fns := make([]func(domain.FavoritesEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// read loads the collection under s.key for display. Caller holds s.mu.
func (s *Store) read() []domain.Favorite {
	items, err := s.readForUpdate()
	if err != nil {
		return nil
	}
	return items
}

// readForUpdate loads the collection a mutation builds on. A storage error is
// returned so the caller never persists a collection it could not read;
// malformed data still counts as empty and is replaced by the next write.
// Caller holds s.mu.
func (s *Store) readForUpdate() ([]domain.Favorite, error) {
	data, ok, err := s.kv.Get(s.key)
	if err != nil {
		s.logger.Warn("failed to read favorites", "key", s.key, "error", err)
		return nil, fmt.Errorf("failed to read favorites: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}

	items, err := Decode(data)
	if err != nil {
		s.logger.Warn("discarding malformed favorites", "key", s.key, "error", err)
		return nil, nil
	}
	return items, nil
}

// write persists items and, on success, makes them current. Caller holds s.mu.
func (s *Store) write(items []domain.Favorite) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode favorites: %w", err)
	}
	if err := s.kv.Set(s.key, data); err != nil {
		s.logger.Error("failed to persist favorites", "key", s.key, "error", err)
		return fmt.Errorf("failed to persist favorites: %w", err)
	}
	s.items = items
	return nil
}

// Decode parses a persisted collection, dropping entries without an id and
// collapsing duplicate ids to their first occurrence.
func Decode(data []byte) ([]domain.Favorite, error) {
	var raw []domain.Favorite
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	items := make([]domain.Favorite, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, f := range raw {
		if f.ID == "" {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		items = append(items, f)
	}
	return items, nil
}

func indexOf(items []domain.Favorite, id string) int {
	return slices.IndexFunc(items, func(f domain.Favorite) bool { return f.ID == id })
}

// favoriteSource adapts favorites for fuzzy matching
type favoriteSource []domain.Favorite

func (f favoriteSource) String(i int) string { return f[i].GetTitle() }
func (f favoriteSource) Len() int            { return len(f) }

// Filter returns favorites whose attribution fuzzy-matches query, best first.
// An empty query returns the full list in insertion order.
func Filter(items []domain.Favorite, query string) []domain.Favorite {
	if query == "" {
		return items
	}
	matches := fuzzy.FindFrom(query, favoriteSource(items))
	out := make([]domain.Favorite, len(matches))
	for i, m := range matches {
		out[i] = items[m.Index]
	}
	return out
}
