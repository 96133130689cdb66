package favorites_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/favorites"
	"github.com/mmcdole/pixora/internal/log"
	"github.com/mmcdole/pixora/internal/store"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func photo(id string) domain.Photo {
	return domain.Photo{
		ID:               id,
		SmallURL:         "https://img/" + id + "/small",
		RegularURL:       "https://img/" + id + "/regular",
		AuthorName:       "Author " + id,
		AuthorUsername:   "author_" + id,
		DownloadLocation: "https://api.unsplash.com/photos/" + id + "/download",
	}
}

func newStore(t *testing.T) (*favorites.Store, domain.KeyValueStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })
	return favorites.NewStore(kv, favorites.SharedKey, log.NullLogger()), kv
}

func ids(items []domain.Favorite) []string {
	out := make([]string, len(items))
	for i, f := range items {
		out[i] = f.ID
	}
	return out
}

func TestToggle_OnEmptyStore(t *testing.T) {
	s, _ := newStore(t)

	on, err := s.Toggle(photo("imageA"))
	assert.NilError(t, err)
	assert.Check(t, on)

	assert.DeepEqual(t, ids(s.List()), []string{"imageA"})
	assert.Check(t, s.IsFavorited("imageA"))

	f, ok := s.Get("imageA")
	assert.Check(t, ok)
	assert.Equal(t, f.ThumbnailURL, "https://img/imageA/small")
	assert.Equal(t, f.FullURL, "https://img/imageA/regular")
	assert.Equal(t, f.AttributionName, "Author imageA")
	assert.Equal(t, f.AttributionHandle, "author_imageA")
	assert.Equal(t, f.DownloadEndpoint, "https://api.unsplash.com/photos/imageA/download")
}

func TestToggle_InverseLaw(t *testing.T) {
	s, _ := newStore(t)
	assert.NilError(t, s.Add(domain.FavoriteFromPhoto(photo("x"))))
	before := s.List()

	on, err := s.Toggle(photo("y"))
	assert.NilError(t, err)
	assert.Check(t, on)
	on, err = s.Toggle(photo("y"))
	assert.NilError(t, err)
	assert.Check(t, !on)

	assert.DeepEqual(t, s.List(), before)
}

func TestAdd_Idempotent(t *testing.T) {
	s, _ := newStore(t)
	first := domain.Favorite{ID: "a", AttributionName: "First"}

	assert.NilError(t, s.Add(first))
	assert.NilError(t, s.Add(domain.Favorite{ID: "a", AttributionName: "Second"}))

	items := s.List()
	assert.Equal(t, len(items), 1)
	assert.Equal(t, items[0].AttributionName, "First")
}

func TestAdd_RejectsMissingID(t *testing.T) {
	s, _ := newStore(t)
	assert.ErrorContains(t, s.Add(domain.Favorite{}), "no id")
	assert.Equal(t, s.Count(), 0)
}

func TestRemove_NonExistentLeavesStoreUnchanged(t *testing.T) {
	s, _ := newStore(t)
	assert.NilError(t, s.Add(domain.Favorite{ID: "x"}))

	assert.NilError(t, s.Remove("y"))
	assert.DeepEqual(t, ids(s.List()), []string{"x"})
}

func TestList_InsertionOrder(t *testing.T) {
	s, _ := newStore(t)
	for _, id := range []string{"c", "a", "b"} {
		assert.NilError(t, s.Add(domain.Favorite{ID: id}))
	}
	assert.NilError(t, s.Remove("a"))
	assert.NilError(t, s.Add(domain.Favorite{ID: "a"}))

	assert.DeepEqual(t, ids(s.List()), []string{"c", "b", "a"})
}

func TestPersistence_RoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.db")

	kv, err := store.NewBoltStore(path)
	assert.NilError(t, err)
	s := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())
	assert.NilError(t, s.Add(domain.FavoriteFromPhoto(photo("a"))))
	assert.NilError(t, s.Add(domain.FavoriteFromPhoto(photo("b"))))
	want := s.List()
	assert.NilError(t, kv.Close())

	kv, err = store.NewBoltStore(path)
	assert.NilError(t, err)
	defer kv.Close()
	reopened := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())

	got := reopened.Load()
	assert.Equal(t, len(got), len(want))
	for i := range want {
		assert.Equal(t, got[i].ID, want[i].ID)
		assert.Equal(t, got[i].ThumbnailURL, want[i].ThumbnailURL)
		assert.Equal(t, got[i].DownloadEndpoint, want[i].DownloadEndpoint)
		assert.Check(t, got[i].AddedAt.Equal(want[i].AddedAt))
	}
}

func TestLoad_MalformedDataYieldsEmpty(t *testing.T) {
	for _, raw := range []string{"{not json", `{"id":"a"}`, `"string"`, `[1,2,3]`} {
		t.Run(raw, func(t *testing.T) {
			kv := store.NewMemoryStore()
			assert.NilError(t, kv.Set(favorites.SharedKey, []byte(raw)))

			s := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())
			assert.Equal(t, len(s.Load()), 0)

			// The store remains usable and the next write replaces the garbage
			assert.NilError(t, s.Add(domain.Favorite{ID: "a"}))
			data, _, _ := kv.Get(favorites.SharedKey)
			assert.Check(t, is.Contains(string(data), `"id":"a"`))
		})
	}
}

func TestLoad_DropsEntriesWithoutIDAndDuplicates(t *testing.T) {
	kv := store.NewMemoryStore()
	assert.NilError(t, kv.Set(favorites.SharedKey, []byte(`[{"id":"a","photographer":"one"},{"url":"x"},{"id":"a","photographer":"two"},{"id":"b"}]`)))

	s := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())
	items := s.Load()
	assert.DeepEqual(t, ids(items), []string{"a", "b"})
	assert.Equal(t, items[0].AttributionName, "one")
}

type failingKV struct {
	domain.KeyValueStore
	readErr  error
	writeErr error
}

func (f failingKV) Get(key string) ([]byte, bool, error) {
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	return f.KeyValueStore.Get(key)
}

func (f failingKV) Set(key string, value []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.KeyValueStore.Set(key, value)
}

func TestLoad_StorageErrorYieldsEmpty(t *testing.T) {
	kv := failingKV{KeyValueStore: store.NewMemoryStore(), readErr: errors.New("disk gone")}
	s := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())
	assert.Equal(t, len(s.Load()), 0)
}

// flakyKV fails the next failReads calls to Get
type flakyKV struct {
	domain.KeyValueStore
	failReads int
}

func (f *flakyKV) Get(key string) ([]byte, bool, error) {
	if f.failReads > 0 {
		f.failReads--
		return nil, false, errors.New("database is locked")
	}
	return f.KeyValueStore.Get(key)
}

func TestMutations_ReadErrorKeepsCollection(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(s *favorites.Store) error
	}{
		{"add", func(s *favorites.Store) error { return s.Add(domain.Favorite{ID: "d"}) }},
		{"remove", func(s *favorites.Store) error { return s.Remove("b") }},
		{"toggle", func(s *favorites.Store) error { _, err := s.Toggle(photo("d")); return err }},
		{"import", func(s *favorites.Store) error {
			_, err := s.Import(strings.NewReader(`[{"id":"d"}]`))
			return err
		}},
	}

	for _, tc := range mutations {
		t.Run(tc.name, func(t *testing.T) {
			mem := store.NewMemoryStore()
			t.Cleanup(func() { mem.Close() })
			kv := &flakyKV{KeyValueStore: mem}
			s := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())
			for _, id := range []string{"a", "b", "c"} {
				assert.NilError(t, s.Add(domain.Favorite{ID: id}))
			}
			before, _, err := mem.Get(favorites.SharedKey)
			assert.NilError(t, err)

			kv.failReads = 1
			err = tc.mutate(s)
			assert.ErrorContains(t, err, "database is locked")

			after, _, err := mem.Get(favorites.SharedKey)
			assert.NilError(t, err)
			assert.Equal(t, string(after), string(before))
			assert.DeepEqual(t, ids(s.List()), []string{"a", "b", "c"})

			reopened := favorites.NewStore(mem, favorites.SharedKey, log.NullLogger())
			assert.DeepEqual(t, ids(reopened.List()), []string{"a", "b", "c"})
		})
	}
}

func TestAdd_PersistFailureLeavesCollectionUnchanged(t *testing.T) {
	boom := errors.New("quota exceeded")
	kv := failingKV{KeyValueStore: store.NewMemoryStore(), writeErr: boom}
	s := favorites.NewStore(kv, favorites.SharedKey, log.NullLogger())

	on, err := s.Toggle(photo("a"))
	assert.Check(t, errors.Is(err, boom))
	assert.Check(t, !on)
	assert.Check(t, !s.IsFavorited("a"))
}

func TestSubscribe(t *testing.T) {
	s, _ := newStore(t)

	var events []domain.FavoritesEvent
	unsubscribe := s.Subscribe(func(ev domain.FavoritesEvent) { events = append(events, ev) })

	_, err := s.Toggle(photo("a"))
	assert.NilError(t, err)
	_, err = s.Toggle(photo("a"))
	assert.NilError(t, err)
	// No-op mutations are silent
	assert.NilError(t, s.Remove("missing"))

	unsubscribe()
	_, err = s.Toggle(photo("b"))
	assert.NilError(t, err)

	assert.DeepEqual(t, events, []domain.FavoritesEvent{
		{Key: favorites.SharedKey, Count: 1, ID: "a", Favorited: true},
		{Key: favorites.SharedKey, Count: 0, ID: "a", Favorited: false},
	})
}

func TestUse_SwitchesCollections(t *testing.T) {
	s, kv := newStore(t)
	assert.NilError(t, s.Add(domain.Favorite{ID: "shared"}))

	var last domain.FavoritesEvent
	s.Subscribe(func(ev domain.FavoritesEvent) { last = ev })

	items := s.Use(favorites.UserKey("user-1"))
	assert.Equal(t, len(items), 0)
	assert.Equal(t, last.Key, "pixora-favorites:user-1")
	assert.NilError(t, s.Add(domain.Favorite{ID: "mine"}))

	items = s.Use(favorites.SharedKey)
	assert.DeepEqual(t, ids(items), []string{"shared"})
	assert.Check(t, !s.IsFavorited("mine"))

	data, ok, err := kv.Get("pixora-favorites:user-1")
	assert.NilError(t, err)
	assert.Check(t, ok)
	assert.Check(t, is.Contains(string(data), `"mine"`))
}

func TestKeyFor(t *testing.T) {
	user := &domain.User{ID: "u1"}
	assert.Equal(t, favorites.KeyFor(config.ScopeUser, "prof", user), "pixora-favorites:u1")
	assert.Equal(t, favorites.KeyFor(config.ScopeUser, "prof", nil), "pixora-favorites:profile:prof")
	assert.Equal(t, favorites.KeyFor(config.ScopeUser, "", nil), "pixora-favorites")
	assert.Equal(t, favorites.KeyFor(config.ScopeProfile, "prof", user), "pixora-favorites")
}

func TestAnnotate(t *testing.T) {
	s, _ := newStore(t)
	assert.NilError(t, s.Add(domain.Favorite{ID: "b"}))

	got := s.Annotate([]domain.Photo{photo("a"), photo("b")})
	assert.Check(t, !got[0].Favorited)
	assert.Check(t, got[1].Favorited)
	assert.Equal(t, got[1].ID, "b")
}

func TestFilter(t *testing.T) {
	items := []domain.Favorite{
		{ID: "1", AttributionName: "Jane Doe", AttributionHandle: "janed"},
		{ID: "2", AttributionName: "Kai Storm", AttributionHandle: "kstorm"},
		{ID: "3", AttributionName: "Joan Dune", AttributionHandle: "jdune"},
	}

	assert.DeepEqual(t, ids(favorites.Filter(items, "")), []string{"1", "2", "3"})
	assert.DeepEqual(t, ids(favorites.Filter(items, "storm")), []string{"2"})
	assert.Equal(t, len(favorites.Filter(items, "zzz")), 0)
}

func TestExportImport(t *testing.T) {
	src, _ := newStore(t)
	assert.NilError(t, src.Add(domain.FavoriteFromPhoto(photo("a"))))
	assert.NilError(t, src.Add(domain.FavoriteFromPhoto(photo("b"))))

	var buf bytes.Buffer
	assert.NilError(t, src.Export(&buf))
	assert.Check(t, is.Contains(buf.String(), `"fullUrl"`))

	dst, _ := newStore(t)
	assert.NilError(t, dst.Add(domain.Favorite{ID: "b", AttributionName: "kept"}))

	report, err := dst.Import(&buf)
	assert.NilError(t, err)
	assert.Equal(t, report, favorites.ImportReport{Added: 1, Skipped: 1})
	assert.DeepEqual(t, ids(dst.List()), []string{"b", "a"})

	b, _ := dst.Get("b")
	assert.Equal(t, b.AttributionName, "kept")
}

func TestImport_WebClientLayout(t *testing.T) {
	s, _ := newStore(t)
	web := `[
		{"id":"Xy1","url":"https://img/small","fullUrl":"https://img/regular","photographer":"Jane","username":"jane","download":"https://unsplash.com/photos/Xy1/download"},
		{"url":"no id"}
	]`

	report, err := s.Import(strings.NewReader(web))
	assert.NilError(t, err)
	assert.Equal(t, report, favorites.ImportReport{Added: 1, Skipped: 1})

	f, ok := s.Get("Xy1")
	assert.Check(t, ok)
	assert.Equal(t, f.ThumbnailURL, "https://img/small")
	assert.Equal(t, f.AttributionHandle, "jane")
	assert.Equal(t, f.DownloadEndpoint, "https://api.unsplash.com/photos/Xy1/download")
}

func TestImport_RejectsMalformedFile(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Import(strings.NewReader("nope"))
	assert.ErrorContains(t, err, "failed to parse favorites file")
	assert.Equal(t, s.Count(), 0)
}
