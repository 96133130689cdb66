package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mmcdole/pixora/internal/config"
	"github.com/mmcdole/pixora/internal/domain"
	"github.com/mmcdole/pixora/internal/log"
	"github.com/mmcdole/pixora/internal/unsplash"
	"gotest.tools/v3/assert"
)

type recordingOpener struct {
	opened []string
	err    error
}

func (r *recordingOpener) Open(url string) error {
	if r.err != nil {
		return r.err
	}
	r.opened = append(r.opened, url)
	return nil
}

type recordingCopier struct{ copied []string }

func (r *recordingCopier) Copy(text string) error {
	r.copied = append(r.copied, text)
	return nil
}

func catalogServer(t *testing.T, h http.HandlerFunc) *unsplash.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return unsplash.NewClient(unsplash.Options{BaseURL: srv.URL, AccessKey: "k"}, log.NullLogger())
}

func TestDownload_OpenMode(t *testing.T) {
	client := catalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"https://images.example/abc.jpg"}`)
	})
	opener := &recordingOpener{}
	svc := NewService(client, opener, nil, config.DownloadConfig{Mode: config.DownloadOpen}, log.NullLogger())

	out, err := svc.Download(context.Background(), Target{ID: "abc", DownloadLocation: "/photos/abc/download"})
	assert.NilError(t, err)
	assert.Equal(t, out.URL, "https://images.example/abc.jpg")
	assert.DeepEqual(t, opener.opened, []string{"https://images.example/abc.jpg"})
}

func TestDownload_IssuanceFailureOpensNothing(t *testing.T) {
	client := catalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	opener := &recordingOpener{}
	dir := t.TempDir()

	for _, mode := range []config.DownloadMode{config.DownloadOpen, config.DownloadSave} {
		t.Run(string(mode), func(t *testing.T) {
			svc := NewService(client, opener, nil, config.DownloadConfig{Mode: mode, Dir: dir}, log.NullLogger())

			_, err := svc.Download(context.Background(), Target{ID: "abc", DownloadLocation: "/photos/abc/download"})
			assert.Check(t, errors.Is(err, domain.ErrDownloadFailed))
			assert.Check(t, errors.Is(err, domain.ErrUpstream))
			assert.Equal(t, len(opener.opened), 0)

			entries, err := os.ReadDir(dir)
			assert.NilError(t, err)
			assert.Equal(t, len(entries), 0)
		})
	}
}

func TestDownload_SaveMode(t *testing.T) {
	image := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG fake"))
	}))
	t.Cleanup(image.Close)

	client := catalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"url":%q}`, image.URL+"/abc")
	})
	dir := filepath.Join(t.TempDir(), "Pictures")
	svc := NewService(client, &recordingOpener{}, nil, config.DownloadConfig{Mode: config.DownloadSave, Dir: dir}, log.NullLogger())

	out, err := svc.Download(context.Background(), Target{ID: "abc", DownloadLocation: "/photos/abc/download", AuthorName: "Jane Doe"})
	assert.NilError(t, err)
	assert.Equal(t, out.Path, filepath.Join(dir, "jane-doe-abc.png"))

	data, err := os.ReadFile(out.Path)
	assert.NilError(t, err)
	assert.Equal(t, string(data), "\x89PNG fake")
}

func TestDownload_OpenerFailure(t *testing.T) {
	client := catalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"https://images.example/abc.jpg"}`)
	})
	svc := NewService(client, &recordingOpener{err: errors.New("no browser")}, nil, config.DownloadConfig{}, log.NullLogger())

	out, err := svc.Download(context.Background(), Target{ID: "abc", DownloadLocation: "/photos/abc/download"})
	assert.Check(t, errors.Is(err, domain.ErrDownloadFailed))
	assert.Equal(t, out.URL, "https://images.example/abc.jpg")
}

func TestCopyLink(t *testing.T) {
	client := catalogServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"https://images.example/abc.jpg"}`)
	})
	copier := &recordingCopier{}
	svc := NewService(client, &recordingOpener{}, copier, config.DownloadConfig{}, log.NullLogger())

	url, err := svc.CopyLink(context.Background(), TargetFromFavorite(domain.Favorite{ID: "abc", DownloadEndpoint: "/photos/abc/download"}))
	assert.NilError(t, err)
	assert.Equal(t, url, "https://images.example/abc.jpg")
	assert.DeepEqual(t, copier.copied, []string{url})
}

func TestFileName(t *testing.T) {
	tests := []struct {
		target      Target
		contentType string
		want        string
	}{
		{Target{ID: "Xy1", AuthorName: "Jane Doe"}, "image/jpeg", "jane-doe-Xy1.jpg"},
		{Target{ID: "Xy1"}, "", "pixora-image-Xy1.jpg"},
		{Target{ID: "a_b", AuthorName: "  Émile  Zola!! "}, "image/webp; q=1", "émile-zola-a_b.webp"},
	}
	for _, tt := range tests {
		assert.Equal(t, FileName(tt.target, tt.contentType), tt.want)
	}
}
