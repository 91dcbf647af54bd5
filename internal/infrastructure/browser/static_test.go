package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/application/services/extract"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAlbumServer(t *testing.T, broken ...int) *httptest.Server {
	t.Helper()
	isBroken := map[int]bool{}
	for _, b := range broken {
		isBroken[b] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/album", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString("<html><body><div class=\"grid\">")
		for i := 1; i <= 4; i++ {
			fmt.Fprintf(&b, `<a href="/detail/%d"><img class="thumb" src="//cdn.example/t/%d.jpg~tplv-abc/wst.avif"></a>`, i, i)
		}
		b.WriteString(`<img class="thumb">`)
		b.WriteString("</div></body></html>")
		w.Write([]byte(b.String()))
	})
	mux.HandleFunc("/detail/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/detail/")
		var n int
		fmt.Sscanf(id, "%d", &n)
		if isBroken[n] {
			w.Write([]byte(`<html><body><p>no download</p></body></html>`))
			return
		}
		fmt.Fprintf(w, `<html><body><a download href="/raw/%d.jpg">原图</a></body></html>`, n)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestStaticSession_LocateReadClickClose(t *testing.T) {
	server := newAlbumServer(t)
	ctx := context.Background()

	s := NewStaticSession(StaticOptions{Timeout: 5 * time.Second})
	require.NoError(t, s.Navigate(ctx, server.URL+"/album"))
	assert.True(t, s.IsAlive(ctx))

	items, err := s.LocateAll(ctx, "img.thumb")
	require.NoError(t, err)
	require.Len(t, items, 5)

	src, ok, err := s.ReadAttribute(ctx, items[0], "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "//cdn.example/t/1.jpg~tplv-abc/wst.avif", src)

	_, ok, err = s.ReadAttribute(ctx, items[4], "src")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Click(ctx, items[1]))
	links, err := s.LocateAll(ctx, "a[download]")
	require.NoError(t, err)
	require.Len(t, links, 1)
	href, _, _ := s.ReadAttribute(ctx, links[0], "href")
	assert.Equal(t, "/raw/2.jpg", href)

	require.NoError(t, s.PressKey(ctx, "Escape"))
	items, err = s.LocateAll(ctx, "img.thumb")
	require.NoError(t, err)
	assert.Len(t, items, 5)

	assert.Error(t, s.Click(ctx, items[4]), "没有链接的元素不能点击")

	require.NoError(t, s.Reload(ctx))
	require.NoError(t, s.Close())
	assert.False(t, s.IsAlive(ctx))

	_, err = s.LocateAll(ctx, "img")
	assert.ErrorIs(t, err, contracts.ErrSessionClosed)
}

func TestStaticSession_WithExtractor(t *testing.T) {
	server := newAlbumServer(t, 3)
	ctx := context.Background()

	task := &entities.TaskConfig{
		ID:        "static",
		TargetURL: server.URL + "/album",
		Automation: entities.AutomationConfig{
			Rules: entities.SelectionRules{ItemSelector: "img.thumb"},
		},
	}

	s := NewStaticSession(StaticOptions{Timeout: 5 * time.Second})
	defer s.Close()
	require.NoError(t, s.Navigate(ctx, task.TargetURL))

	x := extract.NewExtractor(extract.Options{MaxScrollAttempts: 3, StableRounds: 1, ProgressEvery: 10})
	fps, err := x.ExtractFingerprints(ctx, s, task, nil)
	require.NoError(t, err)
	require.Len(t, fps, 5)
	assert.Equal(t, "1.jpg", fps[0].Fingerprint)
	assert.True(t, strings.HasPrefix(fps[4].Fingerprint, "unknown_"))

	targets := map[string]struct{}{"2.jpg": {}, "3.jpg": {}, "4.jpg": {}}
	resolved, err := x.ExtractPhotoURLs(ctx, s, task, targets)
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, server.URL+"/raw/2.jpg", resolved[0].ResourceURL)
	assert.Equal(t, "4.jpg", resolved[1].Filename)
}

func TestFactory_EngineSelection(t *testing.T) {
	f := NewFactory(config.AutomationConfig{Engine: "static"}, "relay-test")

	task := &entities.TaskConfig{ID: "t1"}
	assert.Equal(t, EngineStatic, f.Engine(task))

	s, err := f.Open(context.Background(), task)
	require.NoError(t, err)
	_, ok := s.(*StaticSession)
	assert.True(t, ok)

	task.Automation.Engine = "Chrome"
	assert.Equal(t, EngineChrome, f.Engine(task))

	task.Automation.Engine = "firefox"
	_, err = f.Open(context.Background(), task)
	assert.Error(t, err)

	assert.Equal(t, EngineChrome, NewFactory(config.AutomationConfig{}, "").Engine(&entities.TaskConfig{}))
}

func TestChromeSession_AgainstStaticPage(t *testing.T) {
	path := findChrome()
	if path == "" {
		t.Skip("chrome not installed")
	}
	server := newAlbumServer(t)
	ctx := context.Background()

	s, err := NewChromeSession(ctx, ChromeOptions{ExecPath: path, Headless: true, Timeout: 20 * time.Second})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Navigate(ctx, server.URL+"/album"))
	assert.True(t, s.IsAlive(ctx))

	items, err := s.LocateAll(ctx, "img.thumb")
	require.NoError(t, err)
	require.Len(t, items, 5)

	src, ok, err := s.ReadAttribute(ctx, items[0], "src")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, src, "1.jpg")

	require.NoError(t, s.Close())
	_, err = s.LocateAll(ctx, "img")
	assert.ErrorIs(t, err, contracts.ErrSessionClosed)
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
