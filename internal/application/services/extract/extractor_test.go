package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/application/services/servicetest"
	"github.com/easayliu/alist-photo-relay/internal/domain/entities"
	"github.com/easayliu/alist-photo-relay/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return Options{
		MaxScrollAttempts: 50,
		StableRounds:      3,
		ProgressEvery:     2,
	}
}

func testTask() *entities.TaskConfig {
	return &entities.TaskConfig{ID: "t1", TargetURL: "https://example.com/album/1"}
}

func photo(n int) servicetest.Item {
	return servicetest.Item{
		Thumb: fmt.Sprintf("//cdn.example/a/b/%d.jpg~tplv-xyz/wst/3:480:1000:gif.avif", n),
		Full:  fmt.Sprintf("//cdn.example/full/%d.jpg?sig=abc", n),
	}
}

func TestExtractFingerprints_LazyLoadingUntilStable(t *testing.T) {
	items := []servicetest.Item{photo(1), photo(2), photo(3), photo(4), photo(5)}
	s := servicetest.NewSession(items...)
	s.SetVisibleSteps(2, 4, 5)

	var progress [][2]int
	x := NewExtractor(testOptions())
	fps, err := x.ExtractFingerprints(context.Background(), s, testTask(), func(cur, total int) {
		progress = append(progress, [2]int{cur, total})
	})
	require.NoError(t, err)

	require.Len(t, fps, 5)
	for i, fp := range fps {
		assert.Equal(t, i, fp.Ordinal)
		assert.Equal(t, fmt.Sprintf("%d.jpg", i+1), fp.Fingerprint)
	}
	// 2 -> 4 -> 5，然后连续 3 次不变
	assert.Equal(t, 5, s.Scrolls())
	assert.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)
}

func TestExtractFingerprints_CeilingWarnsButReturns(t *testing.T) {
	s := servicetest.NewSession(photo(1), photo(2), photo(3))
	s.SetVisibleSteps(1, 2, 3)

	opts := testOptions()
	opts.MaxScrollAttempts = 2
	fps, err := NewExtractor(opts).ExtractFingerprints(context.Background(), s, testTask(), nil)
	require.NoError(t, err)
	assert.Len(t, fps, 2)
}

func TestExtractFingerprints_MissingThumbnailFallsBack(t *testing.T) {
	s := servicetest.NewSession(photo(1), servicetest.Item{NoThumb: true}, servicetest.Item{Thumb: ""})

	fps, err := NewExtractor(testOptions()).ExtractFingerprints(context.Background(), s, testTask(), nil)
	require.NoError(t, err)
	require.Len(t, fps, 3)

	assert.Equal(t, "1.jpg", fps[0].Fingerprint)
	assert.True(t, strings.HasPrefix(fps[1].Fingerprint, "unknown_"))
	assert.True(t, strings.HasSuffix(fps[1].Fingerprint, "_1"))
	assert.True(t, strings.HasSuffix(fps[2].Fingerprint, "_2"))
}

func TestExtractFingerprints_SessionClosedPropagates(t *testing.T) {
	s := servicetest.NewSession(photo(1))
	s.Crash()

	_, err := NewExtractor(testOptions()).ExtractFingerprints(context.Background(), s, testTask(), nil)
	assert.ErrorIs(t, err, contracts.ErrSessionClosed)
}

func TestExtractPhotoURLs_PartialResolution(t *testing.T) {
	var items []servicetest.Item
	targets := make(map[string]struct{})
	for i := 1; i <= 10; i++ {
		item := photo(i)
		switch i {
		case 2:
			item.FailOpen = true
		case 5, 9:
			item.Full = ""
		}
		items = append(items, item)
		targets[fmt.Sprintf("%d.jpg", i)] = struct{}{}
	}
	// 不在 targets 中的条目不应被点击
	items = append(items, photo(11), photo(12))
	s := servicetest.NewSession(items...)

	resolved, err := NewExtractor(testOptions()).ExtractPhotoURLs(context.Background(), s, testTask(), targets)
	require.NoError(t, err)
	require.Len(t, resolved, 7)

	got := make([]string, 0, len(resolved))
	for _, r := range resolved {
		got = append(got, r.Fingerprint)
	}
	assert.NotContains(t, got, "2.jpg")
	assert.NotContains(t, got, "5.jpg")
	assert.NotContains(t, got, "9.jpg")
	assert.Equal(t, 10, s.Clicks)

	first := resolved[0]
	assert.Equal(t, "1.jpg", first.Fingerprint)
	assert.Equal(t, "https://cdn.example/full/1.jpg?sig=abc", first.ResourceURL)
	assert.Equal(t, "1.jpg", first.Filename)
}

func TestExtractPhotoURLs_OnlyTargetsAndDuplicatesOnce(t *testing.T) {
	s := servicetest.NewSession(photo(1), photo(2), photo(2), photo(3))

	resolved, err := NewExtractor(testOptions()).ExtractPhotoURLs(context.Background(), s, testTask(),
		map[string]struct{}{"2.jpg": {}})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, 1, resolved[0].Ordinal)
	assert.Equal(t, 1, s.Clicks)
}

func TestExtractPhotoURLs_EmptyTargets(t *testing.T) {
	s := servicetest.NewSession(photo(1))
	resolved, err := NewExtractor(testOptions()).ExtractPhotoURLs(context.Background(), s, testTask(), nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Equal(t, 0, s.Locates)
}

func TestExtractPhotoURLs_Cancelled(t *testing.T) {
	s := servicetest.NewSession(photo(1), photo(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor(testOptions()).ExtractPhotoURLs(ctx, s, testTask(), map[string]struct{}{"1.jpg": {}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsFromConfigDefaults(t *testing.T) {
	opts := OptionsFromConfig(config.ExtractionConfig{})
	assert.Equal(t, DefaultOptions(), opts)
}
