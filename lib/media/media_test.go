package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"weibolab/lib/telemetry"
)

func writeFakeJpeg(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	copy(data, []byte{0xff, 0xd8, 0xff})
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"  ", ""},
		{"//wx1.sinaimg.cn/a.jpg", "https://wx1.sinaimg.cn/a.jpg"},
		{"http://wx1.sinaimg.cn/a.jpg", "https://wx1.sinaimg.cn/a.jpg"},
		{"https://wx1.sinaimg.cn/a.jpg", "https://wx1.sinaimg.cn/a.jpg"},
		{"/media_files/a.jpg", "/media_files/a.jpg"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, NormalizeURL(tc.input), "input: %q", tc.input)
	}
}

func TestIsBadURL(t *testing.T) {
	require.True(t, IsBadURL("https://h5.sinaimg.cn/upload/108/1866/foo.png"))
	require.True(t, IsBadURL("https://wx1.sinaimg.cn/crop.0.0.100.100/a.jpg"))
	require.True(t, IsBadURL("https://example.com/svvip_badge.png"))
	require.True(t, IsBadURL("https://tvax2.sinaimg.cn/avatar.jpg"))
	require.False(t, IsBadURL("https://wx1.sinaimg.cn/large/a.jpg"))
}

func TestInferExt(t *testing.T) {
	require.Equal(t, ".png", InferExt("https://x.cn/a.png?b=1", ""))
	require.Equal(t, ".webp", InferExt("https://x.cn/a.webp", "text/html"))
	require.Equal(t, ".png", InferExt("https://x.cn/a", "image/png"))
	require.Equal(t, ".jpg", InferExt("https://x.cn/a", ""))
	require.Equal(t, ".jpg", InferExt("https://x.cn/a.mp4", "video/mp4"))
}

func TestLooksLikeImage(t *testing.T) {
	jpeg := make([]byte, 500)
	copy(jpeg, []byte{0xff, 0xd8, 0xff})
	require.True(t, LooksLikeImage(jpeg))

	tiny := []byte{0xff, 0xd8, 0xff}
	require.False(t, LooksLikeImage(tiny))

	htmlPage := make([]byte, 500)
	copy(htmlPage, []byte("<!DOCTYPE html><HTML><body>login required</body>"))
	require.False(t, LooksLikeImage(htmlPage))
}

func TestIsGoodLocalImage(t *testing.T) {
	r := NewResolver(t.TempDir())

	good := filepath.Join(t.TempDir(), "good.jpg")
	writeFakeJpeg(t, good, 9000)
	require.True(t, r.IsGoodLocalImage(good))

	small := filepath.Join(t.TempDir(), "small.jpg")
	writeFakeJpeg(t, small, 500)
	require.False(t, r.IsGoodLocalImage(small))

	wrongExt := filepath.Join(t.TempDir(), "big.gif")
	writeFakeJpeg(t, wrongExt, 9000)
	require.False(t, r.IsGoodLocalImage(wrongExt))

	require.False(t, r.IsGoodLocalImage(""))
	require.False(t, r.IsGoodLocalImage(filepath.Join(t.TempDir(), "missing.jpg")))
}

func TestEnsureLocal(t *testing.T) {
	r := NewResolver(t.TempDir())

	src := filepath.Join(t.TempDir(), "archived_avatar.jpg")
	writeFakeJpeg(t, src, 9000)

	pub := r.EnsureLocal(src)
	require.Equal(t, PublicPrefix+"archived_avatar.jpg", pub)
	require.FileExists(t, filepath.Join(r.Dir, "archived_avatar.jpg"))

	require.Equal(t, "", r.EnsureLocal(""))
	require.Equal(t, "", r.EnsureLocal(filepath.Join(t.TempDir(), "missing.jpg")))
}

func TestResolveExisting(t *testing.T) {
	r := NewResolver(t.TempDir())
	writeFakeJpeg(t, filepath.Join(r.Dir, "a.jpg"), 9000)

	// public path back into the media dir
	require.Equal(t, filepath.Join(r.Dir, "a.jpg"), r.ResolveExisting(PublicPrefix+"a.jpg"))
	// url sharing a basename with a present file
	require.Equal(t, filepath.Join(r.Dir, "a.jpg"), r.ResolveExisting("https://wx1.sinaimg.cn/large/a.jpg"))
	// nothing local
	require.Equal(t, "", r.ResolveExisting("https://wx1.sinaimg.cn/large/b.jpg"))
	require.Equal(t, "", r.ResolveExisting(""))
}

func TestMaterializeSlotFromLocalFile(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:media")
	defer cleanup()

	r := NewResolver(t.TempDir())
	writeFakeJpeg(t, filepath.Join(r.Dir, "a.jpg"), 9000)

	pub, unresolved := r.MaterializeSlot(context.Background(), "https://wx1.sinaimg.cn/large/a.jpg", "123_img_1", false)
	require.Equal(t, "", unresolved)
	require.Equal(t, PublicPrefix+"123_img_1.jpg", pub)
	require.FileExists(t, filepath.Join(r.Dir, "123_img_1.jpg"))

	// running the same slot again is a no-op with the same result
	again, unresolved := r.MaterializeSlot(context.Background(), "https://wx1.sinaimg.cn/large/a.jpg", "123_img_1", false)
	require.Equal(t, "", unresolved)
	require.Equal(t, pub, again)
}

func TestMaterializeSlotUnresolved(t *testing.T) {
	r := NewResolver(t.TempDir())

	pub, unresolved := r.MaterializeSlot(context.Background(), "//wx1.sinaimg.cn/large/missing.jpg", "123_img_1", false)
	require.Equal(t, "https://wx1.sinaimg.cn/large/missing.jpg", pub)
	require.Equal(t, "https://wx1.sinaimg.cn/large/missing.jpg", unresolved)

	pub, unresolved = r.MaterializeSlot(context.Background(), "", "123_img_1", false)
	require.Equal(t, "", pub)
	require.Equal(t, "", unresolved)
}

func TestLocalCandidates(t *testing.T) {
	r := NewResolver(t.TempDir())
	writeFakeJpeg(t, filepath.Join(r.Dir, "123_img_2.jpg"), 9000)
	writeFakeJpeg(t, filepath.Join(r.Dir, "123_img_1.jpg"), 9000)
	writeFakeJpeg(t, filepath.Join(r.Dir, "123_img_3.jpg"), 500) // placeholder stub

	got := r.LocalCandidates("123_img_*")
	require.Equal(t, []string{
		filepath.Join(r.Dir, "123_img_1.jpg"),
		filepath.Join(r.Dir, "123_img_2.jpg"),
	}, got)
}
