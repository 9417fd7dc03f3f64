package bundle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"weibolab/lib/media"
	"weibolab/lib/scrapers/weibo"
)

func TestLocalizeWithoutDownloads(t *testing.T) {
	r := media.NewResolver(t.TempDir())
	// pre-seeded files from an earlier archive run
	writeFakeJpeg(t, filepath.Join(r.Dir, "甲_111_avatar.jpg"), 9000)
	writeFakeJpeg(t, filepath.Join(r.Dir, "111_img_1.jpg"), 9000)
	writeFakeJpeg(t, filepath.Join(r.Dir, "111_img_2.jpg"), 9000)

	b := &Bundle{
		Topic: "#某话题#",
		Posts: []*Post{
			{
				PostRow: weibo.PostRow{
					PostID:          "111",
					AuthorName:      "甲",
					ContentText:     "第一条",
					AuthorAvatarURL: "https://wx1.sinaimg.cn/av1.jpg",
				},
				Images: []string{"https://wx1.sinaimg.cn/a.jpg"},
			},
			{
				PostRow: weibo.PostRow{
					PostID:          "222",
					AuthorName:      "乙",
					AuthorAvatarURL: "https://wx2.sinaimg.cn/av2.jpg",
				},
				Images:      []string{"https://wx2.sinaimg.cn/c.jpg"},
				VideoPoster: "https://wx2.sinaimg.cn/poster.jpg",
			},
		},
		Smart:    Smart{Gallery: []string{"https://wx1.sinaimg.cn/g1.jpg"}},
		VideoMap: map[string]*VideoMapEntry{"222": {VideoURL: "https://f.video.weibocdn.com/v.mp4", Poster: "https://wx2.sinaimg.cn/c.jpg"}},
	}

	m := Localize(context.Background(), b, r, false)

	// post 111 resolves entirely from local candidates
	first := m.Posts[0]
	require.Equal(t, media.PublicPrefix+"甲_111_avatar.jpg", first.Avatar)
	require.Equal(t, []string{
		media.PublicPrefix + "111_img_1.jpg",
		media.PublicPrefix + "111_img_2.jpg",
	}, first.Images)
	require.Equal(t, first.Images, b.Posts[0].Images)
	// no poster anywhere, so the first localized image stands in
	require.Equal(t, media.PublicPrefix+"111_img_1.jpg", first.VideoPoster)

	// post 222 has nothing local and downloads are off, every reference
	// stays remote and is reported
	second := m.Posts[1]
	require.Equal(t, "https://wx2.sinaimg.cn/av2.jpg", second.Avatar)
	require.Equal(t, []string{"https://wx2.sinaimg.cn/c.jpg"}, second.Images)
	require.Equal(t, "https://wx2.sinaimg.cn/poster.jpg", second.VideoPoster)

	// gallery stays remote too
	require.Equal(t, []string{"https://wx1.sinaimg.cn/g1.jpg"}, b.Smart.Gallery)
	// video_map posters are only rewritten on success
	require.Equal(t, "https://wx2.sinaimg.cn/c.jpg", b.VideoMap["222"].Poster)

	fields := map[string]int{}
	for _, u := range m.UnresolvedAssets {
		fields[u.PostID+"/"+u.Field]++
	}
	require.Equal(t, map[string]int{
		"222/author_avatar_url":  1,
		"222/images[0]":          1,
		"222/video_poster":       1,
		"smart/smart.gallery[0]": 1,
		"222/video_map.poster":   1,
	}, fields)

	require.Equal(t, len(b.Posts), m.Stats.Posts)
	require.Equal(t, len(m.UnresolvedAssets), m.Stats.UnresolvedAssets)
	require.Equal(t, m.Stats, b.AssetManifest)
}

func TestLocalizeMaterializesFromMediaDir(t *testing.T) {
	r := media.NewResolver(t.TempDir())
	// a remote-named file already sitting in the media dir resolves by
	// basename and is copied into the slot name
	writeFakeJpeg(t, filepath.Join(r.Dir, "abc123.jpg"), 9000)

	b := &Bundle{
		Topic: "#某话题#",
		Posts: []*Post{{
			PostRow: weibo.PostRow{PostID: "333"},
			Images:  []string{"https://wx1.sinaimg.cn/orj360/abc123.jpg"},
		}},
		VideoMap: map[string]*VideoMapEntry{},
	}

	m := Localize(context.Background(), b, r, false)
	require.Empty(t, m.UnresolvedAssets)
	require.Equal(t, []string{media.PublicPrefix + "333_img_1.jpg"}, b.Posts[0].Images)
	require.Equal(t, media.PublicPrefix+"333_img_1.jpg", b.Posts[0].VideoPoster)
	require.Equal(t, AssetStats{Posts: 1, UnresolvedAssets: 0}, b.AssetManifest)
}

func TestLocalizePosterCandidatesExactMid(t *testing.T) {
	r := media.NewResolver(t.TempDir())
	writeFakeJpeg(t, filepath.Join(r.Dir, "90123_poster.jpg"), 9000)

	b := &Bundle{
		Topic: "#某话题#",
		Posts: []*Post{
			{
				PostRow:     weibo.PostRow{PostID: "123"},
				Images:      []string{},
				VideoPoster: "https://wx1.sinaimg.cn/own_poster.jpg",
			},
			{
				PostRow: weibo.PostRow{PostID: "90123"},
				Images:  []string{},
			},
		},
		VideoMap: map[string]*VideoMapEntry{},
	}

	m := Localize(context.Background(), b, r, false)

	// post 123 must not steal the poster archived for post 90123
	require.Equal(t, "https://wx1.sinaimg.cn/own_poster.jpg", m.Posts[0].VideoPoster)
	require.Equal(t, media.PublicPrefix+"90123_poster.jpg", m.Posts[1].VideoPoster)

	require.Len(t, m.UnresolvedAssets, 1)
	require.Equal(t, "123", m.UnresolvedAssets[0].PostID)
	require.Equal(t, "video_poster", m.UnresolvedAssets[0].Field)
}
