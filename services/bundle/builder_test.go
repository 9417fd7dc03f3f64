package bundle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"weibolab/lib/media"
	"weibolab/lib/scrapers/weibo"
	"weibolab/services/archive"
)

const wisFixture = `{
	"status": 2,
	"text": "简短回答",
	"text_n": "",
	"msg": "<think>思考</think>最终回答",
	"link_list": ["sinaweibo://detail?mblogid=111", "sinaweibo://detail?mblogid=222"],
	"card_multimodal": {"data": [
		{"cur_mid": 111, "img": "//wx1.sinaimg.cn/a.jpg", "user_name": "甲",
		 "user_avatar": "//wx1.sinaimg.cn/av1.jpg", "type": "video",
		 "video_url": "//f.video.weibocdn.com/v1.mp4"},
		{"cur_mid": "111", "img": "https://wx1.sinaimg.cn/b.jpg", "user_name": "忽略"},
		{"cur_mid": "222", "img": "https://wx1.sinaimg.cn/crop.0.0.1.1/bad.jpg"},
		{"cur_mid": "222", "img": "https://wx2.sinaimg.cn/c.jpg", "user_name": "乙"}
	]}
}`

func testWis(t *testing.T) weibo.WisPayload {
	t.Helper()
	var wis weibo.WisPayload
	require.NoError(t, json.Unmarshal([]byte(wisFixture), &wis))
	return wis
}

func writeFakeJpeg(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	copy(data, []byte{0xff, 0xd8, 0xff})
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestNormTopic(t *testing.T) {
	require.Equal(t, "#某话题#", NormTopic("某话题"))
	require.Equal(t, "#某话题#", NormTopic("#某话题#"))
	require.Equal(t, "#某话题#", NormTopic("  #某话题#  "))
}

func TestMultimodalMap(t *testing.T) {
	mm, order := MultimodalMap(testWis(t))
	require.Equal(t, []string{"111", "222"}, order)

	first := mm["111"]
	require.Equal(t, []string{
		"https://wx1.sinaimg.cn/a.jpg",
		"https://wx1.sinaimg.cn/b.jpg",
	}, first.Images)
	require.Equal(t, "https://f.video.weibocdn.com/v1.mp4", first.VideoURL)
	require.Equal(t, "甲", first.UserName)
	require.Equal(t, "https://wx1.sinaimg.cn/av1.jpg", first.UserAvatar)
	require.Equal(t, "video", first.Type)

	// the cropped thumbnail is junk, only the real image survives
	require.Equal(t, []string{"https://wx2.sinaimg.cn/c.jpg"}, mm["222"].Images)
	require.Equal(t, "乙", mm["222"].UserName)
}

func TestLinkedMap(t *testing.T) {
	rows := []archive.LinkedPostRow{
		{PostRow: weibo.PostRow{PostID: "1", AuthorName: "first"}},
		{PostRow: weibo.PostRow{PostID: "1", AuthorName: "duplicate"}},
		{PostRow: weibo.PostRow{PostID: ""}},
	}
	m := LinkedMap(rows)
	require.Len(t, m, 1)
	require.Equal(t, "first", m["1"].AuthorName)
}

func TestFilterImages(t *testing.T) {
	var candidates []string
	for i := 0; i < 12; i++ {
		candidates = append(candidates, "https://wx1.sinaimg.cn/img"+string(rune('a'+i))+".jpg")
	}
	candidates = append(candidates, candidates[0])
	candidates = append(candidates, "https://wx1.sinaimg.cn/crop.0.0.1.1/x.jpg", "")

	got := filterImages(candidates, maxPostImages)
	require.Len(t, got, maxPostImages)
	require.Equal(t, "https://wx1.sinaimg.cn/imga.jpg", got[0])
}

func TestChooseGallery(t *testing.T) {
	mm, order := MultimodalMap(testWis(t))

	// preferred id seeds, the rest backfills in multimodal order
	got := chooseGallery(mm, order, []string{"222", "missing"})
	require.Equal(t, []string{
		"https://wx2.sinaimg.cn/c.jpg",
		"https://wx1.sinaimg.cn/a.jpg",
	}, got)

	require.Empty(t, chooseGallery(map[string]*MultimodalEntry{}, nil, defaultGalleryIDs))
}

func TestResolveAvatarPriority(t *testing.T) {
	r := media.NewResolver(t.TempDir())
	// avatars are routinely well under the placeholder size threshold
	// and must still beat every remote url
	local := filepath.Join(t.TempDir(), "甲_111_avatar.jpg")
	writeFakeJpeg(t, local, 5000)

	row := weibo.PostRow{PostID: "111", AuthorAvatarURL: "//tvax1.sinaimg.cn/row.jpg"}
	linked := archive.LinkedPostRow{
		PostRow: weibo.PostRow{
			PostID:            "111",
			AuthorAvatarURL:   "//wx9.sinaimg.cn/linked.jpg",
			AuthorAvatarLocal: local,
		},
	}
	entry := &MultimodalEntry{UserAvatar: "https://wx1.sinaimg.cn/av1.jpg"}

	// archived local file wins regardless of its size
	require.Equal(t, media.PublicPrefix+"甲_111_avatar.jpg", resolveAvatar(r, row, linked, entry))

	// a dangling local path falls through to the linked remote url
	linked.AuthorAvatarLocal = filepath.Join(t.TempDir(), "missing.jpg")
	require.Equal(t, "https://wx9.sinaimg.cn/linked.jpg", resolveAvatar(r, row, linked, entry))

	// without the local file the linked remote url wins
	linked.AuthorAvatarLocal = ""
	require.Equal(t, "https://wx9.sinaimg.cn/linked.jpg", resolveAvatar(r, row, linked, entry))

	// then the multimodal avatar
	linked.AuthorAvatarURL = ""
	require.Equal(t, "https://wx1.sinaimg.cn/av1.jpg", resolveAvatar(r, row, linked, entry))

	// the topic row avatar is a known-bad cdn variant, so nothing is left
	entry.UserAvatar = ""
	require.Equal(t, "", resolveAvatar(r, row, linked, nil))
}

func TestBuild(t *testing.T) {
	mediaDir := t.TempDir()
	archivedImg := filepath.Join(t.TempDir(), "111_img_1.jpg")
	writeFakeJpeg(t, archivedImg, 9000)

	in := Inputs{
		TopicPosts: []weibo.PostRow{
			{PostID: "111", AuthorName: "甲", ContentText: "第一条"},
			{PostID: "222", AuthorName: "乙", AuthorAvatarURL: "//wx2.sinaimg.cn/av2.jpg"},
			{PostID: "111", AuthorName: "重复"},
		},
		LinkedPosts: []archive.LinkedPostRow{
			{
				PostRow: weibo.PostRow{
					PostID:         "111",
					MediaImageURLs: []string{"https://wx1.sinaimg.cn/linked.jpg"},
				},
				FetchOK:         true,
				MediaImageLocal: []string{archivedImg},
			},
		},
		Wis:      testWis(t),
		Summary:  archive.Summary{AnswerText: "归档的回答", Links: []archive.SourceLink{{Scheme: "sinaweibo://detail?mblogid=111", Mid: "111", SearchURL: "https://s.weibo.com/weibo?q=111&page=1"}, {}}},
		Material: Material{Intro: "前端简介"},
	}

	b := Build(context.Background(), in, Options{
		Topic:               "某话题",
		Resolver:            media.NewResolver(mediaDir),
		PreferredGalleryIDs: []string{"111"},
	})

	require.Equal(t, "#某话题#", b.Topic)
	require.Nil(t, b.GeneratedAt)
	require.Len(t, b.Posts, 2)

	first := b.Posts[0]
	require.Equal(t, "111", first.PostID)
	// archived local image goes first, then the remote priority chain
	require.Equal(t, []string{
		media.PublicPrefix + "111_img_1.jpg",
		"https://wx1.sinaimg.cn/linked.jpg",
		"https://wx1.sinaimg.cn/a.jpg",
		"https://wx1.sinaimg.cn/b.jpg",
	}, first.Images)
	require.Equal(t, "https://f.video.weibocdn.com/v1.mp4", first.VideoURL)
	require.Equal(t, media.PublicPrefix+"111_img_1.jpg", first.VideoPoster)

	second := b.Posts[1]
	require.Equal(t, []string{"https://wx2.sinaimg.cn/c.jpg"}, second.Images)
	require.Equal(t, "https://wx2.sinaimg.cn/av2.jpg", second.AuthorAvatarURL)
	require.Equal(t, "", second.VideoURL)

	require.Equal(t, "归档的回答", b.Smart.AnswerText)
	require.Equal(t, "简短回答", b.Smart.Summary)
	require.Equal(t, "前端简介", b.Smart.Intro)
	require.Equal(t, []string{
		"https://wx1.sinaimg.cn/a.jpg",
		"https://wx2.sinaimg.cn/c.jpg",
	}, b.Smart.Gallery)
	require.Len(t, b.Smart.SourceLinks, 1)
	require.Len(t, b.Smart.LinkList, 2)

	require.Len(t, b.VideoMap, 1)
	require.Equal(t, "https://wx1.sinaimg.cn/a.jpg", b.VideoMap["111"].Poster)
	require.Equal(t, "甲", b.VideoMap["111"].UserName)
}
