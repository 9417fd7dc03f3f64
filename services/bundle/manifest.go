package bundle

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"weibolab/lib/media"
	"weibolab/lib/textutil"
)

// Localize rewrites every media reference in the bundle onto files in
// the resolver's public directory and reports the outcome. Local files
// left by earlier scraper runs are preferred over fresh resolution;
// with allowDownload false nothing is fetched and every miss is just
// recorded as unresolved.
func Localize(ctx context.Context, b *Bundle, r *media.Resolver, allowDownload bool) *Manifest {
	ctx, span := tracer.Start(ctx, "Localize")
	defer span.End()
	span.SetAttributes(attribute.Bool("allow_download", allowDownload))

	m := &Manifest{
		Topic:            b.Topic,
		GeneratedAt:      b.GeneratedAt,
		Posts:            []ManifestPostRow{},
		UnresolvedAssets: []UnresolvedAsset{},
	}
	addUnresolved := func(postID, field, url string) {
		if url == "" {
			return
		}
		m.UnresolvedAssets = append(m.UnresolvedAssets, UnresolvedAsset{PostID: postID, Field: field, URL: url})
	}

	for _, post := range b.Posts {
		mid := post.PostID
		row := ManifestPostRow{
			PostID:         mid,
			AuthorName:     post.AuthorName,
			ContentPreview: textutil.TruncateRunes(post.ContentText, previewRuneCap),
			Images:         []string{},
		}

		if c := r.LocalCandidates("*" + mid + "_avatar.*"); len(c) > 0 {
			post.AuthorAvatarURL = r.PublicPath(c[0])
		} else if post.AuthorAvatarURL != "" {
			pub, unresolved := r.MaterializeSlot(ctx, post.AuthorAvatarURL, mid+"_avatar", allowDownload)
			post.AuthorAvatarURL = pub
			addUnresolved(mid, "author_avatar_url", unresolved)
		}
		row.Avatar = post.AuthorAvatarURL

		if c := r.LocalCandidates(mid + "_img_*"); len(c) > 0 {
			for i, p := range c {
				if i == maxPostImages {
					break
				}
				row.Images = append(row.Images, r.PublicPath(p))
			}
		} else {
			for i, img := range post.Images {
				if i == maxPostImages {
					break
				}
				pub, unresolved := r.MaterializeSlot(ctx, img, fmt.Sprintf("%s_img_%d", mid, i+1), allowDownload)
				if pub != "" {
					row.Images = append(row.Images, pub)
				}
				addUnresolved(mid, imageField(i), unresolved)
			}
		}
		post.Images = row.Images

		// poster files carry no author-name prefix, a leading wildcard
		// would let one mid match another mid's suffix
		if c := r.LocalCandidates(mid + "_poster.*"); len(c) > 0 {
			post.VideoPoster = r.PublicPath(c[0])
		} else if post.VideoPoster != "" {
			pub, unresolved := r.MaterializeSlot(ctx, post.VideoPoster, mid+"_poster", allowDownload)
			post.VideoPoster = pub
			addUnresolved(mid, "video_poster", unresolved)
		}
		if post.VideoPoster == "" && len(row.Images) > 0 {
			post.VideoPoster = row.Images[0]
		}
		row.VideoPoster = post.VideoPoster

		m.Posts = append(m.Posts, row)
	}

	gallery := []string{}
	for i, img := range b.Smart.Gallery {
		if i == maxPostImages {
			break
		}
		pub, unresolved := r.MaterializeSlot(ctx, img, fmt.Sprintf("smart_gallery_%d", i+1), allowDownload)
		if pub != "" {
			gallery = append(gallery, pub)
		}
		addUnresolved("smart", fmt.Sprintf("smart.gallery[%d]", i), unresolved)
	}
	b.Smart.Gallery = gallery

	mids := make([]string, 0, len(b.VideoMap))
	for mid := range b.VideoMap {
		mids = append(mids, mid)
	}
	sort.Strings(mids)
	for _, mid := range mids {
		entry := b.VideoMap[mid]
		if entry.Poster == "" {
			continue
		}
		pub, unresolved := r.MaterializeSlot(ctx, entry.Poster, textutil.SafeName(mid)+"_video_map_poster", allowDownload)
		if unresolved == "" && pub != "" {
			entry.Poster = pub
		}
		addUnresolved(mid, "video_map.poster", unresolved)
	}

	m.Stats = AssetStats{Posts: len(b.Posts), UnresolvedAssets: len(m.UnresolvedAssets)}
	b.AssetManifest = m.Stats
	return m
}
