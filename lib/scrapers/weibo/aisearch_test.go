package weibo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlexString(t *testing.T) {
	var payload struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":123,"b":"x","c":null}`), &payload))
	require.Equal(t, "123", payload.A.String())
	require.Equal(t, "x", payload.B.String())
	require.Equal(t, "", payload.C.String())
}

func TestWisPayloadStatus(t *testing.T) {
	var wis WisPayload
	require.NoError(t, json.Unmarshal([]byte(`{"status":1,"page_id":991234,"link_list":["a","b"]}`), &wis))
	require.Equal(t, 1, wis.StatusInt())
	require.Equal(t, "991234", wis.PageID.String())
	require.Len(t, wis.LinkList, 2)

	require.NoError(t, json.Unmarshal([]byte(`{"status":2}`), &wis))
	require.Equal(t, 2, wis.StatusInt())
}

func TestSplitThink(t *testing.T) {
	think, answer := SplitThink("<think>先分析一下</think>最终的回答")
	require.Equal(t, "先分析一下", think)
	require.Equal(t, "最终的回答", answer)

	think, answer = SplitThink("没有思考标记的回答")
	require.Equal(t, "", think)
	require.Equal(t, "没有思考标记的回答", answer)

	think, answer = SplitThink("")
	require.Equal(t, "", think)
	require.Equal(t, "", answer)
}

const aiCardFixture = `<html><body><div class="card-wrap">
<div class="card-ai-search_box">
<a href="//s.weibo.com/aisearch?q=%23topic%23"><div class="card-ai-search_title">
<div class="card-ai-search_titleText">AI搜索标题</div>
</div></a>
<div class="card-ai-search_content">摘要内容<br>第二行</div>
<img class="card-ai-search_leftIcon" alt="" src="//simg.s.weibo.com/icon.png">
</div></div></body></html>`

func TestParseAISearchCard(t *testing.T) {
	card := ParseAISearchCard(aiCardFixture)
	require.Equal(t, "https://s.weibo.com/aisearch?q=%23topic%23", card.JumpLink)
	require.Equal(t, "AI搜索标题", card.Title)
	require.Equal(t, "摘要内容\n第二行", card.Content)
	require.Equal(t, "https://simg.s.weibo.com/icon.png", card.LeftIcon)

	require.Equal(t, AISearchCard{}, ParseAISearchCard("<html><body>no card here</body></html>"))
}

func TestMidFromScheme(t *testing.T) {
	require.Equal(t,
		"5270471789774972",
		MidFromScheme("sinaweibo://detail?mblogid=5270471789774972&luicode=1"),
	)
	require.Equal(t, "", MidFromScheme("sinaweibo://profile?uid=1"))
	require.Equal(t, "", MidFromScheme(""))
}
