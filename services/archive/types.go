package archive

import (
	"encoding/json"
	"weibolab/lib/scrapers/weibo"
)

// LinkedPostRow is one archived linked post: the parsed card plus the
// fetch outcome and any locally saved assets.
type LinkedPostRow struct {
	weibo.PostRow
	SearchURL       string   `json:"search_url"`
	FetchOK         bool     `json:"fetch_ok"`
	Error           string   `json:"error,omitempty"`
	MediaImageLocal []string `json:"media_image_local"`
}

// SourceLink ties an app-scheme link from the AI-search answer to the
// search page it was archived from.
type SourceLink struct {
	Scheme    string `json:"scheme"`
	Mid       string `json:"mid"`
	SearchURL string `json:"search_url"`
}

// Summary is the run report written next to the archived pages.
type Summary struct {
	Query          string             `json:"query"`
	CreatedAtEpoch int64              `json:"created_at_epoch"`
	SearchURL      string             `json:"search_url"`
	AISearchURL    string             `json:"aisearch_url"`
	CardAISearch   weibo.AISearchCard `json:"card_ai_search"`
	WisStatus      json.Number        `json:"wis_status"`
	WisStatusStage weibo.FlexString   `json:"wis_status_stage"`
	WisModel       weibo.FlexString   `json:"wis_model"`
	WisPageID      weibo.FlexString   `json:"wis_page_id"`
	WisShortURL    string             `json:"wis_short_url"`
	ThinkText      string             `json:"think_text"`
	AnswerText     string             `json:"answer_text"`
	RawMsgMarkdown string             `json:"raw_msg_markdown"`
	LinkListCount  int                `json:"link_list_count"`
	MidCount       int                `json:"mid_count"`
	Links          []SourceLink       `json:"links"`
}
