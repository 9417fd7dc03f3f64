package weibo

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"weibolab/lib/textutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// FlexString decodes JSON values that the API serves inconsistently as
// either strings or numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// MultimodalItem is one entry of the AI-search multimodal payload.
type MultimodalItem struct {
	CurMid     FlexString `json:"cur_mid"`
	Img        string     `json:"img"`
	VideoURL   string     `json:"video_url"`
	UserName   string     `json:"user_name"`
	UserAvatar string     `json:"user_avatar"`
	Type       string     `json:"type"`
}

// WisPayload is the (partial) shape of the wis/show API response.
type WisPayload struct {
	Status      json.Number `json:"status"`
	StatusStage FlexString  `json:"status_stage"`
	Msg         string      `json:"msg"`
	Text        string      `json:"text"`
	TextN       string      `json:"text_n"`
	Model       FlexString  `json:"model"`
	PageID      FlexString  `json:"page_id"`
	QueryID     FlexString  `json:"query_id"`
	ShortURL    string      `json:"short_url"`
	CurrentTime FlexString  `json:"current_time"`
	LinkList    []string    `json:"link_list"`

	CardMultimodal struct {
		Data []MultimodalItem `json:"data"`
	} `json:"card_multimodal"`
}

func (w WisPayload) StatusInt() int {
	n, err := w.Status.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

const wisShowURL = "https://ai.s.weibo.com/api/wis/show.json"
const wisMaxLoops = 15

// FetchWisShow polls the AI-search summary endpoint until the answer
// stops streaming (status != 1) or the loop budget runs out, threading
// the session identifiers the API hands back. It returns the last
// payload together with its raw bytes for archiving.
func (c *Client) FetchWisShow(ctx context.Context, q string) (WisPayload, []byte, error) {
	ctx, span := tracer.Start(ctx, "FetchWisShow")
	defer span.End()
	span.SetAttributes(attribute.String("q", q))

	requestID := strconv.FormatInt(time.Now().Unix(), 10)
	requestTime := "0"
	var pageID, queryID, model string
	var last WisPayload
	var lastRaw []byte

	for loop := 1; loop <= wisMaxLoops; loop++ {
		form := map[string]string{
			"query":         q,
			"content_type":  "loop",
			"request_id":    requestID,
			"request_time":  requestTime,
			"search_source": "default_init",
			"sid":           "pc_search",
			"vstyle":        "1",
			"cot":           "1",
			"loop_num":      strconv.Itoa(loop),
		}
		if pageID != "" {
			form["page_id"] = pageID
		}
		if queryID != "" {
			form["query_id"] = queryID
		}
		if model != "" {
			form["model"] = model
		}

		res, err := c.Http.R().
			SetContext(ctx).
			SetHeader("Accept", "application/json,text/plain,*/*").
			SetHeader("X-Requested-With", "XMLHttpRequest").
			SetFormData(form).
			Post(wisShowURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "wis show request failed")
			return last, lastRaw, err
		}
		if res.IsError() {
			err := fmt.Errorf("wis show returned status %d", res.StatusCode())
			span.RecordError(err)
			span.SetStatus(codes.Error, "wis show request failed")
			return last, lastRaw, err
		}

		var payload WisPayload
		if err := json.Unmarshal(res.Body(), &payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "wis show returned non-json payload")
			return last, lastRaw, err
		}
		last = payload
		lastRaw = res.Body()

		if v := payload.PageID.String(); v != "" {
			pageID = v
		}
		if v := payload.QueryID.String(); v != "" {
			queryID = v
		}
		if v := payload.Model.String(); v != "" {
			model = v
		}
		if v := payload.CurrentTime.String(); v != "" {
			requestTime = v
		}
		if payload.StatusInt() != 1 {
			break
		}
	}

	return last, lastRaw, nil
}

// SplitThink separates the model's chain-of-thought preamble from the
// final answer; payloads without a </think> marker are all answer.
func SplitThink(msg string) (think string, answer string) {
	if idx := strings.Index(msg, "</think>"); idx >= 0 {
		think = textutil.CleanHTML(strings.ReplaceAll(msg[:idx], "<think>", ""))
		answer = textutil.CleanHTML(msg[idx+len("</think>"):])
		return think, answer
	}
	return "", textutil.CleanHTML(msg)
}

// AISearchCard is the summary card rendered at the top of search
// results when AI-search has an answer.
type AISearchCard struct {
	JumpLink string `json:"jump_link,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content,omitempty"`
	LeftIcon string `json:"left_icon,omitempty"`
}

var aiJumpLinkRegex = regexp.MustCompile(`(?s)<a\s+href="([^"]+)"[^>]*>\s*<div class="card-ai-search_title">`)
var aiTitleRegex = regexp.MustCompile(`class="card-ai-search_titleText">([^<]+)</div>`)
var aiContentRegex = regexp.MustCompile(`(?s)class="card-ai-search_content">(.+?)</div>`)
var aiLeftIconRegex = regexp.MustCompile(`class="card-ai-search_leftIcon"[^>]*src="([^"]+)"`)

// ParseAISearchCard extracts the AI-search summary card from a search
// page. All fields are best effort.
func ParseAISearchCard(page string) AISearchCard {
	var out AISearchCard
	idx := strings.Index(page, `class="card-ai-search_box"`)
	if idx < 0 {
		return out
	}
	start := idx - 300
	if start < 0 {
		start = 0
	}
	end := idx + 5000
	if end > len(page) {
		end = len(page)
	}
	chunk := page[start:end]

	if m := aiJumpLinkRegex.FindStringSubmatch(chunk); m != nil {
		out.JumpLink = NormalizeHref(html.UnescapeString(m[1]))
	}
	if m := aiTitleRegex.FindStringSubmatch(chunk); m != nil {
		out.Title = textutil.CleanHTML(m[1])
	}
	if m := aiContentRegex.FindStringSubmatch(chunk); m != nil {
		out.Content = textutil.CleanHTML(m[1])
	}
	if m := aiLeftIconRegex.FindStringSubmatch(chunk); m != nil {
		out.LeftIcon = NormalizeHref(html.UnescapeString(m[1]))
	}
	return out
}

var midFromSchemeRegex = regexp.MustCompile(`mblogid=(\d+)`)

// MidFromScheme extracts the post id from an app-scheme link of the
// AI-search link list.
func MidFromScheme(link string) string {
	m := midFromSchemeRegex.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}
