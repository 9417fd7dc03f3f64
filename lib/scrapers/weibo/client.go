package weibo

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"weibolab/lib/restyutil"
	"weibolab/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/weibo")

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// loginMarker shows up in every server-rendered page when the cookie
// belongs to a logged-in session.
const loginMarker = `$CONFIG['islogin'] = '1';`

type Client struct {
	Http *resty.Client
}

type ClientOptions struct {
	// Cookie is the assembled Cookie header value for s.weibo.com.
	Cookie string
}

func NewClient(opts ClientOptions) (*Client, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("User-Agent", browserUA)
	if opts.Cookie != "" {
		client.SetHeader("Cookie", opts.Cookie)
	}
	client.SetTimeout(time.Second * 30)
	client.SetRetryCount(3)
	client.SetRetryAfter(func(_ *resty.Client, res *resty.Response) (time.Duration, error) {
		return time.Duration(res.Request.Attempt) * 800 * time.Millisecond, nil
	})

	telemetry.InstrumentResty(client, "scrapers/weibo/http")

	return &Client{Http: client}, nil
}

// SetDebugOutput dumps every raw HTTP exchange to a debug directory.
func (c *Client) SetDebugOutput(dir string) {
	restyutil.NewFilesystemOutput(dir).DumpExchanges(c.Http)
}

func SearchURL(q string, page int) string {
	return fmt.Sprintf("https://s.weibo.com/weibo?q=%s&page=%d", url.QueryEscape(q), page)
}

func AISearchURL(q string) string {
	return fmt.Sprintf("https://s.weibo.com/aisearch?q=%s&Refer=weibo_aisearch", url.QueryEscape(q))
}

// LoggedIn reports whether a fetched page was rendered for a logged-in
// session.
func LoggedIn(html string) bool {
	return strings.Contains(html, loginMarker)
}

// FetchSearchPage returns the raw HTML of one topic search result page.
func (c *Client) FetchSearchPage(ctx context.Context, q string, page int) (string, error) {
	ctx, span := tracer.Start(ctx, "FetchSearchPage")
	defer span.End()
	span.SetAttributes(attribute.String("q", q), attribute.Int("page", page))

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		Get(SearchURL(q, page))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search page fetch failed")
		return "", err
	}
	if res.IsError() {
		err := fmt.Errorf("search page returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "search page fetch failed")
		return "", err
	}
	return res.String(), nil
}

// FetchAISearchPage returns the raw HTML of the AI-search summary page.
func (c *Client) FetchAISearchPage(ctx context.Context, q string) (string, error) {
	ctx, span := tracer.Start(ctx, "FetchAISearchPage")
	defer span.End()
	span.SetAttributes(attribute.String("q", q))

	res, err := c.Http.R().
		SetContext(ctx).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		Get(AISearchURL(q))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aisearch page fetch failed")
		return "", err
	}
	if res.IsError() {
		err := fmt.Errorf("aisearch page returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "aisearch page fetch failed")
		return "", err
	}
	return res.String(), nil
}
