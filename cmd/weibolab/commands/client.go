package commands

import (
	"fmt"

	"weibolab/lib/cookieutil"
	"weibolab/lib/scrapers/weibo"
	"weibolab/lib/util/serviceutil"
)

func newClient(cookieFile string) *weibo.Client {
	cookie, err := cookieutil.ReadCookieFile(cookieFile)
	if err != nil {
		serviceutil.Fatal("failed to read cookie file", err)
	}
	if cookie == "" {
		serviceutil.Fatal(
			"cookie file holds no cookies",
			fmt.Errorf("parsed an empty cookie header from %s", cookieFile),
		)
	}

	client, err := weibo.NewClient(weibo.ClientOptions{Cookie: cookie})
	if err != nil {
		serviceutil.Fatal("failed to initialize weibo client", err)
	}
	if *verbose {
		client.SetDebugOutput(".dev/resty/weibo")
	}
	return client
}
