package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/auditlab/auditoria/internal/cache"
	"github.com/auditlab/auditoria/internal/logging"
	"github.com/auditlab/auditoria/internal/webclient"
)

// CrawlerManager fetches a page and extracts its SEO-relevant elements.
type CrawlerManager struct {
	cfg    Config
	wc     webclient.WebClient
	cache  *cache.TieredCache
	logger logging.Logger
}

// NewCrawlerManager creates a crawler adapter. cache may be nil to disable
// caching (used in tests).
func NewCrawlerManager(cfg Config, wc webclient.WebClient, c *cache.TieredCache, logger logging.Logger) *CrawlerManager {
	return &CrawlerManager{
		cfg:    cfg,
		wc:     wc,
		cache:  c,
		logger: logger.With(logging.Field{Key: "component", Value: "crawler"}),
	}
}

func crawlCacheKey(targetURL string) string {
	return "crawl:" + targetURL
}

// Collect fetches targetURL with bounded retries and returns the extracted
// document. Transport failures after all retries produce a typed failure,
// never a panic or raw error.
func (cm *CrawlerManager) Collect(ctx context.Context, targetURL string) *CollectionResult {
	if cm.cache != nil {
		if v, ok := cm.cache.Get(crawlCacheKey(targetURL)); ok {
			if doc, ok := v.(*PageDocument); ok {
				return &CollectionResult{Kind: KindCrawl, Success: true, Cached: true, Document: doc}
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt <= cm.cfg.Retries; attempt++ {
		if attempt > 0 {
			cm.logger.Warn("retrying crawl",
				logging.Field{Key: "url", Value: targetURL},
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "error", Value: lastErr.Error()})
			if !sleepBackoff(ctx, attempt, cm.cfg.Backoff) {
				return failure(KindCrawl, ctx.Err().Error())
			}
		}

		doc, err := cm.fetchOnce(ctx, targetURL)
		if err == nil {
			if cm.cache != nil {
				cm.cache.Set(crawlCacheKey(targetURL), doc)
			}
			return &CollectionResult{Kind: KindCrawl, Success: true, Document: doc}
		}
		lastErr = err
	}

	return failure(KindCrawl, fmt.Sprintf("crawl %s: %v", targetURL, lastErr))
}

func (cm *CrawlerManager) fetchOnce(ctx context.Context, targetURL string) (*PageDocument, error) {
	start := time.Now()
	resp, err := cm.wc.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: targetURL})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	doc := extractDocument(targetURL, resp)
	doc.LoadTime = time.Since(start)
	return doc, nil
}

// extractDocument builds a PageDocument from a fetched response.
func extractDocument(targetURL string, resp *webclient.Response) *PageDocument {
	doc := &PageDocument{
		URL:        targetURL,
		FinalURL:   resp.FinalURL,
		StatusCode: resp.StatusCode,
	}
	if doc.FinalURL == "" {
		doc.FinalURL = targetURL
	}
	if u, err := url.Parse(doc.FinalURL); err == nil {
		doc.HTTPS = u.Scheme == "https"
	}

	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		// Return what we have so far even if HTML parsing fails
		return doc
	}

	doc.Title = strings.TrimSpace(gq.Find("title").First().Text())
	doc.MetaDescription, _ = gq.Find(`meta[name="description"]`).First().Attr("content")
	doc.MetaDescription = strings.TrimSpace(doc.MetaDescription)
	doc.Canonical, _ = gq.Find(`link[rel="canonical"]`).First().Attr("href")
	doc.RobotsMeta, _ = gq.Find(`meta[name="robots"]`).First().Attr("content")

	gq.Find("h1").Each(func(_ int, s *goquery.Selection) {
		doc.H1s = append(doc.H1s, strings.TrimSpace(s.Text()))
	})
	gq.Find("h2").Each(func(_ int, s *goquery.Selection) {
		doc.H2s = append(doc.H2s, strings.TrimSpace(s.Text()))
	})

	gq.Find("img").Each(func(_ int, s *goquery.Selection) {
		doc.Images++
		if alt, ok := s.Attr("alt"); !ok || strings.TrimSpace(alt) == "" {
			doc.ImagesNoAlt++
		}
	})

	internal, external := countLinks(doc.FinalURL, resp.Body)
	doc.InternalLinks = internal
	doc.ExternalLinks = external

	doc.TextContent = strings.TrimSpace(gq.Find("body").Text())
	doc.WordCount = len(strings.Fields(doc.TextContent))

	return doc
}

// countLinks walks the raw HTML tree for anchors and classifies them against
// the page host.
func countLinks(pageURL string, body []byte) (internal, external int) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return 0, 0
	}

	node, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, 0
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") ||
					strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
					continue
				}
				resolved, err := base.Parse(href)
				if err != nil {
					continue
				}
				if resolved.Hostname() == base.Hostname() {
					internal++
				} else {
					external++
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	return internal, external
}
