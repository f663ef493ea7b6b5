package transform

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/brandoz2255/k8s-dashboard/pkg/fetch"
)

const (
	defaultFeedLimit = 50
	summaryRunes     = 200
	noTitle          = "No Title"
	trendingTopics   = 10
)

var (
	htmlTag   = regexp.MustCompile(`<[^>]*>`)
	titleWord = regexp.MustCompile(`\b[a-zA-Z]{4,}\b`)
)

// trendKeywords are the title words counted as trending topics. Only words
// of four or more letters are matched, so the short entries never trend.
var trendKeywords = map[string]bool{
	"security": true, "vulnerability": true, "malware": true, "breach": true,
	"hack": true, "attack": true, "kubernetes": true, "docker": true,
	"cloud": true, "ai": true, "ml": true, "devops": true, "api": true,
	"zero-day": true, "ransomware": true, "phishing": true, "exploit": true,
}

// Feed is the social/news feed widget view model, newest post first.
type Feed struct {
	Posts      []Post   `json:"posts"`
	Total      int      `json:"total"`
	Categories []string `json:"categories"`
	Trending   []Topic  `json:"trending"`
}

// Topic is a trending keyword and how often it appears in post titles.
type Topic struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Post is one feed entry.
type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Source      string    `json:"source"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"publishedAt"`
	Ago         string    `json:"ago"`
	Likes       int       `json:"likes"`
	Comments    int       `json:"comments"`
}

// FeedTransformer builds Feed view models from
//
//	{"articles": [{"id": "...", "title": "...", "description": "<p>...</p>",
//	  "url": "https://...", "source": "Krebs on Security", "category": "security",
//	  "published": "2025-01-01T12:00:00Z", "likes": 3, "comments": 1}]}
//
// The articles array is required. Per article, a missing title becomes
// "No Title" and a missing or unparseable published time becomes the fetch time.
type FeedTransformer struct {
	// ArticlesPath locates the article array. Defaults to "articles".
	ArticlesPath string
	// Limit caps the number of posts. Defaults to 50.
	Limit int
}

// Transform implements Transformer.
func (f *FeedTransformer) Transform(p fetch.Payload) (Feed, error) {
	path := f.ArticlesPath
	if path == "" {
		path = "articles"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}

	articles := gjson.GetBytes(p.Body, path)
	if !present(articles) {
		return Feed{}, missingField("feed", path)
	}
	if !articles.IsArray() {
		return Feed{}, invalidField("feed", path, "expected array")
	}

	items := articles.Array()
	posts := make([]Post, 0, len(items))
	for i, a := range items {
		link := a.Get("url").String()
		if link == "" {
			link = a.Get("link").String()
		}

		summary := a.Get("description")
		if !present(summary) {
			summary = a.Get("summary")
		}

		published := timestampOr(a.Get("published"), p.FetchedAt)

		id := a.Get("id").String()
		if id == "" {
			id = link
		}
		if id == "" {
			id = fmt.Sprintf("post-%d", i)
		}

		posts = append(posts, Post{
			ID:          id,
			Title:       optionalString(a.Get("title"), noTitle),
			Summary:     cleanSummary(summary.String()),
			URL:         link,
			Domain:      domainOf(link),
			Source:      optionalString(a.Get("source"), "unknown"),
			Category:    optionalString(a.Get("category"), "general"),
			PublishedAt: published,
			Ago:         RelativeTime(published, p.FetchedAt),
			Likes:       int(a.Get("likes").Int()),
			Comments:    int(a.Get("comments").Int()),
		})
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishedAt.After(posts[j].PublishedAt)
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}

	seen := make(map[string]bool)
	categories := []string{}
	for _, post := range posts {
		if !seen[post.Category] {
			seen[post.Category] = true
			categories = append(categories, post.Category)
		}
	}
	sort.Strings(categories)

	return Feed{
		Posts:      posts,
		Total:      len(posts),
		Categories: categories,
		Trending:   trending(posts),
	}, nil
}

// trending counts keyword occurrences across post titles and returns the
// most frequent, ties broken alphabetically.
func trending(posts []Post) []Topic {
	counts := make(map[string]int)
	for _, post := range posts {
		for _, w := range titleWord.FindAllString(strings.ToLower(post.Title), -1) {
			if trendKeywords[w] {
				counts[w]++
			}
		}
	}

	topics := make([]Topic, 0, len(counts))
	for k, n := range counts {
		topics = append(topics, Topic{Keyword: k, Count: n})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Count != topics[j].Count {
			return topics[i].Count > topics[j].Count
		}
		return topics[i].Keyword < topics[j].Keyword
	})
	if len(topics) > trendingTopics {
		topics = topics[:trendingTopics]
	}
	return topics
}

// cleanSummary strips markup and truncates to summaryRunes runes.
func cleanSummary(s string) string {
	s = strings.Join(strings.Fields(htmlTag.ReplaceAllString(s, " ")), " ")
	r := []rune(s)
	if len(r) <= summaryRunes {
		return s
	}
	return strings.TrimSpace(string(r[:summaryRunes])) + "..."
}

func domainOf(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Host
}
