package db

import (
	"sort"
	"strconv"
	"strings"
)

// Stats holds the scraped engagement counters of one tweet. Values are
// kept as scraped ("1.2K", "3M", "1,024"); ParseStat normalizes them.
type Stats struct {
	Replies   string `json:"replies,omitempty"`
	Retweets  string `json:"retweets,omitempty"`
	Likes     string `json:"likes,omitempty"`
	Bookmarks string `json:"bookmarks,omitempty"`
	Views     string `json:"views,omitempty"`
}

// EmbedMeta describes an embedded (quoted) post inside a tweet.
type EmbedMeta struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Author string `json:"author,omitempty"`
	Tweet  string `json:"tweet,omitempty"`
}

// TweetMetadata carries optional scraped extras of one tweet.
type TweetMetadata struct {
	Embed *EmbedMeta `json:"embed,omitempty"`
	Imgs  []string   `json:"imgs,omitempty"`
	URL   string     `json:"url,omitempty"`
}

// Tweet is one post inside a thread.
type Tweet struct {
	ID       string         `json:"id"`
	Tweet    string         `json:"tweet"`
	Author   string         `json:"author,omitempty"`
	Time     string         `json:"time,omitempty"`
	Stats    *Stats         `json:"stats,omitempty"`
	Metadata *TweetMetadata `json:"metadata,omitempty"`
}

// Thread is one complete turra. Its canonical ID is the root tweet's.
type Thread []Tweet

// TurraID returns the id of the root tweet, or "" for an empty thread.
func (t Thread) TurraID() string {
	if len(t) == 0 {
		return ""
	}

	return t[0].ID
}

// CategoryRecord is one tweets_map.json entry. Categories is the scraped
// comma-separated list.
type CategoryRecord struct {
	ID         string `json:"id"`
	Categories string `json:"categories"`
}

// CategoryList splits the comma-separated categories field.
func (c CategoryRecord) CategoryList() []string {
	if c.Categories == "" {
		return nil
	}

	parts := strings.Split(c.Categories, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	return parts
}

// SummaryRecord is one tweets_summary.json entry.
type SummaryRecord struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// ExamQuestion is one quiz question of an exam record.
type ExamQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

// ExamRecord is one tweets_exam.json entry.
type ExamRecord struct {
	ID        string         `json:"id"`
	Questions []ExamQuestion `json:"questions"`
}

// EnrichmentRecord is one tweets_enriched.json entry. Its ID references a
// specific tweet anywhere inside a thread, not necessarily the root.
type EnrichmentRecord struct {
	ID    string `json:"id"`
	Kind  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Img   string `json:"img,omitempty"`
	Media string `json:"media,omitempty"`
}

// AssetPaths returns every asset-dir-relative path the record references.
func (e EnrichmentRecord) AssetPaths() []string {
	var paths []string

	if e.Img != "" {
		paths = append(paths, e.Img)
	}

	if e.Media != "" {
		paths = append(paths, e.Media)
	}

	return paths
}

// SearchEntry is one tweets-db.json entry, keyed "threadId-tweetId".
type SearchEntry struct {
	ID   string `json:"id"`
	Text string `json:"text,omitempty"`
}

// TurraID returns the thread half of the "threadId-tweetId" key.
func (s SearchEntry) TurraID() string {
	idx := strings.IndexByte(s.ID, '-')
	if idx <= 0 {
		return s.ID
	}

	return s.ID[:idx]
}

// BookRecord is one books.json / books-not-enriched.json entry. ID is the
// tweet that referenced the book.
type BookRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	URL        string `json:"url,omitempty"`
	Categories string `json:"categories,omitempty"`
}

// GraphRecord is one processed_graph_data.json entry: aggregated stats and
// cross-links for the graph view.
type GraphRecord struct {
	ID             string   `json:"id"`
	URL            string   `json:"url"`
	Replies        int      `json:"replies"`
	Likes          int      `json:"likes"`
	Bookmarks      int      `json:"bookmarks"`
	Views          int      `json:"views"`
	Summary        string   `json:"summary"`
	Categories     []string `json:"categories"`
	RelatedThreads []string `json:"related_threads"`
}

// ParseStat normalizes a scraped counter to an integer: "1.2K" → 1200,
// "3M" → 3000000, "1,024" → 1024, "" → 0.
func ParseStat(value string) int {
	v := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	if v == "" {
		return 0
	}

	mult := 1.0

	switch {
	case strings.HasSuffix(v, "K"), strings.HasSuffix(v, "k"):
		mult = 1_000
		v = v[:len(v)-1]
	case strings.HasSuffix(v, "M"), strings.HasSuffix(v, "m"):
		mult = 1_000_000
		v = v[:len(v)-1]
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}

	return int(f * mult)
}

// statURL is where graph entries point back to the original thread.
const statURL = "https://twitter.com/Recuenco/status/"

// BuildGraphRecords recomputes the graph table from threads, summaries and
// categories: per-thread stat totals plus related_threads derived from
// embed metadata. Output order follows the thread order, so rebuilding an
// unchanged dataset is a no-op diff.
func BuildGraphRecords(threads []Thread, summaries []SummaryRecord, categories []CategoryRecord) []GraphRecord {
	summaryByID := make(map[string]string, len(summaries))
	for _, s := range summaries {
		summaryByID[s.ID] = s.Summary
	}

	categoriesByID := make(map[string][]string, len(categories))
	for _, c := range categories {
		categoriesByID[c.ID] = c.CategoryList()
	}

	// A thread embedding turra X makes itself a relative of X.
	related := make(map[string][]string)

	for _, thread := range threads {
		parent := thread.TurraID()

		for _, tweet := range thread {
			if tweet.Metadata == nil || tweet.Metadata.Embed == nil {
				continue
			}

			embed := tweet.Metadata.Embed
			if embed.Type != "embed" || embed.ID == "" {
				continue
			}

			related[embed.ID] = append(related[embed.ID], parent)
		}
	}

	records := make([]GraphRecord, 0, len(threads))

	for _, thread := range threads {
		id := thread.TurraID()
		if id == "" {
			continue
		}

		var replies, likes, bookmarks, views int

		for _, tweet := range thread {
			if tweet.Stats == nil {
				continue
			}

			replies += ParseStat(tweet.Stats.Replies)
			likes += ParseStat(tweet.Stats.Likes)
			bookmarks += ParseStat(tweet.Stats.Bookmarks)
			views += ParseStat(tweet.Stats.Views)
		}

		relatedIDs := make([]string, 0, len(related[id]))

		for _, rid := range related[id] {
			if rid != id {
				relatedIDs = append(relatedIDs, rid)
			}
		}

		sort.Strings(relatedIDs)

		cats := categoriesByID[id]
		if cats == nil {
			cats = []string{}
		}

		records = append(records, GraphRecord{
			ID:             id,
			URL:            statURL + id,
			Replies:        replies,
			Likes:          likes,
			Bookmarks:      bookmarks,
			Views:          views,
			Summary:        summaryByID[id],
			Categories:     cats,
			RelatedThreads: relatedIDs,
		})
	}

	return records
}

// EnsureAuthors fills a missing author field across all tweets in place
// and returns how many tweets were touched.
func EnsureAuthors(threads []Thread, author string) int {
	changed := 0

	for ti := range threads {
		for wi := range threads[ti] {
			if threads[ti][wi].Author == "" {
				threads[ti][wi].Author = author
				changed++
			}
		}
	}

	return changed
}
