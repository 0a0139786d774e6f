package db_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/turrero/turradb/internal/db"
)

func Test_ParseStat_Normalizes_Scraped_Counters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"0", 0},
		{"42", 42},
		{"1,024", 1024},
		{"1.2K", 1200},
		{"12k", 12000},
		{"3M", 3000000},
		{"1.5m", 1500000},
		{" 7 ", 7},
		{"garbage", 0},
	}

	for _, tc := range cases {
		got := db.ParseStat(tc.in)
		if got != tc.want {
			t.Errorf("ParseStat(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func Test_CategoryRecord_Splits_And_Trims_Categories(t *testing.T) {
	t.Parallel()

	rec := db.CategoryRecord{ID: "100", Categories: "estrategia, liderazgo ,producto"}

	want := []string{"estrategia", "liderazgo", "producto"}
	if diff := cmp.Diff(want, rec.CategoryList()); diff != "" {
		t.Fatalf("category list mismatch (-want +got):\n%s", diff)
	}

	if got := (db.CategoryRecord{ID: "100"}).CategoryList(); got != nil {
		t.Fatalf("empty categories produced %v", got)
	}
}

func Test_SearchEntry_TurraID_Takes_The_Thread_Half(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id   string
		want string
	}{
		{"100-105", "100"},
		{"100", "100"},
		{"-105", "-105"},
	}

	for _, tc := range cases {
		got := db.SearchEntry{ID: tc.id}.TurraID()
		if got != tc.want {
			t.Errorf("TurraID(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func Test_EnrichmentRecord_AssetPaths_Lists_Every_Reference(t *testing.T) {
	t.Parallel()

	rec := db.EnrichmentRecord{ID: "100", Kind: "card", Img: "a.jpg", Media: "b.mp4"}

	want := []string{"a.jpg", "b.mp4"}
	if diff := cmp.Diff(want, rec.AssetPaths()); diff != "" {
		t.Fatalf("asset paths mismatch (-want +got):\n%s", diff)
	}

	if got := (db.EnrichmentRecord{ID: "100", Kind: "link"}).AssetPaths(); got != nil {
		t.Fatalf("record without assets produced %v", got)
	}
}

func Test_BuildGraphRecords_Aggregates_Stats_And_Cross_Links(t *testing.T) {
	t.Parallel()

	threads := []db.Thread{
		{
			{ID: "100", Tweet: "root", Stats: &db.Stats{Replies: "2", Likes: "1.2K", Views: "10,000"}},
			{ID: "101", Tweet: "reply", Stats: &db.Stats{Replies: "1", Likes: "300"}},
		},
		{
			{
				ID: "200", Tweet: "quoting the first turra",
				Metadata: &db.TweetMetadata{Embed: &db.EmbedMeta{Type: "embed", ID: "100"}},
			},
		},
	}

	summaries := []db.SummaryRecord{{ID: "100", Summary: "El primero"}}
	categories := []db.CategoryRecord{{ID: "100", Categories: "estrategia,producto"}}

	got := db.BuildGraphRecords(threads, summaries, categories)

	want := []db.GraphRecord{
		{
			ID:             "100",
			URL:            "https://twitter.com/Recuenco/status/100",
			Replies:        3,
			Likes:          1500,
			Views:          10000,
			Summary:        "El primero",
			Categories:     []string{"estrategia", "producto"},
			RelatedThreads: []string{"200"},
		},
		{
			ID:             "200",
			URL:            "https://twitter.com/Recuenco/status/200",
			Categories:     []string{},
			RelatedThreads: []string{},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("graph records mismatch (-want +got):\n%s", diff)
	}
}

func Test_BuildGraphRecords_Ignores_Self_Embeds(t *testing.T) {
	t.Parallel()

	threads := []db.Thread{
		{
			{
				ID: "100", Tweet: "quotes itself",
				Metadata: &db.TweetMetadata{Embed: &db.EmbedMeta{Type: "embed", ID: "100"}},
			},
		},
	}

	got := db.BuildGraphRecords(threads, nil, nil)
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}

	if len(got[0].RelatedThreads) != 0 {
		t.Fatalf("self-embed produced related threads: %v", got[0].RelatedThreads)
	}
}

func Test_EnsureAuthors_Fills_Only_Missing_Authors(t *testing.T) {
	t.Parallel()

	threads := []db.Thread{
		{
			{ID: "100", Tweet: "root"},
			{ID: "101", Tweet: "reply", Author: "@guest"},
		},
		{
			{ID: "200", Tweet: "root"},
		},
	}

	changed := db.EnsureAuthors(threads, "https://x.com/Recuenco")
	if changed != 2 {
		t.Fatalf("changed %d tweets, want 2", changed)
	}

	if threads[0][0].Author != "https://x.com/Recuenco" {
		t.Fatalf("root author not filled: %q", threads[0][0].Author)
	}

	if threads[0][1].Author != "@guest" {
		t.Fatalf("existing author overwritten: %q", threads[0][1].Author)
	}

	if again := db.EnsureAuthors(threads, "https://x.com/Recuenco"); again != 0 {
		t.Fatalf("second pass changed %d tweets, want 0", again)
	}
}
