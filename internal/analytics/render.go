package analytics

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/hitoshi/watchlog/internal/model"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func formatRating(r *float64) string {
	if r == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *r)
}

// RenderOverview はシステム概要を表形式で書き出す。
func RenderOverview(w io.Writer, o *model.SystemOverview) {
	t := newTable(w, "Overview")
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Users", o.TotalUsers},
		{"Active users (7d)", o.ActiveUsers},
		{"Content", o.TotalContent},
		{"Movies", o.ContentByKind[model.KindMovie]},
		{"Series", o.ContentByKind[model.KindSeries]},
		{"Views", o.TotalViews},
	})
	t.Render()

	d := newTable(w, "Daily activity")
	d.AppendHeader(table.Row{"Day", "Views", "Avg rating"})
	for _, b := range o.DailyActivity {
		d.AppendRow(table.Row{b.Bucket.Format("2006-01-02"), b.Views, formatRating(b.AverageRating)})
	}
	d.Render()
}

// RenderContentStats は人気・高評価コンテンツを表形式で書き出す。
func RenderContentStats(w io.Writer, cs *model.ContentStats) {
	renderViews := func(title string, rows []model.ContentViews) {
		t := newTable(w, title)
		t.AppendHeader(table.Row{"#", "Title", "Views"})
		for i, r := range rows {
			t.AppendRow(table.Row{i + 1, r.Title, r.Views})
		}
		t.Render()
	}
	renderViews("Top movies", cs.TopMovies)
	renderViews("Top series", cs.TopSeries)

	t := newTable(w, "Highest rated")
	t.AppendHeader(table.Row{"#", "Title", "Kind", "Avg rating", "Ratings"})
	for i, r := range cs.HighestRated {
		t.AppendRow(table.Row{i + 1, r.Title, r.Kind, fmt.Sprintf("%.2f", r.AverageRating), r.Ratings})
	}
	t.Render()
}

// RenderUserStats はユーザー統計を表形式で書き出す。
func RenderUserStats(w io.Writer, s *model.UserStats) {
	t := newTable(w, fmt.Sprintf("User %d (%s - %s)", s.UserID, s.From.Format("2006-01-02"), s.To.Format("2006-01-02")))
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Views", s.TotalViews},
		{"Movies", s.MovieViews},
		{"Series", s.SeriesViews},
		{"Avg rating", formatRating(s.AverageRating)},
	})
	t.Render()

	g := newTable(w, "Top genres")
	g.AppendHeader(table.Row{"Genre", "Views"})
	for _, gc := range s.TopGenres {
		g.AppendRow(table.Row{gc.Genre, gc.Views})
	}
	g.Render()

	m := newTable(w, "Monthly")
	m.AppendHeader(table.Row{"Month", "Views", "Avg rating"})
	for _, b := range s.Monthly {
		m.AppendRow(table.Row{b.Bucket.Format("2006-01"), b.Views, formatRating(b.AverageRating)})
	}
	m.Render()
}
