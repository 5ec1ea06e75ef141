package omdb

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/watchlog/internal/model"
)

// notAvailable はOMDbが値なしを表すために返す文字列。
const notAvailable = "N/A"

// contentテーブルの列長（文字数）。
const (
	maxTitleLen    = 500
	maxGenreLen    = 255
	maxDirectorLen = 255
	maxLanguageLen = 100
	maxCountryLen  = 100
	maxIMDbIDLen   = 20

	maxRating = 10
)

// Title はOMDbのタイトル詳細レスポンスを表す。
// 数値項目も含めて全て文字列で返される。
type Title struct {
	Title        string `json:"Title"`
	Year         string `json:"Year"`
	Runtime      string `json:"Runtime"`
	Genre        string `json:"Genre"`
	Director     string `json:"Director"`
	Actors       string `json:"Actors"`
	Plot         string `json:"Plot"`
	Language     string `json:"Language"`
	Country      string `json:"Country"`
	Poster       string `json:"Poster"`
	IMDbRating   string `json:"imdbRating"`
	IMDbID       string `json:"imdbID"`
	Type         string `json:"Type"`
	TotalSeasons string `json:"totalSeasons"`
	Response     string `json:"Response"`
	Error        string `json:"Error"`
}

// Normalize はOMDbのレスポンスを正規化されたコンテンツレコードに変換する。
// タイトルが欠けたレスポンスは不正とみなしnilを返す。
// 個々の項目のパース失敗は値なしとして扱い、レコード全体は破棄しない。
func Normalize(raw Title) *model.Content {
	title := clip(text(raw.Title), maxTitleLen)
	if title == "" {
		return nil
	}

	kind := model.KindMovie
	if strings.EqualFold(strings.TrimSpace(raw.Type), string(model.KindSeries)) {
		kind = model.KindSeries
	}

	return &model.Content{
		Title:           title,
		OriginalTitle:   title,
		Description:     text(raw.Plot),
		Kind:            kind,
		ReleaseYear:     parseStartYear(raw.Year),
		DurationMinutes: parseLeadingInt(raw.Runtime),
		TotalSeasons:    parseLeadingInt(raw.TotalSeasons),
		IMDbRating:      parseRating(raw.IMDbRating),
		IMDbID:          parseIMDbID(raw.IMDbID),
		PosterURL:       text(raw.Poster),
		Genre:           clip(text(raw.Genre), maxGenreLen),
		Director:        clip(text(raw.Director), maxDirectorLen),
		Cast:            text(raw.Actors),
		Language:        clip(text(raw.Language), maxLanguageLen),
		Country:         clip(text(raw.Country), maxCountryLen),
		IsActive:        true,
	}
}

// text は前後の空白を除去し、"N/A" を空文字列に変換する。
func text(s string) string {
	s = strings.TrimSpace(s)
	if s == notAvailable {
		return ""
	}
	return s
}

// clip は文字列を先頭からn文字（ルーン単位）に切り詰める。
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}

// parseIMDbID は外部IDを返す。列長を超えるIDは切り詰めると別のIDになるため値なしとする。
func parseIMDbID(s string) string {
	s = text(s)
	if utf8.RuneCountInString(s) > maxIMDbIDLen {
		return ""
	}
	return s
}

// parseLeadingInt は "148 min" のような文字列の先頭の整数を取り出す。
func parseLeadingInt(s string) *int {
	s = text(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}

// parseRating はIMDb評価を浮動小数点数として解釈する。
// NaN、無限大、0から10の範囲外の値は値なしとする。
func parseRating(s string) *float64 {
	s = text(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxRating {
		return nil
	}
	return &v
}

// parseStartYear は "2010–2015" や "2019-" のような範囲表記から開始年を取り出す。
// 区切りはエンダッシュとハイフンの両方を受け付ける。
func parseStartYear(s string) *int {
	s = text(s)
	if i := strings.IndexAny(s, "–-"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
