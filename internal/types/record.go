package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is a single bookmarked post extracted from the feed.
type Record struct {
	// ID is the status identifier taken from the post permalink.
	ID string `json:"tweet_id"`

	// URL is the absolute permalink of the post.
	URL string `json:"url"`

	// Text is the post body. Empty when the post has no text region.
	Text string `json:"text"`

	// AuthorName is the display name of the author, if one was rendered.
	AuthorName *string `json:"author_name"`

	// AuthorHandle is the author's handle without the leading "@".
	AuthorHandle *string `json:"author_handle"`

	// CreatedAt is the ISO-8601 timestamp rendered with the post.
	CreatedAt *string `json:"created_at"`

	// MediaURLs lists attached photo sources in encounter order.
	MediaURLs []string `json:"media_urls"`

	LikeCount    int `json:"like_count"`
	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MarshalJSON guarantees media_urls is encoded as an array, never null.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.MediaURLs == nil {
		r.MediaURLs = []string{}
	}
	return json.Marshal(plain(r))
}

// ToFlatMap returns a flat map suitable for CSV export.
func (r Record) ToFlatMap() map[string]string {
	return map[string]string{
		"tweet_id":      r.ID,
		"url":           r.URL,
		"text":          r.Text,
		"author_name":   Deref(r.AuthorName),
		"author_handle": Deref(r.AuthorHandle),
		"created_at":    Deref(r.CreatedAt),
		"media_urls":    strings.Join(r.MediaURLs, " "),
		"like_count":    strconv.Itoa(r.LikeCount),
		"retweet_count": strconv.Itoa(r.RetweetCount),
		"reply_count":   strconv.Itoa(r.ReplyCount),
	}
}

// FlatColumns is the column order used by ToFlatMap consumers.
var FlatColumns = []string{
	"tweet_id", "url", "text", "author_name", "author_handle", "created_at",
	"media_urls", "like_count", "retweet_count", "reply_count",
}
