package extract

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Metric roles and the test ids that carry them. The toggled variants
// appear once the viewer has liked or reposted the post.
var metricTestIDs = map[string][]string{
	"like":    {"like", "unlike"},
	"retweet": {"retweet", "unretweet"},
	"reply":   {"reply"},
}

// ReadMetric returns the engagement count for role inside container.
// It never fails: a missing region, a missing label or a non-numeric
// label all read as 0.
func ReadMetric(container *goquery.Selection, role string) int {
	ids, ok := metricTestIDs[role]
	if !ok {
		ids = []string{role}
	}
	for _, id := range ids {
		region := container.Find(`[data-testid="` + id + `"]`).First()
		if region.Length() == 0 {
			continue
		}
		label, _ := region.Attr("aria-label")
		return ParseCount(label)
	}
	return 0
}

// ParseCount parses an accessible label such as "1,234 Likes. Like"
// into 1234. Anything that is not a plain grouped integer reads as 0.
func ParseCount(label string) int {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0
	}
	token := strings.ReplaceAll(fields[0], ",", "")
	if token == "" {
		return 0
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0
		}
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0
	}
	return n
}
