package overlay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/52poke/doubanx/internal/lookup"
)

var rateTmpl = template.Must(template.New("rate").Parse(
	`<div id="interest_sectl" class="doubanx">` +
		`<div class="interest_head">` +
		`<a class="interest_close" href="javascript:void(0)">×</a>` +
		`<a class="interest_title" href="{{.URL}}" target="_blank">{{.Name}}</a>` +
		`</div>` +
		`<div class="rating_self">` +
		`<strong class="rating_num">{{if .Average}}{{.Average}}{{else}}-{{end}}</strong>` +
		`{{if .Votes}}<span class="rating_people">{{.Votes}}</span>{{end}}` +
		`</div>` +
		`</div>`))

var reviewTmpl = template.Must(template.New("review").Parse(
	`<div class="interest_review">` +
		`{{range .}}<div class="review_item">` +
		`{{if .Title}}<h3>{{.Title}}</h3>{{end}}` +
		`{{if .Author}}<span class="review_author">{{.Author}}</span>{{end}}` +
		`<p>{{.Text}}</p>` +
		`</div>{{end}}` +
		`</div>`))

type rateView struct {
	Name    string
	URL     string
	Average string
	Votes   string
}

type reviewView struct {
	Title  string
	Author string
	Text   string
}

func renderRate(kind lookup.Kind, r lookup.Rating) (string, error) {
	avg, votes := summarize(r.Rate)
	return execute(rateTmpl, rateView{
		Name:    r.Name,
		URL:     subjectURL(kind, r.ID),
		Average: avg,
		Votes:   votes,
	})
}

func renderReview(r lookup.Review) (string, error) {
	items := reviewItems(r.Data)
	if len(items) == 0 {
		return "", nil
	}
	return execute(reviewTmpl, items)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func subjectURL(kind lookup.Kind, id string) string {
	host := "movie.douban.com"
	if kind == lookup.KindBook {
		host = "book.douban.com"
	}
	return fmt.Sprintf("https://%s/subject/%s/", host, id)
}

// summarize pulls the average score and vote count out of a rate object,
// either flat or nested under "rating".
func summarize(raw json.RawMessage) (average, votes string) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", ""
	}
	if nested, ok := m["rating"].(map[string]any); ok {
		m = nested
	}
	return pick(m, "average", "value"), pick(m, "numRaters", "count", "votes")
}

func reviewItems(raw json.RawMessage) []reviewView {
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		var wrapped struct {
			Reviews []map[string]any `json:"reviews"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil
		}
		list = wrapped.Reviews
	}
	items := make([]reviewView, 0, len(list))
	for _, m := range list {
		v := reviewView{
			Title:  pick(m, "title"),
			Author: pick(m, "author", "name"),
			Text:   pick(m, "content", "summary", "comment"),
		}
		if v.Title == "" && v.Text == "" {
			continue
		}
		items = append(items, v)
	}
	return items
}

func pick(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strings.TrimSuffix(fmt.Sprintf("%.1f", t), ".0")
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
