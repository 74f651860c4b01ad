package overlay

import (
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/52poke/doubanx/internal/lookup"
	"github.com/52poke/doubanx/internal/retrieve"
)

const panelSelector = "#interest_sectl"

// Page is an HTML document the rating overlay is rendered into. It is safe
// for the concurrent deliveries of a retrieval.
type Page struct {
	mu   sync.Mutex
	doc  *goquery.Document
	kind lookup.Kind
	log  zerolog.Logger
}

func Parse(r io.Reader, kind lookup.Kind, log zerolog.Logger) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Page{doc: doc, kind: kind, log: log}, nil
}

func ParseString(html string, kind lookup.Kind, log zerolog.Logger) (*Page, error) {
	return Parse(strings.NewReader(html), kind, log)
}

// ShowRate appends a rating panel to the body.
func (p *Page) ShowRate(d retrieve.Delivery[lookup.Rating]) {
	markup, err := renderRate(p.kind, d.Value)
	if err != nil {
		p.log.Error().Err(err).Str("id", d.Value.ID).Msg("render rating panel")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find("body").AppendHtml(markup)
}

// ShowReview appends the reviews to the most recent rating panel. Without a
// panel there is nothing to attach to.
func (p *Page) ShowReview(panel retrieve.Panel) {
	markup, err := renderReview(panel.Review)
	if err != nil {
		p.log.Error().Err(err).Str("id", panel.Rate.ID).Msg("render reviews")
		return
	}
	if markup == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc.Find(panelSelector).Last().AppendHtml(markup)
}

// Dismiss removes the last rendered panel and reports whether there was one.
func (p *Page) Dismiss() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(panelSelector).Last()
	if sel.Length() == 0 {
		return false
	}
	sel.Remove()
	return true
}

// Panels counts the rating panels currently on the page.
func (p *Page) Panels() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Find(panelSelector).Length()
}

func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}
