package feed

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// recovered is what could be salvaged from a document the XML parsers gave
// up on.
type recovered struct {
	title   string
	link    string
	entries []RawEntry
}

// entryFields maps element names, as the tokenizer lower-cases them, to the
// entry field they fill.
var entryFields = map[string]string{
	"guid":            "id",
	"id":              "id",
	"title":           "title",
	"link":            "link",
	"description":     "summary",
	"summary":         "summary",
	"content":         "content",
	"content:encoded": "content",
	"pubdate":         "published",
	"published":       "published",
	"dc:date":         "updated",
	"updated":         "updated",
	"author":          "author",
	"dc:creator":      "author",
	"category":        "category",
}

// recoverEntries walks the document with the HTML tokenizer, which never
// fails, and keeps every <item> or <entry> it can see. An entry cut off by
// the end of the input is kept as far as it got.
func recoverEntries(body []byte) recovered {
	var (
		out   recovered
		cur   *RawEntry
		field string
		text  strings.Builder
	)

	commit := func() {
		if field == "" {
			return
		}
		value := strings.TrimSpace(stripCDATA(text.String()))
		if cur == nil {
			switch field {
			case "title":
				if out.title == "" {
					out.title = value
				}
			case "link":
				if out.link == "" {
					out.link = value
				}
			}
		} else {
			setField(cur, field, value)
		}
		field = ""
		text.Reset()
	}
	flush := func() {
		commit()
		if cur != nil && (cur.ID != "" || cur.Title != "" || cur.Link != "") {
			out.entries = append(out.entries, *cur)
		}
		cur = nil
	}

	z := html.NewTokenizer(bytes.NewReader(body))
	z.AllowCDATA(true)
	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return out

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch name := tok.Data; {
			case name == "item" || name == "entry":
				flush()
				cur = &RawEntry{}
			case name == "link" && attr(tok, "href") != "":
				if cur != nil {
					addLinkAttr(cur, tok)
				} else if out.link == "" && attr(tok, "rel") != "self" {
					out.link = attr(tok, "href")
				}
			case name == "category" && attr(tok, "term") != "":
				if cur != nil {
					cur.Categories = append(cur.Categories, attr(tok, "term"))
				}
			case name == "name" && field == "author":
				// Atom wraps the display name; drop anything before it.
				text.Reset()
			case field == "" && tok.Type == html.StartTagToken:
				if _, ok := entryFields[name]; ok {
					field = name
				}
			}

		case html.TextToken:
			if field != "" {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "item", "entry":
				flush()
			case field:
				commit()
			case "name":
				if field == "author" {
					commit()
				}
			}
		}
	}
}

func setField(raw *RawEntry, field, value string) {
	if value == "" {
		return
	}
	switch entryFields[field] {
	case "id":
		raw.ID = value
	case "title":
		raw.Title = value
	case "link":
		if raw.Link == "" {
			raw.Link = value
		}
	case "summary":
		raw.Summary = value
	case "content":
		raw.Content = value
	case "published":
		raw.Published = value
	case "updated":
		raw.Updated = value
	case "author":
		raw.Author = value
	case "category":
		raw.Categories = append(raw.Categories, value)
	}
}

func addLinkAttr(raw *RawEntry, tok html.Token) {
	href, typ := attr(tok, "href"), attr(tok, "type")
	switch attr(tok, "rel") {
	case "enclosure":
		raw.Enclosures = append(raw.Enclosures, Link{Href: href, Type: typ})
	case "", "alternate":
		if raw.Link == "" {
			raw.Link = href
		}
	}
	raw.Links = append(raw.Links, Link{Href: href, Type: typ})
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// stripCDATA unwraps a CDATA section that reached us as raw text, which is
// how the tokenizer hands over the contents of <title>.
func stripCDATA(s string) string {
	trimmed := strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(trimmed, "<![CDATA["); ok {
		return strings.TrimSuffix(rest, "]]>")
	}
	return s
}
