package dumpfmt

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

// Update is a parsed update_info data file.
type Update struct {
	engine.MetadataUpdate

	// Ignored lists keys outside the update_info vocabulary, in order of
	// first appearance. They are skipped, not rejected.
	Ignored []string
}

// Record kinds, named by the prefix their keys share.
const (
	recInfo      = "Info"
	recBookmark  = "Bookmark"
	recPageMedia = "PageMedia"
	recPageLabel = "PageLabel"
)

// Keys that belong to no record and carry nothing update_info applies.
var reportOnly = map[string]bool{
	"PdfID0":        true,
	"PdfID1":        true,
	"NumberOfPages": true,
}

var invalidRecord = map[string]string{
	recInfo:      "data info record not valid",
	recBookmark:  "bookmark record not valid",
	recPageMedia: "page media record not valid",
	recPageLabel: "page label record not valid",
}

type record struct {
	kind string
	line int
	keys map[string]string
}

func recordKind(key string) string {
	// PageMedia and PageLabel before anything shorter that could prefix them.
	for _, k := range []string{recPageMedia, recPageLabel, recBookmark, recInfo} {
		if strings.HasPrefix(key, k) {
			return k
		}
	}
	return ""
}

func lineError(line int, format string, args ...any) *errors.Error {
	e := errors.Syntax(format, args...).WithContext("line", line)
	e.Message += " (data file line " + strconv.Itoa(line) + ")"
	return e
}

type parser struct {
	enc     Encoding
	out     *Update
	cur     *record
	ignored map[string]bool
}

// ParseUpdate reads an update_info data file. Bookmarks and page labels in
// the result are nil when the file has no such records, so the document's
// existing ones stay in place.
func ParseUpdate(r io.Reader, enc Encoding) (*Update, error) {
	p := &parser{enc: enc, out: &Update{}, ignored: map[string]bool{}}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimRight(sc.Text(), "\r")
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := p.line(n, text); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.IO(err, "reading data file")
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	if err := checkBookmarkLevels(p.out.Bookmarks); err != nil {
		return nil, err
	}
	return p.out, nil
}

func (p *parser) line(n int, text string) error {
	key, value, ok := strings.Cut(text, ":")
	if trimmed := strings.TrimSpace(text); !ok && strings.HasSuffix(trimmed, "Begin") {
		kind := strings.TrimSuffix(trimmed, "Begin")
		if _, known := invalidRecord[kind]; known {
			if err := p.finish(); err != nil {
				return err
			}
			p.cur = &record{kind: kind, line: n, keys: map[string]string{}}
			return nil
		}
	}
	if !ok {
		return lineError(n, "expected 'Key: Value', got %q", text)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimPrefix(value, " ")

	kind := recordKind(key)
	switch {
	case reportOnly[key]:
		return p.finish()
	case kind == "":
		if !p.ignored[key] {
			p.ignored[key] = true
			p.out.Ignored = append(p.out.Ignored, key)
		}
		return nil
	case p.cur == nil || p.cur.kind != kind:
		return lineError(n, "%s", invalidRecord[kind])
	}
	if _, dup := p.cur.keys[key]; dup {
		return lineError(n, "%s", invalidRecord[kind])
	}
	p.cur.keys[key] = value
	return nil
}

// finish validates and applies the open record.
func (p *parser) finish() error {
	rec := p.cur
	p.cur = nil
	if rec == nil {
		return nil
	}
	switch rec.kind {
	case recInfo:
		return p.info(rec)
	case recBookmark:
		return p.bookmark(rec)
	case recPageMedia:
		return p.pageMedia(rec)
	case recPageLabel:
		return p.pageLabel(rec)
	}
	return nil
}

func (p *parser) invalid(rec *record) error {
	return lineError(rec.line, "%s", invalidRecord[rec.kind])
}

func (p *parser) info(rec *record) error {
	key, okKey := rec.keys["InfoKey"]
	value, okValue := rec.keys["InfoValue"]
	if !okKey || !okValue || len(rec.keys) != 2 || strings.TrimSpace(key) == "" {
		return p.invalid(rec)
	}
	p.out.Info = append(p.out.Info, engine.InfoEntry{Key: p.enc.decode(key), Value: p.enc.decode(value)})
	return nil
}

func atoi(rec *record, key string, least int) (int, bool) {
	s, ok := rec.keys[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < least {
		return 0, false
	}
	return n, true
}

func (p *parser) bookmark(rec *record) error {
	title, okTitle := rec.keys["BookmarkTitle"]
	level, okLevel := atoi(rec, "BookmarkLevel", 1)
	page, okPage := atoi(rec, "BookmarkPageNumber", 0)
	if !okTitle || !okLevel || !okPage {
		return p.invalid(rec)
	}
	if p.out.Bookmarks == nil {
		p.out.Bookmarks = []engine.Bookmark{}
	}
	p.out.Bookmarks = append(p.out.Bookmarks, engine.Bookmark{Title: p.enc.decode(title), Level: level, Page: page})
	return nil
}

func parseRect(s string) (*engine.Rect, bool) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return nil, false
	}
	var r engine.Rect
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		r[i] = v
	}
	return &r, true
}

func (p *parser) pageMedia(rec *record) error {
	num, ok := atoi(rec, "PageMediaNumber", 1)
	if !ok {
		return p.invalid(rec)
	}
	u := engine.PageMediaUpdate{Number: num}
	if _, present := rec.keys["PageMediaRotation"]; present {
		rot, ok := atoi(rec, "PageMediaRotation", 0)
		if !ok || rot%90 != 0 {
			return p.invalid(rec)
		}
		rot %= 360
		u.Rotation = &rot
	}
	if s, present := rec.keys["PageMediaRect"]; present {
		r, ok := parseRect(s)
		if !ok {
			return p.invalid(rec)
		}
		u.Rect = r
	}
	if s, present := rec.keys["PageMediaCropRect"]; present {
		r, ok := parseRect(s)
		if !ok {
			return p.invalid(rec)
		}
		u.CropRect = r
	}
	// PageMediaDimensions is derived from the rect and not applied.
	p.out.PageMedia = append(p.out.PageMedia, u)
	return nil
}

func parseStyle(s string) (engine.NumStyle, bool) {
	for _, st := range engine.NumStyles {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (p *parser) pageLabel(rec *record) error {
	idx, ok := atoi(rec, "PageLabelNewIndex", 1)
	if !ok {
		return p.invalid(rec)
	}
	pl := engine.PageLabel{NewIndex: idx, Start: 1, Style: engine.StyleDecimal}
	if _, present := rec.keys["PageLabelStart"]; present {
		start, ok := atoi(rec, "PageLabelStart", 1)
		if !ok {
			return p.invalid(rec)
		}
		pl.Start = start
	}
	if s, present := rec.keys["PageLabelPrefix"]; present {
		pl.Prefix = p.enc.decode(s)
	}
	if s, present := rec.keys["PageLabelNumStyle"]; present {
		st, ok := parseStyle(strings.TrimSpace(s))
		if !ok {
			return lineError(rec.line, "PageLabelNumStyle: invalid value %s", strings.TrimSpace(s))
		}
		pl.Style = st
	}
	if p.out.PageLabels == nil {
		p.out.PageLabels = []engine.PageLabel{}
	}
	p.out.PageLabels = append(p.out.PageLabels, pl)
	return nil
}

// checkBookmarkLevels rejects outlines that skip a level on the way down.
func checkBookmarkLevels(bms []engine.Bookmark) error {
	prev := 0
	for i, bm := range bms {
		if bm.Level > prev+1 {
			return errors.Syntax("bookmark record not valid: bookmark %d has level %d after level %d", i+1, bm.Level, prev)
		}
		prev = bm.Level
	}
	return nil
}

// CheckPages verifies every page number in u exists in a document of
// count pages.
func CheckPages(u *engine.MetadataUpdate, count int) error {
	var pages []int
	for _, pm := range u.PageMedia {
		pages = append(pages, pm.Number)
	}
	for _, pl := range u.PageLabels {
		pages = append(pages, pl.NewIndex)
	}
	for _, bm := range u.Bookmarks {
		pages = append(pages, bm.Page)
	}
	sort.Ints(pages)
	if len(pages) > 0 && pages[len(pages)-1] > count {
		return errors.Range("page %d not found", pages[len(pages)-1]).
			WithHint("The document has %d pages", count)
	}
	return nil
}
