package dumpfmt

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

// Catalog report prefixes. Every key starts with "Catalog"; the sub
// dictionaries add their own name after it.
const (
	catalogPrefix     = "Catalog"
	viewerPrefsPrefix = "ViewerPreferences"
	markInfoPrefix    = "MarkInfo"
	openActionPrefix  = "OpenAction"
)

func catalogValue(e engine.CatalogEntry) string {
	if e.Kind != engine.CatalogBool {
		return e.Value
	}
	if e.Value == "true" {
		return "True"
	}
	return "False"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// WriteCatalog writes the dump_catalog report: "Catalog<Key>: value"
// lines, or one JSON object when asJSON is set.
func WriteCatalog(out io.Writer, c *engine.Catalog, asJSON bool) error {
	if asJSON {
		return writeCatalogJSON(out, c)
	}
	w := newWriter(out)
	w.line("CatalogBegin")
	w.line("CatalogPdfVersion: %s", c.PDFVersion)
	w.line("CatalogEncrypted: %s", yesNo(c.Encrypted))
	for _, e := range c.Entries {
		w.line("%s%s: %s", catalogPrefix, e.Key, catalogValue(e))
	}
	for _, e := range c.ViewerPreferences {
		w.line("%s%s%s: %s", catalogPrefix, viewerPrefsPrefix, e.Key, catalogValue(e))
	}
	for _, e := range c.MarkInfo {
		w.line("%s%s%s: %s", catalogPrefix, markInfoPrefix, e.Key, catalogValue(e))
	}
	if oa := c.OpenAction; oa != nil {
		w.line("CatalogOpenActionPage: %d", oa.Page)
		w.line("CatalogOpenActionDestType: %s", oa.DestType)
		if len(oa.Args) > 0 {
			w.line("CatalogOpenActionArgs: %s", strings.Join(oa.Args, " "))
		}
	}
	return w.flush()
}

// object is a JSON object that keeps its key order.
type object []member

type member struct {
	key   string
	value any
}

func (o object) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func entriesObject(entries []engine.CatalogEntry) object {
	o := make(object, 0, len(entries))
	for _, e := range entries {
		var v any = e.Value
		if e.Kind == engine.CatalogBool {
			v = e.Value == "true"
		}
		o = append(o, member{e.Key, v})
	}
	return o
}

func writeCatalogJSON(out io.Writer, c *engine.Catalog) error {
	o := entriesObject(c.Entries)
	if len(c.ViewerPreferences) > 0 {
		o = append(o, member{viewerPrefsPrefix, entriesObject(c.ViewerPreferences)})
	}
	if len(c.MarkInfo) > 0 {
		o = append(o, member{markInfoPrefix, entriesObject(c.MarkInfo)})
	}
	if oa := c.OpenAction; oa != nil {
		o = append(o, member{openActionPrefix, object{
			{"Page", oa.Page},
			{"DestType", oa.DestType},
			{"Args", strings.Join(oa.Args, " ")},
		}})
	}
	o = append(o, member{"PdfVersion", c.PDFVersion}, member{"Encrypted", yesNo(c.Encrypted)})

	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return err
	}
	_, err = out.Write(append(data, '\n'))
	return err
}

// CatalogUpdate is a parsed update_catalog data file.
type CatalogUpdate struct {
	engine.Catalog

	// Ignored lists keys outside the catalog vocabulary, in order of first
	// appearance.
	Ignored []string
}

type catalogParser struct {
	out     *CatalogUpdate
	ignored map[string]bool
	action  map[string]string
}

// ParseCatalog reads an update_catalog data file: either dump_catalog
// lines or the JSON object dump_catalog json writes. CatalogPdfVersion and
// CatalogEncrypted describe the source document and are not applied.
func ParseCatalog(r io.Reader) (*CatalogUpdate, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.IO(err, "reading data file")
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	p := &catalogParser{out: &CatalogUpdate{}, ignored: map[string]bool{}, action: map[string]string{}}

	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = p.fromJSON(trimmed)
	} else {
		err = p.fromLines(data)
	}
	if err != nil {
		return nil, err
	}
	if err := p.openAction(); err != nil {
		return nil, err
	}
	return p.out, nil
}

func (p *catalogParser) fromLines(data []byte) error {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text == "CatalogBegin" {
			continue
		}
		key, value, ok := strings.Cut(text, ":")
		if !ok {
			return lineError(n, "expected 'Key: Value', got %q", text)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		name, ok := strings.CutPrefix(key, catalogPrefix)
		if !ok {
			p.ignore(key)
			continue
		}
		if err := p.set(name, value, func(format string, args ...any) error {
			return lineError(n, format, args...)
		}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return errors.IO(err, "reading data file")
	}
	return nil
}

func (p *catalogParser) fromJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return errors.Syntax("data file is not a JSON object: %v", err)
	}
	fail := func(format string, args ...any) error { return errors.Syntax(format, args...) }
	// Fixed order so errors and Ignored are deterministic.
	var names []string
	for _, k := range engine.CatalogKeys {
		names = append(names, k.Name)
	}
	names = append(names, viewerPrefsPrefix, markInfoPrefix, openActionPrefix, "PdfVersion", "Encrypted")
	for _, name := range sortedKeys(doc) {
		if !contains(names, name) {
			names = append(names, name)
		}
	}
	for _, name := range names {
		v, ok := doc[name]
		if !ok {
			continue
		}
		if sub, ok := v.(map[string]any); ok {
			for _, k := range sortedKeys(sub) {
				if err := p.set(name+k, jsonScalar(sub[k]), fail); err != nil {
					return err
				}
			}
			continue
		}
		if err := p.set(name, jsonScalar(v), fail); err != nil {
			return err
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func jsonScalar(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case string:
		return x
	case nil:
		return "null"
	}
	return ""
}

// set applies one key, named without the "Catalog" prefix.
func (p *catalogParser) set(name, value string, fail func(string, ...any) error) error {
	switch {
	case name == "PdfVersion" || name == "Encrypted":
		return nil
	case strings.HasPrefix(name, openActionPrefix):
		p.action[strings.TrimPrefix(name, openActionPrefix)] = value
		return nil
	case strings.HasPrefix(name, viewerPrefsPrefix):
		return p.entry(&p.out.ViewerPreferences, engine.ViewerPreferenceKeys, name, strings.TrimPrefix(name, viewerPrefsPrefix), value, fail)
	case strings.HasPrefix(name, markInfoPrefix):
		return p.entry(&p.out.MarkInfo, engine.MarkInfoKeys, name, strings.TrimPrefix(name, markInfoPrefix), value, fail)
	default:
		return p.entry(&p.out.Entries, engine.CatalogKeys, name, name, value, fail)
	}
}

func (p *catalogParser) entry(dst *[]engine.CatalogEntry, keys []engine.CatalogKey, full, name, value string, fail func(string, ...any) error) error {
	k, ok := engine.LookupCatalogKey(keys, name)
	if !ok {
		p.ignore(catalogPrefix + full)
		return nil
	}
	if k.Kind == engine.CatalogBool {
		b, ok := parseBool(value)
		if !ok {
			return fail("%s%s: expected True or False, got %q", catalogPrefix, full, value)
		}
		value = strconv.FormatBool(b)
	} else if value == "" {
		return fail("%s%s: empty value", catalogPrefix, full)
	}
	for i := range *dst {
		if (*dst)[i].Key == k.Name {
			(*dst)[i].Value = value
			return nil
		}
	}
	*dst = append(*dst, engine.CatalogEntry{Key: k.Name, Value: value, Kind: k.Kind})
	return nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes":
		return true, true
	case "false", "no":
		return false, true
	}
	return false, false
}

func (p *catalogParser) ignore(key string) {
	if !p.ignored[key] {
		p.ignored[key] = true
		p.out.Ignored = append(p.out.Ignored, key)
	}
}

// openAction assembles CatalogOpenActionPage, DestType and Args.
func (p *catalogParser) openAction() error {
	if len(p.action) == 0 {
		return nil
	}
	pageText, ok := p.action["Page"]
	if !ok {
		return errors.Syntax("CatalogOpenActionPage is required for an open action")
	}
	page, err := strconv.Atoi(pageText)
	if err != nil || page < 1 {
		return errors.Syntax("CatalogOpenActionPage: invalid page %q", pageText)
	}
	oa := &engine.OpenAction{Page: page, DestType: p.action["DestType"]}
	if oa.DestType == "" {
		oa.DestType = "XYZ"
	}
	for _, arg := range strings.Fields(p.action["Args"]) {
		if strings.EqualFold(arg, "null") || strings.EqualFold(arg, "none") {
			oa.Args = append(oa.Args, "null")
			continue
		}
		if _, err := strconv.ParseFloat(arg, 64); err != nil {
			return errors.Syntax("CatalogOpenActionArgs: %q is not a number", arg)
		}
		oa.Args = append(oa.Args, arg)
	}
	for _, key := range sortedKeys(p.action) {
		if key != "Page" && key != "DestType" && key != "Args" {
			p.ignore(catalogPrefix + openActionPrefix + key)
		}
	}
	p.out.OpenAction = oa
	return nil
}

// CheckCatalogPages verifies the open action page exists in a document of
// count pages.
func CheckCatalogPages(c *engine.Catalog, count int) error {
	if c.OpenAction != nil && c.OpenAction.Page > count {
		return errors.Range("page %d not found", c.OpenAction.Page).
			WithHint("The document has %d pages", count)
	}
	return nil
}
