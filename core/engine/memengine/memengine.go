// Package memengine is an in-memory engine.Engine for tests.
//
// Documents are plain structs registered under a path. Saved documents are
// YAML, so a test can decode what the executor wrote and assert on pages,
// fields and metadata without a real PDF library.
package memengine

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/pdftl/core/engine"
)

// Page is one page. Origin identifies where the page came from, e.g. "A3".
type Page struct {
	Origin   string    `yaml:"origin"`
	Rotation int       `yaml:"rotation"`
	Media    []float64 `yaml:"media,omitempty"`
	Crop     []float64 `yaml:"crop,omitempty"`
	Overlays []string  `yaml:"overlays,omitempty"`
	Spin     float64   `yaml:"spin,omitempty"`
}

// Field mirrors engine.Field in a serializable form.
type Field struct {
	Name          string   `yaml:"name"`
	AltName       string   `yaml:"alt,omitempty"`
	Type          string   `yaml:"type"`
	Flags         int      `yaml:"flags,omitempty"`
	Value         string   `yaml:"value,omitempty"`
	Values        []string `yaml:"values,omitempty"`
	StateOptions  []string `yaml:"states,omitempty"`
	StateDisplays []string `yaml:"displays,omitempty"`
	Justification int      `yaml:"q,omitempty"`
	MaxLength     int      `yaml:"maxlen,omitempty"`
	// InvalidKey simulates a field dictionary holding a key that is not
	// valid UTF-8.
	InvalidKey bool `yaml:"invalid_key,omitempty"`
}

// Attachment mirrors engine.Attachment with text content.
type Attachment struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Page        int    `yaml:"page,omitempty"`
	Relation    string `yaml:"relation,omitempty"`
	Data        string `yaml:"data"`
}

// Link is a link annotation with a URI action.
type Link struct {
	Page int       `yaml:"page"`
	Rect []float64 `yaml:"rect"`
	URI  string    `yaml:"uri"`
}

// Security records the encryption a document carries.
type Security struct {
	Method        int    `yaml:"method"`
	OwnerPassword string `yaml:"owner_pw,omitempty"`
	UserPassword  string `yaml:"user_pw,omitempty"`
	Permissions   uint32 `yaml:"permissions"`
}

// Doc is a whole document.
type Doc struct {
	Pages           []Page             `yaml:"pages"`
	Info            []engine.InfoEntry `yaml:"info,omitempty"`
	ID              []string           `yaml:"id,omitempty"`
	Bookmarks       []engine.Bookmark  `yaml:"bookmarks,omitempty"`
	PageLabels      []engine.PageLabel `yaml:"labels,omitempty"`
	Fields          []Field            `yaml:"fields,omitempty"`
	Attachments     []Attachment       `yaml:"attachments,omitempty"`
	URIBase         string             `yaml:"uri_base,omitempty"`
	Links           []Link             `yaml:"links,omitempty"`
	Security        *Security          `yaml:"security,omitempty"`
	XFA             bool               `yaml:"xfa,omitempty"`
	NeedAppearances bool               `yaml:"need_appearances,omitempty"`
	Compressed      bool               `yaml:"compressed,omitempty"`
	Version         string             `yaml:"version,omitempty"`
	Catalog         *Catalog           `yaml:"catalog,omitempty"`
}

// Catalog holds catalog entries as plain maps. OpenAction is
// "page desttype args...".
type Catalog struct {
	Entries           map[string]string `yaml:"entries,omitempty"`
	ViewerPreferences map[string]string `yaml:"viewer_preferences,omitempty"`
	MarkInfo          map[string]string `yaml:"mark_info,omitempty"`
	OpenAction        []string          `yaml:"open_action,omitempty"`
}

// NewDoc returns a document with n letter-sized pages whose origins are
// prefix1..prefixN.
func NewDoc(prefix string, n int) *Doc {
	d := &Doc{}
	for i := 1; i <= n; i++ {
		d.Pages = append(d.Pages, Page{
			Origin: fmt.Sprintf("%s%d", prefix, i),
			Media:  []float64{0, 0, 612, 792},
		})
	}
	return d
}

// Origins lists page origins in order, with "@deg" appended for rotated
// pages.
func (d *Doc) Origins() []string {
	out := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		out[i] = p.Origin
		if p.Rotation != 0 {
			out[i] = fmt.Sprintf("%s@%d", p.Origin, p.Rotation)
		}
	}
	return out
}

func (d *Doc) clone() *Doc {
	data, err := yaml.Marshal(d)
	if err != nil {
		panic(err)
	}
	var c Doc
	if err := yaml.Unmarshal(data, &c); err != nil {
		panic(err)
	}
	return &c
}

// Decode parses a saved document.
func Decode(data []byte) (*Doc, error) {
	var d Doc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("memengine: not a document: %w", err)
	}
	return &d, nil
}

// ReadFile decodes a saved document from disk.
func ReadFile(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Engine holds registered documents.
type Engine struct {
	mu    sync.Mutex
	files map[string]*Doc

	// Unsupported lists engine.Feature* names this engine refuses.
	Unsupported map[string]bool

	Opened int
	Closed int
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{files: make(map[string]*Doc), Unsupported: make(map[string]bool)}
}

// Add registers d under path. Relative paths are matched as given.
func (e *Engine) Add(path string, d *Doc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files[filepath.Clean(path)] = d
}

func (e *Engine) lookup(in engine.Input) (*Doc, error) {
	if in.Data != nil {
		return Decode(in.Data)
	}
	e.mu.Lock()
	d, ok := e.files[filepath.Clean(in.Path)]
	e.mu.Unlock()
	if ok {
		return d.clone(), nil
	}
	// Fall back to documents saved to disk by an earlier run.
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: in.Path, Err: fs.ErrNotExist}
	}
	return Decode(data)
}

// Open implements engine.Engine.
func (e *Engine) Open(ctx context.Context, in engine.Input) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := e.lookup(in)
	if err != nil {
		return nil, err
	}
	encrypted := false
	if s := d.Security; s != nil && s.Method != 0 {
		if in.Password == "" && s.UserPassword != "" {
			return nil, engine.ErrWrongPassword
		}
		if in.Password != "" && in.Password != s.OwnerPassword && in.Password != s.UserPassword {
			return nil, engine.ErrWrongPassword
		}
		d.Security = nil
		encrypted = true
	}
	e.mu.Lock()
	e.Opened++
	e.mu.Unlock()
	return &document{eng: e, doc: d, encrypted: encrypted}, nil
}

// Assemble implements engine.Engine.
func (e *Engine) Assemble(ctx context.Context, pages []engine.PageSource) (engine.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := &Doc{}
	var seen []*document
	for _, ps := range pages {
		src, ok := ps.Doc.(*document)
		if !ok {
			return nil, fmt.Errorf("memengine: foreign document %T", ps.Doc)
		}
		if ps.Page < 1 || ps.Page > len(src.doc.Pages) {
			return nil, fmt.Errorf("memengine: page %d out of range", ps.Page)
		}
		p := src.doc.Pages[ps.Page-1]
		p.Rotation = ps.Rotation
		p.Overlays = append([]string(nil), p.Overlays...)
		out.Pages = append(out.Pages, p)

		if !containsDoc(seen, src) {
			seen = append(seen, src)
			out.Fields = append(out.Fields, src.doc.clone().Fields...)
		}
	}
	if len(seen) > 0 {
		first := seen[0].doc
		out.Info = append([]engine.InfoEntry(nil), first.Info...)
		out.ID = append([]string(nil), first.ID...)
	}
	e.mu.Lock()
	e.Opened++
	e.mu.Unlock()
	return &document{eng: e, doc: out}, nil
}

func containsDoc(docs []*document, d *document) bool {
	for _, x := range docs {
		if x == d {
			return true
		}
	}
	return false
}

// DocOf exposes the backing struct of an open document.
func DocOf(d engine.Document) *Doc {
	return d.(*document).doc
}

type document struct {
	eng       *Engine
	doc       *Doc
	encrypted bool
}

func (d *document) PageCount() int { return len(d.doc.Pages) }

func (d *document) checkPage(page int) error {
	if page < 1 || page > len(d.doc.Pages) {
		return fmt.Errorf("memengine: page %d out of range 1-%d", page, len(d.doc.Pages))
	}
	return nil
}

func (d *document) PageRotation(page int) (int, error) {
	if err := d.checkPage(page); err != nil {
		return 0, err
	}
	return d.doc.Pages[page-1].Rotation, nil
}

func (d *document) SetPageRotation(page, degrees int) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	d.doc.Pages[page-1].Rotation = degrees
	return nil
}

func (d *document) SpinPage(page int, degrees float64) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	d.doc.Pages[page-1].Spin += degrees
	return nil
}

func catalogEntries(m map[string]string, keys []engine.CatalogKey) []engine.CatalogEntry {
	var out []engine.CatalogEntry
	for _, k := range keys {
		if v, ok := m[k.Name]; ok {
			out = append(out, engine.CatalogEntry{Key: k.Name, Value: v, Kind: k.Kind})
		}
	}
	return out
}

func (d *document) Catalog() (*engine.Catalog, error) {
	c := &engine.Catalog{PDFVersion: d.doc.Version, Encrypted: d.encrypted}
	if c.PDFVersion == "" {
		c.PDFVersion = "1.7"
	}
	cat := d.doc.Catalog
	if cat == nil {
		return c, nil
	}
	c.Entries = catalogEntries(cat.Entries, engine.CatalogKeys)
	c.ViewerPreferences = catalogEntries(cat.ViewerPreferences, engine.ViewerPreferenceKeys)
	c.MarkInfo = catalogEntries(cat.MarkInfo, engine.MarkInfoKeys)
	if oa := cat.OpenAction; len(oa) >= 2 {
		page, err := strconv.Atoi(oa[0])
		if err != nil {
			return nil, fmt.Errorf("memengine: bad open action page %q", oa[0])
		}
		c.OpenAction = &engine.OpenAction{Page: page, DestType: oa[1], Args: append([]string(nil), oa[2:]...)}
	}
	return c, nil
}

func mergeEntries(m map[string]string, entries []engine.CatalogEntry) map[string]string {
	if len(entries) == 0 {
		return m
	}
	if m == nil {
		m = make(map[string]string)
	}
	for _, e := range entries {
		m[e.Key] = e.Value
	}
	return m
}

func (d *document) UpdateCatalog(u engine.Catalog) error {
	if u.OpenAction != nil {
		if err := d.checkPage(u.OpenAction.Page); err != nil {
			return err
		}
	}
	if d.doc.Catalog == nil {
		d.doc.Catalog = &Catalog{}
	}
	cat := d.doc.Catalog
	cat.Entries = mergeEntries(cat.Entries, u.Entries)
	cat.ViewerPreferences = mergeEntries(cat.ViewerPreferences, u.ViewerPreferences)
	cat.MarkInfo = mergeEntries(cat.MarkInfo, u.MarkInfo)
	if oa := u.OpenAction; oa != nil {
		cat.OpenAction = append([]string{strconv.Itoa(oa.Page), oa.DestType}, oa.Args...)
	}
	return nil
}

func toRect(v []float64) engine.Rect {
	var r engine.Rect
	copy(r[:], v)
	return r
}

func (d *document) Metadata() (*engine.Metadata, error) {
	md := &engine.Metadata{
		Info:       append([]engine.InfoEntry(nil), d.doc.Info...),
		PageCount:  len(d.doc.Pages),
		Bookmarks:  append([]engine.Bookmark(nil), d.doc.Bookmarks...),
		PageLabels: append([]engine.PageLabel(nil), d.doc.PageLabels...),
	}
	if len(d.doc.ID) == 2 {
		md.ID = [2]string{d.doc.ID[0], d.doc.ID[1]}
	}
	for i, p := range d.doc.Pages {
		pm := engine.PageMedia{Number: i + 1, Rotation: p.Rotation, Rect: toRect(p.Media)}
		if len(p.Crop) == 4 {
			c := toRect(p.Crop)
			if c != pm.Rect {
				pm.CropRect = &c
			}
		}
		md.PageMedia = append(md.PageMedia, pm)
	}
	return md, nil
}

func (d *document) UpdateMetadata(u engine.MetadataUpdate) error {
	for _, e := range u.Info {
		replaced := false
		for i := range d.doc.Info {
			if d.doc.Info[i].Key == e.Key {
				d.doc.Info[i].Value = e.Value
				replaced = true
			}
		}
		if !replaced {
			d.doc.Info = append(d.doc.Info, e)
		}
	}
	if u.Bookmarks != nil {
		d.doc.Bookmarks = append([]engine.Bookmark(nil), u.Bookmarks...)
	}
	if u.PageLabels != nil {
		d.doc.PageLabels = append([]engine.PageLabel(nil), u.PageLabels...)
	}
	for _, pm := range u.PageMedia {
		if err := d.checkPage(pm.Number); err != nil {
			return err
		}
		p := &d.doc.Pages[pm.Number-1]
		if pm.Rotation != nil {
			p.Rotation = *pm.Rotation
		}
		if pm.Rect != nil {
			p.Media = pm.Rect[:]
		}
		if pm.CropRect != nil {
			p.Crop = pm.CropRect[:]
		}
	}
	return nil
}

func (d *document) Fields() ([]engine.Field, error) {
	var fields []engine.Field
	count := map[string]int{}
	var dups []string
	for _, f := range d.doc.Fields {
		ef := engine.Field{
			Name:          f.Name,
			AltName:       f.AltName,
			Type:          engine.FieldType(f.Type),
			Flags:         f.Flags,
			Value:         f.Value,
			Values:        f.Values,
			StateOptions:  f.StateOptions,
			StateDisplays: f.StateDisplays,
			Justification: f.Justification,
			MaxLength:     f.MaxLength,
		}
		if f.InvalidKey {
			ef.Issue = fmt.Errorf("field dictionary key %q is not valid UTF-8", "\xff\xfeT")
		}
		count[f.Name]++
		if count[f.Name] == 2 {
			dups = append(dups, f.Name)
		}
		fields = append(fields, ef)
	}
	if len(dups) > 0 {
		return fields, &engine.DuplicateNameError{Names: dups}
	}
	return fields, nil
}

func (d *document) FillFields(values []engine.FieldValue, opts engine.FillOptions) error {
	if opts.Flatten && d.eng.Unsupported[engine.FeatureFlatten] {
		return &engine.UnsupportedError{Feature: engine.FeatureFlatten}
	}
	for _, v := range values {
		for i := range d.doc.Fields {
			f := &d.doc.Fields[i]
			if f.Name != v.Name {
				continue
			}
			switch {
			case v.Null:
				f.Value, f.Values = "", nil
			case len(v.Values) > 0:
				f.Values = append([]string(nil), v.Values...)
				f.Value = v.Values[0]
			default:
				f.Value = v.Value
			}
			if opts.LockFields || opts.Flatten {
				f.Flags |= engine.FlagReadOnly
			}
			if opts.FirstOnly {
				break
			}
		}
	}
	if opts.NeedAppearances {
		d.doc.NeedAppearances = true
	}
	return nil
}

func (d *document) Annotations() (*engine.Annotations, error) {
	a := &engine.Annotations{URIBase: d.doc.URIBase, PageCount: len(d.doc.Pages)}
	for _, l := range d.doc.Links {
		a.Links = append(a.Links, engine.LinkAnnotation{
			Page:          l.Page,
			Rect:          toRect(l.Rect),
			ActionSubtype: "URI",
			URI:           l.URI,
		})
	}
	return a, nil
}

func (d *document) Attachments(ctx context.Context) ([]engine.Attachment, error) {
	var out []engine.Attachment
	for _, a := range d.doc.Attachments {
		out = append(out, engine.Attachment{
			Name:        a.Name,
			Description: a.Description,
			Page:        a.Page,
			Relation:    a.Relation,
			Data:        []byte(a.Data),
		})
	}
	return out, nil
}

func (d *document) Attach(ctx context.Context, files []engine.AttachmentSpec) error {
	for _, f := range files {
		if f.Page > 0 && d.eng.Unsupported[engine.FeaturePageAttachments] {
			return &engine.UnsupportedError{Feature: engine.FeaturePageAttachments}
		}
		if err := d.checkPageOrDoc(f.Page); err != nil {
			return err
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return err
		}
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		d.doc.Attachments = append(d.doc.Attachments, Attachment{
			Name:        name,
			Description: f.Description,
			Page:        f.Page,
			Relation:    f.Relation,
			Data:        string(data),
		})
	}
	return nil
}

func (d *document) checkPageOrDoc(page int) error {
	if page == 0 {
		return nil
	}
	return d.checkPage(page)
}

func (d *document) Overlay(ctx context.Context, src engine.Input, opts engine.OverlayOptions) error {
	od, err := d.eng.Open(ctx, src)
	if err != nil {
		return err
	}
	defer od.Close()
	srcDoc := DocOf(od)
	if len(srcDoc.Pages) == 0 {
		return fmt.Errorf("memengine: overlay %s has no pages", src.Name)
	}
	kind := "background"
	if opts.OnTop {
		kind = "stamp"
	}
	for i := range d.doc.Pages {
		idx := 0
		if opts.Multi {
			if i >= len(srcDoc.Pages) {
				// Pages past the end of the overlay document stay bare.
				continue
			}
			idx = i
		}
		d.doc.Pages[i].Overlays = append(d.doc.Pages[i].Overlays,
			fmt.Sprintf("%s:%s", kind, srcDoc.Pages[idx].Origin))
	}
	return nil
}

func (d *document) Save(ctx context.Context, w io.Writer, opts engine.SaveOptions) error {
	if opts.Linearize && d.eng.Unsupported[engine.FeatureLinearize] {
		return &engine.UnsupportedError{Feature: engine.FeatureLinearize}
	}
	if opts.Uncompress && d.eng.Unsupported[engine.FeatureUncompress] {
		return &engine.UnsupportedError{Feature: engine.FeatureUncompress}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	out := d.doc.clone()
	if opts.DropInfo {
		out.Info = nil
	}
	if opts.DropXFA {
		out.XFA = false
	}
	if opts.NeedAppearances {
		out.NeedAppearances = true
	}
	if opts.LockFields {
		for i := range out.Fields {
			out.Fields[i].Flags |= engine.FlagReadOnly
		}
	}
	out.Compressed = opts.Compress
	if opts.ID != nil {
		out.ID = []string{opts.ID[0], opts.ID[1]}
	}
	if enc := opts.Encryption; enc != nil {
		out.Security = &Security{
			Method:        int(enc.Method),
			OwnerPassword: enc.OwnerPassword,
			UserPassword:  enc.UserPassword,
			Permissions:   enc.Permissions,
		}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (d *document) Close() error {
	d.eng.mu.Lock()
	d.eng.Closed++
	d.eng.mu.Unlock()
	return nil
}
