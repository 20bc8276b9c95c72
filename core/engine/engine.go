// Package engine defines the contract between pdftl and the PDF engine that
// reads and writes actual PDF bytes.
//
// pdftl never parses PDF syntax itself. Every byte-level concern (object
// streams, cross-reference tables, encryption primitives) sits behind these
// interfaces. runtime/pdfengine implements them on pdfcpu; memengine
// implements them in memory for tests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Input names one document to open.
type Input struct {
	Name     string // for messages: the path as the user wrote it, or "-"
	Path     string // file on disk; empty when Data is set
	Data     []byte // document bytes read from stdin
	Password string // owner or user password
}

// Engine opens documents and builds new ones from existing pages.
type Engine interface {
	Open(ctx context.Context, in Input) (Document, error)

	// Assemble builds a new document whose pages are copies of the given
	// pages, in order, each with its final rotation applied. The sources are
	// not modified.
	Assemble(ctx context.Context, pages []PageSource) (Document, error)
}

// PageSource is one page to copy into an assembled document.
type PageSource struct {
	Doc      Document
	Page     int // 1-based
	Rotation int // degrees, one of 0, 90, 180, 270
}

// Document is one open PDF.
type Document interface {
	PageCount() int
	PageRotation(page int) (int, error)
	SetPageRotation(page, degrees int) error

	Metadata() (*Metadata, error)
	UpdateMetadata(u MetadataUpdate) error

	// Fields enumerates terminal form fields in the engine's natural order.
	// When two distinct fields share a fully qualified name the engine
	// returns every field it could read together with a *DuplicateNameError.
	Fields() ([]Field, error)
	FillFields(values []FieldValue, opts FillOptions) error

	Annotations() (*Annotations, error)

	// Catalog reports the document-level catalog entries pdftl knows.
	Catalog() (*Catalog, error)
	// UpdateCatalog merges entries into the catalog. PDFVersion and
	// Encrypted are ignored.
	UpdateCatalog(u Catalog) error

	// SpinPage turns the content of page about the centre of its crop box
	// by degrees, counter-clockwise. The page boxes and /Rotate are kept.
	SpinPage(page int, degrees float64) error

	Attachments(ctx context.Context) ([]Attachment, error)
	Attach(ctx context.Context, files []AttachmentSpec) error

	// Overlay draws page content of src behind (background) or on top of
	// (stamp) this document's pages.
	Overlay(ctx context.Context, src Input, opts OverlayOptions) error

	// Save writes the document. Unsupported options are reported with an
	// *UnsupportedError before anything is written to w.
	Save(ctx context.Context, w io.Writer, opts SaveOptions) error

	Close() error
}

// InfoEntry is one key of the document information dictionary.
type InfoEntry struct {
	Key   string
	Value string
}

// Bookmark is one outline item, flattened with its depth.
type Bookmark struct {
	Title string
	Level int // 1 for top-level items
	Page  int // 0 when the destination cannot be resolved
}

// Rect is a PDF rectangle [llx lly urx ury].
type Rect [4]float64

func (r Rect) Width() float64  { return r[2] - r[0] }
func (r Rect) Height() float64 { return r[3] - r[1] }

// PageMedia describes one page's geometry.
type PageMedia struct {
	Number   int
	Rotation int
	Rect     Rect
	CropRect *Rect // nil when equal to Rect or absent
}

// NumStyle is a page label numbering style.
type NumStyle string

const (
	StyleDecimal    NumStyle = "DecimalArabicNumerals"
	StyleUpperRoman NumStyle = "UppercaseRomanNumerals"
	StyleLowerRoman NumStyle = "LowercaseRomanNumerals"
	StyleUpperAlpha NumStyle = "UppercaseLetters"
	StyleLowerAlpha NumStyle = "LowercaseLetters"
	StyleNone       NumStyle = "NoNumber"
)

// NumStyles lists every valid style.
var NumStyles = []NumStyle{StyleDecimal, StyleUpperRoman, StyleLowerRoman, StyleUpperAlpha, StyleLowerAlpha, StyleNone}

// PageLabel starts a labelling range.
type PageLabel struct {
	NewIndex int // 1-based page where the range starts
	Start    int // first number, default 1
	Prefix   string
	Style    NumStyle
}

// Metadata is everything dump_data reports.
type Metadata struct {
	Info       []InfoEntry
	ID         [2]string // hex, empty when absent
	PageCount  int
	Bookmarks  []Bookmark
	PageMedia  []PageMedia
	PageLabels []PageLabel
}

// PageMediaUpdate changes geometry of one page. Nil fields stay unchanged.
type PageMediaUpdate struct {
	Number   int
	Rotation *int
	Rect     *Rect
	CropRect *Rect
}

// MetadataUpdate is what update_info applies. Info entries are merged into
// the existing dictionary; Bookmarks and PageLabels replace the existing
// ones when non-nil.
type MetadataUpdate struct {
	Info       []InfoEntry
	Bookmarks  []Bookmark
	PageLabels []PageLabel
	PageMedia  []PageMediaUpdate
}

// FieldType is the dump_data_fields type tag.
type FieldType string

const (
	FieldText      FieldType = "Text"
	FieldButton    FieldType = "Button"
	FieldChoice    FieldType = "Choice"
	FieldSignature FieldType = "Signature"
)

// Field flag bits (ISO 32000-1, tables 221 to 228).
const (
	FlagReadOnly    = 1 << 0
	FlagRequired    = 1 << 1
	FlagNoExport    = 1 << 2
	FlagMultiline   = 1 << 12
	FlagPassword    = 1 << 13
	FlagNoToggleOff = 1 << 14
	FlagRadio       = 1 << 15
	FlagPushButton  = 1 << 16
	FlagCombo       = 1 << 17
	FlagMultiSelect = 1 << 21
)

// Field is one terminal form field.
type Field struct {
	Name          string // fully qualified, dot separated
	AltName       string // /TU
	Type          FieldType
	Flags         int
	Value         string
	Values        []string // multi-select choice values
	StateOptions  []string // button appearance states or choice export values
	StateDisplays []string // choice display strings, parallel to StateOptions
	Justification int      // 0 left, 1 center, 2 right
	MaxLength     int      // 0 when unset

	// Issue is set when part of the field could not be decoded, for example
	// a dictionary key that is not valid UTF-8. Such a field is still
	// returned so the caller decides how to degrade.
	Issue error
}

// FieldValue is one value to set during fill_form.
type FieldValue struct {
	Name   string
	Value  string
	Values []string // several values for multi-select choice fields
	Null   bool     // clear the value
}

// FillOptions control fill_form.
type FillOptions struct {
	Flatten         bool
	LockFields      bool // set ReadOnly on filled fields; the fallback for Flatten
	NeedAppearances bool
	FirstOnly       bool // when a name matches several fields, fill only the first
}

// LinkAnnotation is a link with a URI action.
type LinkAnnotation struct {
	Page          int
	Rect          Rect
	ActionSubtype string
	URI           string
}

// Annotations is what dump_data_annots reports.
type Annotations struct {
	URIBase   string
	PageCount int
	Links     []LinkAnnotation
}

// CatalogKind is how a catalog value is written back into the PDF.
type CatalogKind int

const (
	CatalogName CatalogKind = iota
	CatalogText
	CatalogBool
)

// CatalogKey is one known key of a catalog-level dictionary.
type CatalogKey struct {
	Name string
	Kind CatalogKind
}

// Known keys, in report order.
var (
	CatalogKeys = []CatalogKey{
		{"Version", CatalogName},
		{"Lang", CatalogText},
		{"PageLayout", CatalogName},
		{"PageMode", CatalogName},
		{"NeedsRendering", CatalogBool},
	}
	ViewerPreferenceKeys = []CatalogKey{
		{"HideToolbar", CatalogBool},
		{"HideMenubar", CatalogBool},
		{"HideWindowUI", CatalogBool},
		{"FitWindow", CatalogBool},
		{"CenterWindow", CatalogBool},
		{"DisplayDocTitle", CatalogBool},
		{"NonFullScreenPageMode", CatalogName},
		{"Direction", CatalogName},
		{"ViewArea", CatalogName},
		{"ViewClip", CatalogName},
		{"PrintArea", CatalogName},
		{"PrintClip", CatalogName},
		{"PrintScaling", CatalogName},
	}
	MarkInfoKeys = []CatalogKey{
		{"Marked", CatalogBool},
		{"UserProperties", CatalogBool},
		{"Suspects", CatalogBool},
	}
)

// LookupCatalogKey finds name in keys.
func LookupCatalogKey(keys []CatalogKey, name string) (CatalogKey, bool) {
	for _, k := range keys {
		if k.Name == name {
			return k, true
		}
	}
	return CatalogKey{}, false
}

// CatalogEntry is one catalog value. Booleans are "true" or "false".
type CatalogEntry struct {
	Key   string
	Value string
	Kind  CatalogKind
}

// OpenAction is an explicit destination shown when the document opens.
type OpenAction struct {
	Page     int
	DestType string   // XYZ, Fit, FitH, ...
	Args     []string // numbers, or "null"
}

// Catalog is what dump_catalog reports and update_catalog applies.
type Catalog struct {
	PDFVersion        string
	Encrypted         bool
	Entries           []CatalogEntry
	ViewerPreferences []CatalogEntry
	MarkInfo          []CatalogEntry
	OpenAction        *OpenAction
}

// Empty reports whether c carries nothing to apply.
func (c *Catalog) Empty() bool {
	return len(c.Entries) == 0 && len(c.ViewerPreferences) == 0 && len(c.MarkInfo) == 0 && c.OpenAction == nil
}

// Attachment is one embedded file.
type Attachment struct {
	Name        string
	Description string
	Page        int // 0 for document-level attachments
	Relation    string
	Data        []byte
}

// AttachmentSpec is one file to embed.
type AttachmentSpec struct {
	Path        string
	Name        string // defaults to the base name of Path
	Description string
	Page        int // 0 embeds at document level
	Relation    string
}

// OverlayOptions control background and stamp.
type OverlayOptions struct {
	Multi bool // page N of src goes on page N; otherwise src page 1 everywhere
	OnTop bool // stamp when true, background when false
}

// Encryption is the security handler to apply on save.
type Encryption struct {
	Method        EncryptionMethod
	OwnerPassword string
	UserPassword  string
	Permissions   uint32 // PDF /P bits
}

// EncryptionMethod mirrors plan.EncryptionMethod without importing it.
type EncryptionMethod int

const (
	RC4_40 EncryptionMethod = iota + 1
	RC4_128
	AES128
	AES256
)

// KeyLength returns the key length in bits.
func (m EncryptionMethod) KeyLength() int {
	switch m {
	case RC4_40:
		return 40
	case AES256:
		return 256
	default:
		return 128
	}
}

// IsAES reports whether m uses AES.
func (m EncryptionMethod) IsAES() bool {
	return m == AES128 || m == AES256
}

// SaveOptions control how a document is written.
type SaveOptions struct {
	Encryption      *Encryption
	DropInfo        bool
	DropXFA         bool
	NeedAppearances bool
	LockFields      bool
	Compress        bool
	Uncompress      bool
	Linearize       bool
	ID              *[2]string // nil generates a fresh ID
}

// ErrWrongPassword means the document is encrypted and the password given
// (possibly none) does not open it.
var ErrWrongPassword = errors.New("incorrect or missing password")

// DuplicateNameError reports form fields sharing a fully qualified name.
type DuplicateNameError struct {
	Names []string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate form field names: %s", strings.Join(e.Names, ", "))
}

// UnsupportedError reports a feature this engine cannot express.
type UnsupportedError struct {
	Feature string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported by this PDF engine", e.Feature)
}

// Feature names used in UnsupportedError.
const (
	FeaturePageAttachments = "page-level attachments"
	FeatureFlatten         = "form flattening"
	FeatureLinearize       = "linearization"
	FeatureUncompress      = "uncompressed output"
)

// IsUnsupported reports whether err is an *UnsupportedError for feature.
func IsUnsupported(err error, feature string) bool {
	var u *UnsupportedError
	return errors.As(err, &u) && u.Feature == feature
}
