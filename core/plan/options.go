package plan

import (
	"fmt"
	"sort"
)

// PromptPassword asks the CLI to read a password from the terminal.
const PromptPassword = "PROMPT"

// EncryptionMethod selects the security handler for the output.
type EncryptionMethod int

const (
	EncryptNone EncryptionMethod = iota
	EncryptRC4_40
	EncryptRC4_128
	EncryptAES128
	EncryptAES256
)

var encryptionNames = map[string]EncryptionMethod{
	"encrypt_40bit":  EncryptRC4_40,
	"encrypt_128bit": EncryptRC4_128,
	"encrypt_aes128": EncryptAES128,
	"encrypt_aes256": EncryptAES256,
}

// ParseEncryption maps an encrypt_* keyword to a method.
func ParseEncryption(word string) (EncryptionMethod, bool) {
	m, ok := encryptionNames[word]
	return m, ok
}

func (m EncryptionMethod) String() string {
	for name, v := range encryptionNames {
		if v == m {
			return name
		}
	}
	return "none"
}

// Permission is a pdftk permission keyword accepted after "allow".
type Permission string

const (
	PermPrinting          Permission = "Printing"
	PermDegradedPrinting  Permission = "DegradedPrinting"
	PermModifyContents    Permission = "ModifyContents"
	PermAssembly          Permission = "Assembly"
	PermCopyContents      Permission = "CopyContents"
	PermScreenReaders     Permission = "ScreenReaders"
	PermModifyAnnotations Permission = "ModifyAnnotations"
	PermFillIn            Permission = "FillIn"
	PermAllFeatures       Permission = "AllFeatures"
)

// Bits of the PDF /P entry (ISO 32000-1, table 22).
const (
	BitPrint        uint32 = 1 << 2
	BitModify       uint32 = 1 << 3
	BitCopy         uint32 = 1 << 4
	BitAnnotate     uint32 = 1 << 5
	BitFillIn       uint32 = 1 << 8
	BitExtract      uint32 = 1 << 9
	BitAssemble     uint32 = 1 << 10
	BitPrintHighRes uint32 = 1 << 11
)

// permissionBits includes the permissions each keyword implies, as pdftk
// documents them.
var permissionBits = map[Permission]uint32{
	PermPrinting:          BitPrint | BitPrintHighRes,
	PermDegradedPrinting:  BitPrint,
	PermModifyContents:    BitModify | BitAssemble,
	PermAssembly:          BitAssemble,
	PermCopyContents:      BitCopy | BitExtract,
	PermScreenReaders:     BitExtract,
	PermModifyAnnotations: BitAnnotate | BitFillIn,
	PermFillIn:            BitFillIn,
	PermAllFeatures: BitPrint | BitModify | BitCopy | BitAnnotate |
		BitFillIn | BitExtract | BitAssemble | BitPrintHighRes,
}

// ParsePermission validates a permission keyword (case-sensitive).
func ParsePermission(word string) (Permission, bool) {
	p := Permission(word)
	_, ok := permissionBits[p]
	return p, ok
}

// PermissionNames lists the accepted permission keywords.
func PermissionNames() []string {
	names := make([]string, 0, len(permissionBits))
	for p := range permissionBits {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// PermissionBits folds permission keywords into the /P bitset.
func PermissionBits(perms []Permission) uint32 {
	var bits uint32
	for _, p := range perms {
		bits |= permissionBits[p]
	}
	return bits
}

// IDPolicy picks the /ID of the output.
type IDPolicy int

const (
	IDNew IDPolicy = iota
	IDKeepFirst
	IDKeepFinal
)

// Compression picks stream compression for the output.
type Compression int

const (
	CompressDefault Compression = iota
	CompressOn
	CompressOff
)

// AskPolicy is pdftk's dont_ask/do_ask pair.
type AskPolicy int

const (
	AskDefault AskPolicy = iota
	AskNever
	AskAlways
)

// OutputOptions are the keywords accepted after the output target.
type OutputOptions struct {
	OwnerPassword   string           `cbor:"-"`
	UserPassword    string           `cbor:"-"`
	Encryption      EncryptionMethod `cbor:"1,keyasint"`
	Permissions     []Permission     `cbor:"2,keyasint,omitempty"`
	Flatten         bool             `cbor:"3,keyasint"`
	NeedAppearances bool             `cbor:"4,keyasint"`
	DropXFA         bool             `cbor:"5,keyasint"`
	DropInfo        bool             `cbor:"6,keyasint"`
	KeepID          IDPolicy         `cbor:"7,keyasint"`
	Compression     Compression      `cbor:"8,keyasint"`
	Linearize       bool             `cbor:"9,keyasint"`
	Verbose         bool             `cbor:"10,keyasint"`
	Ask             AskPolicy        `cbor:"11,keyasint"`
}

// Encrypted reports whether the output gets a security handler. A password
// without an explicit method selects 128-bit RC4, as pdftk does.
func (o OutputOptions) Encrypted() bool {
	return o.Encryption != EncryptNone || o.OwnerPassword != "" || o.UserPassword != ""
}

// EffectiveEncryption is the method applied when Encrypted is true.
func (o OutputOptions) EffectiveEncryption() EncryptionMethod {
	if o.Encryption == EncryptNone && o.Encrypted() {
		return EncryptRC4_128
	}
	return o.Encryption
}

// Validate checks the combinations pdftk rejects.
func (o OutputOptions) Validate() error {
	if len(o.Permissions) > 0 && !o.Encrypted() {
		return fmt.Errorf("allow requires encryption: give owner_pw, user_pw or an encrypt_ keyword")
	}
	return nil
}
