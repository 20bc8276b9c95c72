package pdfengine

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/xdg-go/stringprep"

	"github.com/aledsdavies/pdftl/core/engine"
)

type document struct {
	eng       *Engine
	name      string
	data      []byte
	ctx       *model.Context
	encrypted bool // the input was encrypted when opened
}

func (d *document) objects() objects { return objects{ctx: d.ctx} }

// modify applies fn to the document and re-reads the written result.
func (d *document) modify(fn func(ctx *model.Context) error) error {
	if err := fn(d.ctx); err != nil {
		return err
	}
	data, err := write(d.ctx)
	if err != nil {
		return err
	}
	next, err := d.eng.newDocument(d.name, data)
	if err != nil {
		return err
	}
	d.data, d.ctx = next.data, next.ctx
	return nil
}

// scratch returns a private context of the current bytes, for changes that
// apply to one save only.
func (d *document) scratch() (*model.Context, error) {
	return d.eng.read(d.data, "")
}

func (d *document) PageCount() int { return d.ctx.PageCount }

func (d *document) checkPage(page int) error {
	if page < 1 || page > d.ctx.PageCount {
		return fmt.Errorf("pdfengine: page %d out of range 1-%d", page, d.ctx.PageCount)
	}
	return nil
}

func (d *document) PageRotation(page int) (int, error) {
	if err := d.checkPage(page); err != nil {
		return 0, err
	}
	_, _, inh, err := d.ctx.PageDict(page, false)
	if err != nil {
		return 0, err
	}
	if inh == nil {
		return 0, nil
	}
	return normalizeRotation(inh.Rotate), nil
}

func (d *document) SetPageRotation(page, degrees int) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	return d.modify(func(ctx *model.Context) error {
		pd, _, _, err := ctx.PageDict(page, false)
		if err != nil {
			return err
		}
		pd.Update("Rotate", types.Integer(normalizeRotation(degrees)))
		return nil
	})
}

// acroForm returns the interactive form dictionary, or nil.
func acroForm(ctx *model.Context) types.Dict {
	root, err := ctx.Catalog()
	if err != nil {
		return nil
	}
	af, _ := objects{ctx: ctx}.dict(root["AcroForm"])
	return af
}

// Save implements engine.Document.
func (d *document) Save(ctx context.Context, w io.Writer, opts engine.SaveOptions) error {
	if opts.Linearize {
		return &engine.UnsupportedError{Feature: engine.FeatureLinearize}
	}
	if opts.Uncompress {
		return &engine.UnsupportedError{Feature: engine.FeatureUncompress}
	}

	out, err := d.scratch()
	if err != nil {
		return err
	}
	if opts.DropInfo {
		out.Info = nil
	}
	if af := acroForm(out); af != nil {
		if opts.DropXFA {
			af.Delete("XFA")
		}
		if opts.NeedAppearances {
			af.Update("NeedAppearances", types.Boolean(true))
		}
	}
	if opts.LockFields {
		if err := lockAll(out); err != nil {
			return err
		}
	}
	if opts.ID != nil {
		out.ID = types.Array{types.HexLiteral(opts.ID[0]), types.HexLiteral(opts.ID[1])}
	}
	if opts.Compress {
		out.Configuration.WriteObjectStream = true
		out.Configuration.WriteXRefStream = true
	}

	data, err := write(out)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.Encryption == nil {
		_, err := w.Write(data)
		return err
	}
	conf, err := encryptionConfig(opts.Encryption)
	if err != nil {
		return err
	}
	return api.Encrypt(bytes.NewReader(data), w, conf)
}

// aesPasswordLimit is the number of password bytes AES-256 handlers use.
const aesPasswordLimit = 127

// reservedPermissions are the /P bits that are always set.
const reservedPermissions = 0xF0C0

func encryptionConfig(enc *engine.Encryption) (*model.Configuration, error) {
	owner, user := enc.OwnerPassword, enc.UserPassword
	var conf *model.Configuration
	if enc.Method == engine.AES256 {
		// Revision 6 handlers take SASLprep-processed UTF-8 passwords.
		var err error
		if owner, err = prepare(owner); err != nil {
			return nil, fmt.Errorf("owner password: %w", err)
		}
		if user, err = prepare(user); err != nil {
			return nil, fmt.Errorf("user password: %w", err)
		}
	}
	if enc.Method.IsAES() {
		conf = model.NewAESConfiguration(user, owner, enc.Method.KeyLength())
	} else {
		conf = model.NewRC4Configuration(user, owner, enc.Method.KeyLength())
	}
	conf.ValidationMode = model.ValidationRelaxed
	conf.Permissions = model.PermissionFlags(reservedPermissions | int(enc.Permissions))
	return conf, nil
}

func prepare(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	p, err := stringprep.SASLprep.Prepare(password)
	if err != nil {
		return "", err
	}
	if len(p) > aesPasswordLimit {
		p = p[:aesPasswordLimit]
	}
	return p, nil
}

func (d *document) Close() error {
	d.ctx = nil
	d.data = nil
	return nil
}

func hexID(b []byte) string { return hex.EncodeToString(b) }
