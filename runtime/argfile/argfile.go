// Package argfile expands @file arguments into command arguments.
//
// An argument of the form @path.json, @path.yaml or @path.yml is replaced by
// the arguments the file describes. The file is YAML (JSON is a subset) and
// must match the embedded schema: either a plain list of arguments, or an
// object naming inputs, operation, operands, output and options.
package argfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/aledsdavies/pdftl/core/errors"
)

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true
		if compiler.Formats == nil {
			compiler.Formats = make(map[string]func(interface{}) bool)
		}
		compiler.Formats["semver"] = func(v interface{}) bool {
			s, ok := v.(string)
			if !ok {
				return true
			}
			return semver.IsValid(canonicalVersion(s))
		}
		const url = "schema://argfile.json"
		if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(url)
	})
	return schema, schemaErr
}

// canonicalVersion accepts versions with or without the leading v.
func canonicalVersion(s string) string {
	if !strings.HasPrefix(s, "v") {
		return "v" + s
	}
	return s
}

// Reader loads an argument file.
type Reader func(path string) ([]byte, error)

// Options configure expansion.
type Options struct {
	// Version is the running pdftl version, compared against a file's
	// "requires" entry. Versions that are not semver skip the check.
	Version string
}

// IsArgFile reports whether arg names an argument file.
func IsArgFile(arg string) bool {
	if !strings.HasPrefix(arg, "@") || len(arg) == 1 {
		return false
	}
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Expand replaces every argument file in args with its contents. Files are
// not expanded recursively.
func Expand(args []string, read Reader, opts Options) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if !IsArgFile(arg) {
			out = append(out, arg)
			continue
		}
		path := arg[1:]
		data, err := read(path)
		if err != nil {
			return nil, errors.IO(err, "reading argument file %s", path).At(i, arg)
		}
		expanded, err := Decode(data, opts)
		if err != nil {
			if e, ok := errors.As(err); ok && e.Position == 0 {
				e.At(i, arg)
			}
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

type fileSpec struct {
	Requires  string            `yaml:"requires"`
	Inputs    yaml.Node         `yaml:"inputs"`
	Passwords map[string]string `yaml:"passwords"`
	Operation string            `yaml:"operation"`
	Args      []string          `yaml:"args"`
	Output    string            `yaml:"output"`
	Options   []string          `yaml:"options"`
}

// Decode validates one argument file and returns its arguments.
func Decode(data []byte, opts Options) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.KindGrammar, err, "argument file is not valid YAML or JSON")
	}
	if len(doc.Content) == 0 {
		return nil, errors.Grammar("argument file is empty")
	}
	root := doc.Content[0]

	if err := validate(root); err != nil {
		return nil, err
	}

	if root.Kind == yaml.SequenceNode {
		var args []string
		if err := root.Decode(&args); err != nil {
			return nil, errors.Wrap(errors.KindGrammar, err, "decoding argument file")
		}
		return args, nil
	}

	var spec fileSpec
	if err := root.Decode(&spec); err != nil {
		return nil, errors.Wrap(errors.KindGrammar, err, "decoding argument file")
	}
	if err := checkRequires(spec.Requires, opts.Version); err != nil {
		return nil, err
	}
	return spec.arguments()
}

// validate checks the document against the embedded schema. The YAML tree
// goes through JSON so the validator sees the value model it expects.
func validate(root *yaml.Node) error {
	var generic interface{}
	if err := root.Decode(&generic); err != nil {
		return errors.Wrap(errors.KindGrammar, err, "decoding argument file")
	}
	raw, err := json.Marshal(generic)
	if err != nil {
		return errors.Wrap(errors.KindGrammar, err, "argument file keys must be strings")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return errors.Internal(err, "re-reading argument file")
	}
	s, err := compiled()
	if err != nil {
		return errors.Internal(err, "compiling argument file schema")
	}
	if err := s.Validate(value); err != nil {
		e := errors.Wrap(errors.KindGrammar, err, "argument file does not match the expected shape")
		return e.WithHint("Use a list of arguments, or an object with inputs, operation, args, output and options")
	}
	return nil
}

func checkRequires(requires, running string) error {
	if requires == "" {
		return nil
	}
	want, have := canonicalVersion(requires), canonicalVersion(running)
	if !semver.IsValid(have) {
		return nil
	}
	if semver.Compare(have, want) < 0 {
		return errors.Grammar("argument file requires pdftl %s or newer, this is %s", want, have)
	}
	return nil
}

// arguments flattens the object form into command arguments in the order
// the parser expects.
func (s *fileSpec) arguments() ([]string, error) {
	var args, order []string
	switch s.Inputs.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(s.Inputs.Content); i += 2 {
			label, path := s.Inputs.Content[i].Value, s.Inputs.Content[i+1].Value
			args = append(args, fmt.Sprintf("%s=%s", label, path))
			order = append(order, label)
		}
	case yaml.SequenceNode:
		for _, n := range s.Inputs.Content {
			args = append(args, n.Value)
		}
	}

	if len(s.Passwords) > 0 {
		args = append(args, "input_pw")
		seen := map[string]bool{}
		for _, label := range order {
			if pw, ok := s.Passwords[label]; ok {
				args = append(args, label+"="+pw)
				seen[label] = true
			}
		}
		for label := range s.Passwords {
			if !seen[label] {
				return nil, errors.Grammar("argument file has a password for %s, which is not an input", label)
			}
		}
	}

	if s.Operation != "" {
		args = append(args, s.Operation)
	}
	args = append(args, s.Args...)
	if s.Output != "" {
		args = append(args, "output", s.Output)
	}
	args = append(args, s.Options...)
	return args, nil
}
