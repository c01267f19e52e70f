package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/vizgraph/internal/binding"
	"github.com/roach88/vizgraph/internal/lang"
	"github.com/roach88/vizgraph/internal/path"
)

// LoadError reports a template file that could not be read or evaluated.
// Structural problems within an evaluated template surface as
// *binding.Error instead, and malformed bind or filter expressions as
// *lang.SyntaxError.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants for template loading.
const (
	ErrCodeNotFound    = "T001" // Template file not found
	ErrCodeBuildFailed = "T002" // CUE evaluation failed
	ErrCodeNoRoot      = "T003" // No visualization root declared
	ErrCodeBadValue    = "T004" // Field has the wrong CUE kind
)

// Load reads a CUE template file and compiles it into the element tree
// and the binding tree. Attribute text is probed as a value expression
// first; text that does not parse stays a literal attribute, while a
// malformed bind or filter expression is fatal.
func Load(file string) (*Element, *binding.Tree, error) {
	l := &loader{dir: filepath.Dir(file)}
	root, err := l.readRoot(file)
	if err != nil {
		return nil, nil, err
	}
	return l.compile(root)
}

// Parse compiles template source directly. Includes resolve relative to
// dir.
func Parse(source []byte, dir string) (*Element, *binding.Tree, error) {
	l := &loader{dir: dir}
	root, err := l.evaluate(source, "template.cue")
	if err != nil {
		return nil, nil, err
	}
	return l.compile(root)
}

type loader struct {
	dir string
}

func (l *loader) compile(root cue.Value) (*Element, *binding.Tree, error) {
	element := &Element{Kind: "visualization"}
	tree := binding.NewTree()

	children := root.LookupPath(cue.ParsePath("children"))
	if children.Exists() {
		if err := l.children(children, element, tree, path.Path{}); err != nil {
			return nil, nil, err
		}
	}
	return element, tree, nil
}

func (l *loader) readRoot(file string) (cue.Value, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading template: %v", err)}
	}
	return l.evaluate(data, file)
}

func (l *loader) evaluate(source []byte, filename string) (cue.Value, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(source, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("evaluating template: %v", err)}
	}

	root := value.LookupPath(cue.ParsePath("visualization"))
	if !root.Exists() {
		return cue.Value{}, &LoadError{Code: ErrCodeNoRoot, Message: "template does not declare a visualization root"}
	}
	return root, nil
}

// children decodes a CUE list of element declarations under parent,
// threading the binding tree position and the ancestor data path.
func (l *loader) children(list cue.Value, parent *Element, bindings *binding.Tree, ancestor path.Path) error {
	iter, err := list.List()
	if err != nil {
		return &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("children of %s must be a list: %v", parent, err)}
	}

	index := 0
	for iter.Next() {
		if err := l.element(iter.Value(), index, parent, bindings, ancestor); err != nil {
			return err
		}
		index++
	}
	return nil
}

type rawAttr struct {
	name string
	text string
}

func (l *loader) element(v cue.Value, index int, parent *Element, bindings *binding.Tree, ancestor path.Path) error {
	var (
		kind, name  string
		bindText    string
		filterText  string
		includeFile string
		limit       int
		attrs       []rawAttr
		childrenVal cue.Value
		hasChildren bool
	)

	iter, err := v.Fields()
	if err != nil {
		return &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("element under %s must be a struct: %v", parent, err)}
	}
	for iter.Next() {
		label := iter.Label()
		switch label {
		case "kind":
			if kind, err = iter.Value().String(); err != nil {
				return fieldError(label, err)
			}
		case "name":
			if name, err = iter.Value().String(); err != nil {
				return fieldError(label, err)
			}
		case "bind":
			if bindText, err = iter.Value().String(); err != nil {
				return fieldError(label, err)
			}
		case "filter":
			if filterText, err = iter.Value().String(); err != nil {
				return fieldError(label, err)
			}
		case "limit":
			n, err := iter.Value().Int64()
			if err != nil {
				return fieldError(label, err)
			}
			limit = int(n)
		case "path":
			if includeFile, err = iter.Value().String(); err != nil {
				return fieldError(label, err)
			}
		case "children":
			childrenVal = iter.Value()
			hasChildren = true
		default:
			text, err := attrText(iter.Value())
			if err != nil {
				return fieldError(label, err)
			}
			attrs = append(attrs, rawAttr{name: label, text: text})
		}
	}

	if kind == "" {
		return &binding.Error{Binding: parent.String(), Reason: fmt.Sprintf("child %d declares no kind", index)}
	}

	if strings.EqualFold(kind, "include") {
		return l.include(includeFile, parent, bindings, ancestor)
	}

	normalized, err := normalizeKind(kind)
	if err != nil {
		return err
	}

	if name == "" {
		name = normalized + strconv.Itoa(index)
	}
	if !path.IsValidPart(name) {
		return &binding.Error{Binding: name, Reason: "element name is not a valid path part"}
	}

	var bindExpr *lang.BindExpr
	bindPath := ancestor
	if bindText != "" {
		bindExpr, err = lang.ParseBind(bindText, &ancestor)
		if err != nil {
			return err
		}
		bindPath = bindExpr.Path
	}

	var filter *lang.FilterExpr
	if filterText != "" {
		filter, err = lang.ParseFilter(filterText, &bindPath)
		if err != nil {
			return err
		}
	}

	// Attributes are probed as value expressions; text that does not
	// scan as one stays a literal.
	var attrBindings []*binding.AttributeBinding
	literals := map[string]string{}
	for _, attr := range attrs {
		exprs, err := lang.ParseValues(attr.text, &bindPath)
		if err != nil {
			literals[attr.name] = attr.text
			continue
		}
		attrBindings = append(attrBindings, &binding.AttributeBinding{Attribute: attr.name, Exprs: exprs})
	}

	elementPath := parent.Path.Append(name)
	element := &Element{Kind: normalized, Name: name, Path: elementPath, Literals: literals}
	parent.Children = append(parent.Children, element)

	// An element with bound attributes but no bind of its own multiplies
	// over its ancestor's data path, which is what those attributes are
	// presumably relative to.
	if bindExpr == nil && len(attrBindings) > 0 {
		bindExpr = &lang.BindExpr{Path: bindPath}
	}

	childTree := bindings
	if bindExpr != nil {
		childTree = bindings.Add(&binding.Binding{
			TemplatePath: elementPath,
			Bind:         bindExpr,
			Attributes:   attrBindings,
			Filter:       filter,
			Limit:        limit,
		})
	}

	if hasChildren {
		return l.children(childrenVal, element, childTree, bindPath)
	}
	return nil
}

// include splices another template file's children in at the include's
// position. Nested includes resolve relative to the included file.
func (l *loader) include(file string, parent *Element, bindings *binding.Tree, ancestor path.Path) error {
	if file == "" {
		return &binding.Error{Binding: parent.String(), Reason: "include element has no path"}
	}

	full := filepath.Join(l.dir, file)
	sub := &loader{dir: filepath.Dir(full)}
	root, err := sub.readRoot(full)
	if err != nil {
		return err
	}

	children := root.LookupPath(cue.ParsePath("children"))
	if !children.Exists() {
		return nil
	}
	return sub.children(children, parent, bindings, ancestor)
}

// attrText renders a scalar attribute value as text.
func attrText(v cue.Value) (string, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		return "", fmt.Errorf("must be a scalar, got %s", v.Kind())
	}
}

func fieldError(label string, err error) error {
	return &LoadError{Code: ErrCodeBadValue, Message: fmt.Sprintf("field %q: %v", label, err)}
}
