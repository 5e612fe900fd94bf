package segment

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// anonymousArrowName is used when an arrow function has no enclosing
// binding to take a name from.
const anonymousArrowName = "anonymous_arrow_function"

// commentKinds are raw kinds treated as documentation comments.
var commentKinds = map[string]bool{
	"comment":       true,
	"line_comment":  true,
	"block_comment": true,
	"doc_comment":   true,
}

// Metadata is the name, optional signature and optional documentation
// derived for one captured node.
type Metadata struct {
	Name      string
	Signature string
	Doc       string
}

// extractMetadata derives name, doc and (for function-like categories)
// signature for a node.
func extractMetadata(node *sitter.Node, kind string, cat Category, content []byte) Metadata {
	meta := Metadata{
		Name: nodeName(node, kind, content),
		Doc:  precedingComment(node, content),
	}
	if cat == CategoryFunction || cat == CategoryMethod {
		meta.Signature = signature(node, content)
	}
	return meta
}

// nodeName resolves a node's name: explicit name field, first declarator's
// name, enclosing binding target for arrow functions, a fixed placeholder,
// or the raw text for bare identifier nodes.
func nodeName(node *sitter.Node, kind string, content []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(content)
	}

	if isDeclarationStatement(kind) {
		if decls := declarators(node); len(decls) > 0 {
			return declaratorName(decls[0], content)
		}
	}

	if kind == "arrow_function" {
		return arrowName(node, content)
	}

	if strings.HasSuffix(kind, "identifier") {
		return node.Content(content)
	}

	return ""
}

// declaratorName returns the bound name of a single declarator.
func declaratorName(decl *sitter.Node, content []byte) string {
	if name := decl.ChildByFieldName("name"); name != nil {
		return name.Content(content)
	}
	// Go specs carry the identifier as a plain child.
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		child := decl.NamedChild(i)
		if strings.HasSuffix(child.Type(), "identifier") {
			return child.Content(content)
		}
	}
	return ""
}

// arrowName looks outward for the variable or assignment target an arrow
// function is bound to.
func arrowName(node *sitter.Node, content []byte) string {
	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		switch parent.Type() {
		case "variable_declarator":
			if name := parent.ChildByFieldName("name"); name != nil {
				return name.Content(content)
			}
		case "assignment_expression":
			if left := parent.ChildByFieldName("left"); left != nil {
				return left.Content(content)
			}
		case "pair":
			if key := parent.ChildByFieldName("key"); key != nil {
				return key.Content(content)
			}
		case "call_expression", "statement_block", "program", "class_body":
			// A callback argument or bare statement has no binding to
			// take a name from.
			return anonymousArrowName
		}
	}
	return anonymousArrowName
}

// precedingComment returns the nearest preceding comment sibling: the
// node's own previous named sibling, else the parent's.
func precedingComment(node *sitter.Node, content []byte) string {
	if prev := node.PrevNamedSibling(); prev != nil && commentKinds[prev.Type()] {
		return prev.Content(content)
	}
	if parent := node.Parent(); parent != nil {
		if prev := parent.PrevNamedSibling(); prev != nil && commentKinds[prev.Type()] {
			return prev.Content(content)
		}
	}
	return ""
}

// signature returns the header of a function-like node: its text up to the
// start of the body field, falling back to the arrow token, then the first
// opening brace, then the whole node text.
func signature(node *sitter.Node, content []byte) string {
	start := node.StartByte()

	if body := node.ChildByFieldName("body"); body != nil && body.StartByte() > start {
		return trimSignature(string(content[start:body.StartByte()]))
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "=>" {
			return trimSignature(string(content[start:child.StartByte()]))
		}
	}

	text := node.Content(content)
	if idx := strings.Index(text, "{"); idx >= 0 {
		return trimSignature(text[:idx])
	}
	return strings.TrimSpace(text)
}

// trimSignature drops trailing whitespace and a trailing opening brace.
func trimSignature(sig string) string {
	sig = strings.TrimRight(sig, " \t\n\r")
	sig = strings.TrimSuffix(sig, "{")
	return strings.TrimRight(sig, " \t\n\r")
}
