package segment

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Category is the semantic category of a captured node.
type Category string

const (
	CategoryFunction  Category = "function"
	CategoryMethod    Category = "method"
	CategoryClass     Category = "class"
	CategoryInterface Category = "interface"
	CategoryStruct    Category = "struct"
	CategoryEnum      Category = "enum"
	CategoryType      Category = "type"
	CategoryVariable  Category = "variable"
	CategoryModule    Category = "module"

	// CategoryDiscard marks nodes that produce no block.
	CategoryDiscard Category = ""
)

// kindCategories maps raw grammar kinds to semantic categories. Kinds not
// listed here are discarded.
var kindCategories = map[string]Category{
	"function_declaration":           CategoryFunction,
	"function_definition":            CategoryFunction,
	"function_item":                  CategoryFunction,
	"generator_function_declaration": CategoryFunction,

	"method_declaration":      CategoryMethod,
	"method_definition":       CategoryMethod,
	"singleton_method":        CategoryMethod,
	"constructor_declaration": CategoryMethod,
	"method":                  CategoryMethod,

	"class_declaration": CategoryClass,
	"class_definition":  CategoryClass,
	"class_specifier":   CategoryClass,
	"class":             CategoryClass,
	"impl_item":         CategoryClass,

	"interface_declaration": CategoryInterface,
	"trait_declaration":     CategoryInterface,
	"trait_item":            CategoryInterface,

	"struct_specifier":   CategoryStruct,
	"struct_item":        CategoryStruct,
	"struct_declaration": CategoryStruct,

	"enum_declaration": CategoryEnum,
	"enum_item":        CategoryEnum,
	"enum_specifier":   CategoryEnum,

	"type_declaration":       CategoryType,
	"type_alias_declaration": CategoryType,
	"type_definition":        CategoryType,

	"lexical_declaration":  CategoryVariable,
	"variable_declaration": CategoryVariable,
	"const_declaration":    CategoryVariable,
	"var_declaration":      CategoryVariable,
	"field_declaration":    CategoryVariable,
	"property_declaration": CategoryVariable,
	"const_item":           CategoryVariable,
	"static_item":          CategoryVariable,

	"module": CategoryModule,
}

// scopedVariableKinds are declaration kinds that only count as variables at
// file-level scope; inside a function or block they are discarded.
var scopedVariableKinds = map[string]bool{
	"lexical_declaration":  true,
	"variable_declaration": true,
	"const_declaration":    true,
	"var_declaration":      true,
}

// fileScopes are node kinds representing a module/file-level scope.
var fileScopes = map[string]bool{
	"program":          true,
	"source_file":      true,
	"module":           true,
	"translation_unit": true,
	"document":         true,
}

// declarationStatementKinds are statement kinds whose name lives on a
// declarator child; the variable-category ones among them fan out when
// they carry multiple declarators.
var declarationStatementKinds = map[string]bool{
	"lexical_declaration":  true,
	"variable_declaration": true,
	"const_declaration":    true,
	"var_declaration":      true,
	"field_declaration":    true,
	"type_declaration":     true,
}

// declaratorKinds are the per-binding children of declaration statements.
var declaratorKinds = map[string]bool{
	"variable_declarator": true,
	"const_spec":          true,
	"var_spec":            true,
	"type_spec":           true,
}

// MapKind maps a raw captured kind to its semantic category. The mapping is
// total: anything unknown is discarded. Arrow functions always map to
// function; block-scoped variable declarations are discarded unless their
// parent is a file-level scope.
func MapKind(kind string, node *sitter.Node) Category {
	if kind == "arrow_function" {
		return CategoryFunction
	}
	if scopedVariableKinds[kind] {
		parent := node.Parent()
		if parent == nil || !fileScopes[parent.Type()] {
			return CategoryDiscard
		}
		return CategoryVariable
	}
	if cat, ok := kindCategories[kind]; ok {
		return cat
	}
	return CategoryDiscard
}

// isDeclarationStatement reports whether the kind is a declaration
// statement eligible for per-declarator fan-out.
func isDeclarationStatement(kind string) bool {
	return declarationStatementKinds[kind]
}

// declarators returns the declarator children of a declaration statement.
func declarators(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if declaratorKinds[child.Type()] {
			out = append(out, child)
		}
	}
	return out
}
