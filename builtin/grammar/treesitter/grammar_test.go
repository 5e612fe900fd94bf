package treesitter

import (
	"context"
	"testing"
)

func TestNewUnsupportedExtension(t *testing.T) {
	if _, err := New(".txt"); err == nil {
		t.Error("expected an error for an unsupported extension")
	}
}

func TestAllQueriesCompile(t *testing.T) {
	for _, spec := range specs {
		if _, err := New(spec.extensions[0]); err != nil {
			t.Errorf("%s: %v", spec.name, err)
		}
	}
}

func TestGrammarSupports(t *testing.T) {
	g, err := New(".ts")
	if err != nil {
		t.Fatal(err)
	}
	if !g.Supports(".mts") {
		t.Error(".mts should be served by the typescript grammar")
	}
	if g.Supports(".tsx") {
		t.Error(".tsx has its own grammar")
	}
}

func TestGoQueryCaptures(t *testing.T) {
	src := []byte(`package demo

func Hello() string { return "hi" }

type Pair struct {
	A, B int
}

const limit = 10
`)

	g, err := New(".go")
	if err != nil {
		t.Fatal(err)
	}
	tree, err := g.Parse(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	kinds := make(map[string]int)
	for _, c := range g.Query(tree) {
		kinds[c.Kind]++
		if c.Node == nil {
			t.Fatal("capture with nil node")
		}
	}

	for _, want := range []string{"function_declaration", "type_declaration", "const_declaration"} {
		if kinds[want] == 0 {
			t.Errorf("no %s capture, got %v", want, kinds)
		}
	}
}

func TestPythonQueryCaptures(t *testing.T) {
	src := []byte(`class Greeter:
    def greet(self):
        return "hi"

def main():
    pass
`)

	g, err := New(".py")
	if err != nil {
		t.Fatal(err)
	}
	tree, err := g.Parse(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Close()

	kinds := make(map[string]int)
	for _, c := range g.Query(tree) {
		kinds[c.Kind]++
	}
	if kinds["class_definition"] != 1 {
		t.Errorf("class_definition captures = %d, want 1", kinds["class_definition"])
	}
	if kinds["function_definition"] != 2 {
		t.Errorf("function_definition captures = %d, want 2", kinds["function_definition"])
	}
}

func TestExtensionsCoverEverySpec(t *testing.T) {
	exts := Extensions()
	covered := make(map[string]bool, len(exts))
	for _, e := range exts {
		covered[e] = true
	}
	for _, spec := range specs {
		for _, e := range spec.extensions {
			if !covered[e] {
				t.Errorf("%s extension %s missing from Extensions()", spec.name, e)
			}
		}
	}
}
