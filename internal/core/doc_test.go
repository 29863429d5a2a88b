package core

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"testing"
)

func TestPackageDoc_OnlyInDocFile(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}

	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.PackageClauseOnly|parser.ParseComments)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if f.Doc != nil && name != "doc.go" {
			t.Errorf("%s carries a package comment; keep it in doc.go", name)
		}
	}
}
