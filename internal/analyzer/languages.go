package analyzer

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// langToGrammar maps analyzer language names to tree-sitter grammars.
// Lazily initialized on first use.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
		}
	})
}

// Grammar returns the tree-sitter language for an analyzer language name.
func Grammar(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// branchNodes lists node types that count toward the complexity signal.
var branchNodes = map[string]map[string]bool{
	"python": set("if_statement", "elif_clause", "for_statement", "while_statement",
		"except_clause", "with_statement", "conditional_expression", "boolean_operator",
		"case_clause", "list_comprehension", "dictionary_comprehension"),
	"go": set("if_statement", "for_statement", "expression_case", "type_case",
		"communication_case", "default_case", "go_statement", "defer_statement"),
	"javascript": set("if_statement", "for_statement", "for_in_statement", "while_statement",
		"do_statement", "switch_case", "catch_clause", "ternary_expression"),
}

func init() {
	branchNodes["typescript"] = branchNodes["javascript"]
	branchNodes["tsx"] = branchNodes["javascript"]
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
