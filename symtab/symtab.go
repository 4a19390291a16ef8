// Package symtab implements the scoped symbol table used by the semantic
// analyzer: an ordered stack of symbols plus a scope counter, looked up
// newest-to-oldest so inner scopes shadow outer ones.
package symtab

// Kind tags what a Symbol names.
type Kind int

const (
	// Variable is a local variable or function parameter.
	Variable Kind = iota
	// Function is a top-level function declaration.
	Function
)

// Symbol is one entry in the table.
type Symbol struct {
	Name       string
	Type       string
	ScopeLevel int
	Kind       Kind
	// ParamTypes holds the parameter type list when Kind == Function.
	ParamTypes []string
}

// Table is an ordered stack of symbols with a current scope level. Two
// symbols may share a name only if their ScopeLevel differs; the most
// recently pushed match wins a Lookup.
type Table struct {
	symbols []Symbol
	level   int
}

// New returns an empty table at scope level 0.
func New() *Table {
	return &Table{}
}

// Enter opens a new, deeper scope.
func (t *Table) Enter() {
	t.level++
}

// Exit closes the current scope, popping every symbol declared at this
// level in reverse insertion order. This is a stack pop: the table is
// never edited except at its tail. Exiting the global scope pops its
// symbols but leaves the level at zero, so a finished analysis ends with
// an empty table.
func (t *Table) Exit() {
	for len(t.symbols) > 0 && t.symbols[len(t.symbols)-1].ScopeLevel == t.level {
		t.symbols = t.symbols[:len(t.symbols)-1]
	}
	if t.level > 0 {
		t.level--
	}
}

// Level reports the current scope level.
func (t *Table) Level() int {
	return t.level
}

// Len reports how many symbols are currently live. A successful end-to-
// end analysis leaves this at 0: every opened scope was exited.
func (t *Table) Len() int {
	return len(t.symbols)
}

// Declare registers a new symbol at the current scope level.
func (t *Table) Declare(name, typeName string, kind Kind, paramTypes []string) {
	t.symbols = append(t.symbols, Symbol{
		Name:       name,
		Type:       typeName,
		ScopeLevel: t.level,
		Kind:       kind,
		ParamTypes: paramTypes,
	})
}

// DeclaredInCurrentScope reports whether name already has an entry at the
// current scope level, ignoring outer scopes.
func (t *Table) DeclaredInCurrentScope(name string) bool {
	for i := len(t.symbols) - 1; i >= 0; i-- {
		s := t.symbols[i]
		if s.ScopeLevel != t.level {
			continue
		}
		if s.Name == name {
			return true
		}
	}
	return false
}

// Lookup scans newest-to-oldest and returns the first symbol named name,
// so a declaration in an inner scope shadows one in an outer scope.
func (t *Table) Lookup(name string) (Symbol, bool) {
	for i := len(t.symbols) - 1; i >= 0; i-- {
		if t.symbols[i].Name == name {
			return t.symbols[i], true
		}
	}
	return Symbol{}, false
}
