package nodes

// Scope tracks which names have been declared in one function body.
// Scopes nest through a parent link: lookups walk outward, declarations
// land in the scope they were made in. The temporary counter lives on
// the root scope, so minted names are unique across the whole
// compilation no matter how deeply scopes nest.
type Scope struct {
	parent    *Scope
	names     map[string]bool
	tempCount int // meaningful on the root scope only
}

// NewScope creates a scope. Pass nil for the compilation root.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]bool)}
}

// ChildScope opens a nested scope, as entered by a function literal.
func (s *Scope) ChildScope() *Scope {
	return NewScope(s)
}

// Declared reports whether name is visible in this scope or any
// enclosing one.
func (s *Scope) Declared(name string) bool {
	if s.names[name] {
		return true
	}
	if s.parent != nil {
		return s.parent.Declared(name)
	}
	return false
}

// Declare registers name in this scope. Declaring a name twice is a
// no-op.
func (s *Scope) Declare(name string) {
	s.names[name] = true
}

// FreshTemporary mints an identifier never issued before in this
// compilation: __a, __b, ..., __z, __aa, __ab, ... A minted name that
// is already visible is skipped; the returned name is declared in this
// scope.
func (s *Scope) FreshTemporary() string {
	root := s
	for root.parent != nil {
		root = root.parent
	}
	for {
		name := "__" + base26(root.tempCount)
		root.tempCount++
		if !s.Declared(name) {
			s.Declare(name)
			return name
		}
	}
}

// base26 renders n in bijective base-26 over 'a'..'z'.
func base26(n int) string {
	var buf []byte
	for {
		buf = append([]byte{byte('a' + n%26)}, buf...)
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return string(buf)
}
