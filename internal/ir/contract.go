package ir

// MethodKind classifies contract entry points.
type MethodKind string

const (
	KindInit MethodKind = "init"
	KindCall MethodKind = "call"
	KindView MethodKind = "view"
)

// ValidMethodKinds defines allowed method kinds.
var ValidMethodKinds = map[MethodKind]bool{
	KindInit: true,
	KindCall: true,
	KindView: true,
}

// ContractSpec represents a compiled contract ABI.
type ContractSpec struct {
	Name    string      `json:"name"`
	Purpose string      `json:"purpose"`
	Methods []MethodSig `json:"methods"`
}

// Method returns the signature with the given name.
func (c *ContractSpec) Method(name string) (MethodSig, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSig{}, false
}

// MethodSig represents a method signature with typed arguments and output cases.
type MethodSig struct {
	Name    string       `json:"name"`
	Kind    MethodKind   `json:"kind"`
	Args    []NamedArg   `json:"args"`
	Outputs []OutputCase `json:"outputs,omitempty"`
}

// NamedArg represents a named argument with type.
type NamedArg struct {
	Name string `json:"name"`
	Type string `json:"type"` // "string", "int" or "bool"
}

// OutputCase represents a typed output variant (success or error).
type OutputCase struct {
	Case   string            `json:"case"`   // "Success", "InvalidInput"
	Fields map[string]string `json:"fields"` // field name -> type name
}
