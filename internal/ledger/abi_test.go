package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agentregistry/internal/ir"
)

func TestDecodeArgs(t *testing.T) {
	sig := ir.MethodSig{
		Name: "m",
		Kind: ir.KindCall,
		Args: []ir.NamedArg{
			{Name: "cid", Type: "string"},
			{Name: "n", Type: "int"},
			{Name: "flag", Type: "bool"},
		},
	}

	args, err := decodeArgs(sig, []byte(`{"cid":"bafy","n":7,"flag":true}`))
	require.NoError(t, err)
	assert.Equal(t, ir.Args{"cid": "bafy", "n": int64(7), "flag": true}, args)

	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `["bafy"]`},
		{"null", `null`},
		{"malformed", `{"cid":`},
		{"trailing data", `{"cid":"bafy","n":1,"flag":false} {}`},
		{"missing argument", `{"cid":"bafy","n":1}`},
		{"unexpected argument", `{"cid":"bafy","n":1,"flag":false,"extra":1}`},
		{"string expected", `{"cid":1,"n":1,"flag":false}`},
		{"int expected", `{"cid":"bafy","n":"1","flag":false}`},
		{"float rejected", `{"cid":"bafy","n":1.5,"flag":false}`},
		{"bool expected", `{"cid":"bafy","n":1,"flag":"yes"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeArgs(sig, []byte(tt.raw))
			require.Error(t, err)
			assert.True(t, IsHostError(err, ErrCodeInvalidArgs), "got %v", err)
		})
	}
}

func TestDecodeArgsEmptyInput(t *testing.T) {
	args, err := decodeArgs(ir.MethodSig{Name: "new", Kind: ir.KindInit}, nil)
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestDecodeArgsWrongKeyNamesIt(t *testing.T) {
	sig := ir.MethodSig{Name: "set_persona", Args: []ir.NamedArg{{Name: "cid", Type: "string"}}}

	_, err := decodeArgs(sig, []byte(`{"not_cid":"bafy"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing argument "cid"`)
}

func TestContractSourceEmbedded(t *testing.T) {
	assert.Contains(t, ContractSource(), "contract: AgentRegistry")
}

func TestLoadABI(t *testing.T) {
	abi, err := LoadABI()
	require.NoError(t, err)
	assert.Equal(t, ContractName, abi.Name)

	m, ok := abi.Method(MethodSetPersona)
	require.True(t, ok)
	assert.Equal(t, ir.KindCall, m.Kind)
}
