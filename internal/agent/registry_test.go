package agent

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterResolve(t *testing.T) {
	r := NewRegistry()
	spec := echoTool("echo")
	require.NoError(t, r.Register(spec))

	got, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, spec.Name, got.Name)
	assert.Equal(t, spec.Description, got.Description)
	assert.Equal(t, spec.Parameters, got.Parameters)
	assert.Equal(t, reflect.ValueOf(spec.Func).Pointer(), reflect.ValueOf(got.Func).Pointer())
}

func TestRegistry_Duplicate(t *testing.T) {
	r := NewRegistry()
	first := echoTool("echo")
	first.Description = "first"
	second := echoTool("echo")
	second.Description = "second"

	require.NoError(t, r.Register(first))
	err := r.Register(second)
	assert.ErrorIs(t, err, ErrDuplicateTool)

	got, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Description)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_InvalidSchema(t *testing.T) {
	tests := []struct {
		name string
		spec ToolSpec
	}{
		{"empty name", ToolSpec{Parameters: Schema{Type: TypeObject}, Func: echoTool("x").Func}},
		{"nil func", ToolSpec{Name: "x", Parameters: Schema{Type: TypeObject}}},
		{"not an object", ToolSpec{Name: "x", Parameters: Schema{Type: TypeString}, Func: echoTool("x").Func}},
		{"bad property type", ToolSpec{
			Name: "x",
			Parameters: Schema{
				Type:       TypeObject,
				Properties: map[string]Property{"a": {Type: "date"}},
			},
			Func: echoTool("x").Func,
		}},
		{"undeclared required", ToolSpec{
			Name:       "x",
			Parameters: Schema{Type: TypeObject, Required: []string{"a"}},
			Func:       echoTool("x").Func,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			assert.ErrorIs(t, r.Register(tt.spec), ErrInvalidSchema)
			assert.Zero(t, r.Len())
		})
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	_, err := NewRegistry().Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_DescribeAllKeepsOrder(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("zeta"), echoTool("alpha"), failingTool("mid"))

	var names []string
	for _, d := range r.DescribeAll() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
	assert.Equal(t, names, r.Names())
}
