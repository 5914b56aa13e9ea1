package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Apply(t *testing.T) {
	s := Schema{
		Type: TypeObject,
		Properties: map[string]Property{
			"city":  {Type: TypeString},
			"days":  {Type: TypeInteger, Default: 1.0},
			"units": {Type: TypeString, Enum: []string{"metric", "imperial"}},
			"tags":  {Type: TypeArray, Items: &Property{Type: TypeString}},
			"exact": {Type: TypeBoolean},
		},
		Required: []string{"city"},
	}
	require.NoError(t, s.Validate())

	tests := []struct {
		name    string
		args    Arguments
		wantErr bool
	}{
		{"minimal", Arguments{"city": "Minsk"}, false},
		{"full", Arguments{"city": "Minsk", "days": 3.0, "units": "metric", "tags": []any{"a"}, "exact": true}, false},
		{"missing required", Arguments{"days": 2.0}, true},
		{"wrong type", Arguments{"city": 42.0}, true},
		{"fractional integer", Arguments{"city": "Minsk", "days": 1.5}, true},
		{"enum violation", Arguments{"city": "Minsk", "units": "kelvin"}, true},
		{"unknown field", Arguments{"city": "Minsk", "country": "BY"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Apply(tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArguments)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.args["city"], out["city"])
			assert.Contains(t, out, "days")
		})
	}
}

func TestSchema_ApplyDoesNotMutateInput(t *testing.T) {
	s := Schema{
		Type:       TypeObject,
		Properties: map[string]Property{"n": {Type: TypeNumber, Default: 2.0}},
	}
	in := Arguments{}
	out, err := s.Apply(in)
	require.NoError(t, err)
	assert.Empty(t, in)
	assert.Equal(t, 2.0, out["n"])
}

func TestSchema_ValidateDefaultType(t *testing.T) {
	s := Schema{
		Type:       TypeObject,
		Properties: map[string]Property{"n": {Type: TypeNumber, Default: "two"}},
	}
	assert.ErrorIs(t, s.Validate(), ErrInvalidSchema)
}

func TestSchema_ValidateEnumOnlyOnStrings(t *testing.T) {
	s := Schema{
		Type:       TypeObject,
		Properties: map[string]Property{"k": {Type: TypeInteger, Enum: []string{"1", "2"}}},
	}
	assert.ErrorIs(t, s.Validate(), ErrInvalidSchema)

	r := NewRegistry()
	err := r.Register(ToolSpec{
		Name:       "pick",
		Parameters: s,
		Func:       func(context.Context, Arguments) (any, error) { return nil, nil },
	})
	assert.ErrorIs(t, err, ErrInvalidSchema)
	assert.Equal(t, 0, r.Len())
}

func TestArguments_Accessors(t *testing.T) {
	args := Arguments{"s": "x", "f": 1.5, "i": 3.0, "q": "2.5", "b": true}

	s, err := args.String("s")
	require.NoError(t, err)
	assert.Equal(t, "x", s)

	f, err := args.Float("q")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	i, err := args.Int("i")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	_, err = args.Int("f")
	assert.ErrorIs(t, err, ErrInvalidArguments)

	b, err := args.Bool("b")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = args.String("missing")
	assert.ErrorIs(t, err, ErrInvalidArguments)

	n, err := args.IntOr("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
