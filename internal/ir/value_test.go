package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFromGo(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"string", "x", String("x")},
		{"int", 7, Int(7)},
		{"int32", int32(-3), Int(-3)},
		{"uint8", uint8(200), Int(200)},
		{"bool", true, Bool(true)},
		{"integral float", float64(4), Int(4)},
		{"slice", []any{1, "a"}, Array{Int(1), String("a")}},
		{"typed slice", []int{1, 2}, Array{Int(1), Int(2)}},
		{"map", map[string]any{"k": []any{}}, Object{"k": Array{}}},
		{"value passthrough", String("v"), String("v")},
		{"pointer", func() any { n := 5; return &n }(), Int(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGoErrors(t *testing.T) {
	for name, input := range map[string]any{
		"float":          1.5,
		"nested float":   map[string]any{"a": []any{0.1}},
		"struct":         struct{}{},
		"int keyed map":  map[int]any{1: 1},
		"huge uint":      uint64(1 << 63),
		"json float num": json.Number("1.5"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromGo(input)
			assert.Error(t, err)
		})
	}
}

func TestToGo(t *testing.T) {
	v := Object{
		"s": String("x"),
		"n": Int(2),
		"b": Bool(false),
		"z": Null{},
		"a": Array{Int(1), Array{}},
	}

	assert.Equal(t, map[string]any{
		"s": "x",
		"n": int64(2),
		"b": false,
		"z": nil,
		"a": []any{int64(1), []any{}},
	}, ToGo(v))
	assert.Nil(t, ToGo(nil))
}

func TestObjectAccessors(t *testing.T) {
	obj := Object{"name": String("n"), "count": Int(3), "on": Bool(true)}

	assert.Equal(t, "n", obj.String("name", "def"))
	assert.Equal(t, "def", obj.String("count", "def"))
	assert.Equal(t, int64(3), obj.Int("count", 0))
	assert.Equal(t, int64(9), obj.Int("missing", 9))
	assert.True(t, obj.Bool("on", false))
	assert.True(t, Object(nil).Bool("on", true))
}

func TestValueJSONRoundTrip(t *testing.T) {
	data := []byte(`{"b":[1,"two",true,null],"a":{"nested":"x"}}`)

	v, err := UnmarshalValue(data)
	require.NoError(t, err)
	assert.Equal(t, Object{
		"a": Object{"nested": String("x")},
		"b": Array{Int(1), String("two"), Bool(true), Null{}},
	}, v)

	out, err := MarshalValue(v)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(out))
}

func TestUnmarshalValueRejectsFloats(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"a":1.0}`))
	assert.Error(t, err)

	_, err = UnmarshalValue([]byte(`1e3`))
	assert.Error(t, err)
}

func TestObjectUnmarshalJSON(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"x":1}`), &obj))
	assert.Equal(t, Object{"x": Int(1)}, obj)

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &obj))
}

func TestObjectUnmarshalYAML(t *testing.T) {
	var holder struct {
		Params Object `yaml:"params"`
		Inputs Array  `yaml:"inputs"`
	}
	err := yaml.Unmarshal([]byte("params:\n  sep: \",\"\n  n: 3\ninputs: [a, 2, [x]]\n"), &holder)
	require.NoError(t, err)

	assert.Equal(t, Object{"sep": String(","), "n": Int(3)}, holder.Params)
	assert.Equal(t, Array{String("a"), Int(2), Array{String("x")}}, holder.Inputs)
}

func TestObjectUnmarshalYAMLRejectsFloat(t *testing.T) {
	var holder struct {
		Params Object `yaml:"params"`
	}
	err := yaml.Unmarshal([]byte("params:\n  ratio: 0.5\n"), &holder)
	assert.Error(t, err)
}

func TestSortedKeys(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "c": Int(3)}
	assert.Equal(t, []string{"a", "b", "c"}, obj.SortedKeys())
}
