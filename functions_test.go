package soy

import (
	"math"
	"testing"

	"github.com/archimag/soy-go/value"
)

func TestRoundHalfAway(t *testing.T) {
	tests := []struct {
		x         float64
		precision int64
		want      float64
	}{
		{3.141592653589793, 0, 3},
		{2.7182817, 2, 2.72},
		{2.7182817, 4, 2.7183},
		{2.5, 0, 3},
		{-2.5, 0, -3},
		{0.5, 0, 1},
		{2.675, 2, 2.68},
		{1.005, 2, 1.01},
		{1234.5, -2, 1200},
		{1250, -2, 1300},
		{-0.4, 0, 0},
	}
	for _, tt := range tests {
		if got := roundHalfAway(tt.x, tt.precision); got != tt.want {
			t.Errorf("round(%v, %d) = %v, want %v", tt.x, tt.precision, got, tt.want)
		}
	}
	if got := roundHalfAway(math.Inf(1), 2); !math.IsInf(got, 1) {
		t.Errorf("expected infinity to pass through, got %v", got)
	}
}

func TestRoundIsIdempotent(t *testing.T) {
	for _, x := range []float64{0.1, 1.25, 3.3333, 99.995, -7.77777, 1e-5} {
		for precision := int64(0); precision < 5; precision++ {
			once := roundHalfAway(x, precision)
			if twice := roundHalfAway(once, precision); twice != once {
				t.Errorf("round(%v, %d) not idempotent: %v then %v", x, precision, once, twice)
			}
		}
	}
}

func TestBuiltinFunctions(t *testing.T) {
	renderCases(t, `
{namespace test}

{template length}{length($x)}{/template}
{template keys}{foreach $k in keys($m)}{$k}{/foreach}{/template}
{template floor}{floor($x)}/{ceiling($x)}{/template}
{template minmax}{min($a, $b)} {max($a, $b)}{/template}
{template maxOf3}{max($a, $b, 7)}{/template}
{template hasData}{hasData() ? 'yes' : 'no'}{/template}
{template literals}{length([1, 2, 3])} {['a': 1, 'b': 2]['b']} {length([:])}{/template}
`, []renderCase{
		{"length", map[string]any{"x": []int{1, 2}}, "2"},
		{"length", map[string]any{"x": "тест"}, "4"},
		{"length", map[string]any{"x": map[string]any{"a": 1}}, "1"},
		{"keys", map[string]any{"m": map[string]any{"b": 1, "a": 2, "c": 3}}, "abc"},
		{"floor", map[string]any{"x": 2.5}, "2/3"},
		{"floor", map[string]any{"x": -2.5}, "-3/-2"},
		{"minmax", map[string]any{"a": 3, "b": 5}, "3 5"},
		{"maxOf3", map[string]any{"a": 3, "b": 5}, "7"},
		{"minmax", map[string]any{"a": "b", "b": "a"}, "a b"},
		{"hasData", nil, "no"},
		{"hasData", map[string]any{}, "no"},
		{"hasData", map[string]any{"x": nil}, "yes"},
		{"literals", nil, "3 2 0"},
	})
}

func TestCustomFunction(t *testing.T) {
	env := NewEnvironment()
	env.AddFunction("greet", func(state *State, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.None(), NewError(ErrInvalidArguments, "greet() takes 1 argument")
		}
		return value.FromString("Hello " + args[0].String() + " from " + state.Name()), nil
	})
	env.AddFunction("who", func(state *State, args []value.Value) (value.Value, error) {
		return state.Lookup("name"), nil
	})
	mustAddFile(t, env, `{namespace test}
{template .main}{greet($name)}, {who()}{/template}`)

	out, err := env.Render("test.main", map[string]any{"name": "<Ann>"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if out != "Hello &lt;Ann&gt; from test.main, &lt;Ann&gt;" {
		t.Errorf("unexpected output %q", out)
	}

	_, err = env.Render("test.main", nil)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
}
