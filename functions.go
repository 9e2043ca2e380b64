package soy

import (
	"math"
	"math/big"
	"math/rand/v2"
	"strconv"

	"github.com/archimag/soy-go/value"
)

// FunctionFunc is the signature for functions callable from expressions.
type FunctionFunc func(state *State, args []value.Value) (value.Value, error)

func registerDefaultFunctions(env *Environment) {
	env.AddFunction("randomInt", fnRandomInt)
	env.AddFunction("random", fnRandomInt)
	env.AddFunction("round", fnRound)
	env.AddFunction("hasData", fnHasData)
	env.AddFunction("length", fnLength)
	env.AddFunction("keys", fnKeys)
	env.AddFunction("floor", numericFunc("floor", math.Floor))
	env.AddFunction("ceiling", numericFunc("ceiling", math.Ceil))
	env.AddFunction("min", extremumFunc("min", -1))
	env.AddFunction("max", extremumFunc("max", 1))
}

// loopFunctions take the name of a foreach variable instead of a value.
var loopFunctions = map[string]func(info *loopInfo) value.Value{
	// index is 1-based, unlike the optional index variable of foreach
	"index": func(info *loopInfo) value.Value {
		return value.FromInt(int64(info.index + 1))
	},
	"isFirst": func(info *loopInfo) value.Value {
		return value.FromBool(info.index == 0)
	},
	"isLast": func(info *loopInfo) value.Value {
		return value.FromBool(info.index == info.length-1)
	},
}

func checkArity(name string, args []value.Value, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return newError(ErrInvalidArguments, "%s() takes %d argument(s), got %d", name, min, len(args))
		}
		return newError(ErrInvalidArguments, "%s() takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

// fnRandomInt returns a uniformly distributed integer in [0, n).
func fnRandomInt(_ *State, args []value.Value) (value.Value, error) {
	if err := checkArity("randomInt", args, 1, 1); err != nil {
		return value.None(), err
	}
	n, ok := args[0].AsInt()
	if !ok || n <= 0 {
		return value.None(), newError(ErrInvalidOperand, "randomInt() needs a positive integer, got %s", args[0].Repr())
	}
	return value.FromInt(rand.Int64N(n)), nil
}

// fnRound rounds half away from zero to the given number of decimal
// places. A negative precision rounds to tens, hundreds and so on.
func fnRound(_ *State, args []value.Value) (value.Value, error) {
	if err := checkArity("round", args, 1, 2); err != nil {
		return value.None(), err
	}
	x, ok := args[0].AsFloat()
	if !ok {
		return value.None(), newError(ErrInvalidOperand, "round() needs a number, got %s", args[0].Repr())
	}
	var precision int64
	if len(args) == 2 && !args[1].IsNone() {
		if precision, ok = args[1].AsInt(); !ok {
			return value.None(), newError(ErrInvalidOperand, "round() precision must be an integer, got %s", args[1].Repr())
		}
	}
	return value.FromFloat(roundHalfAway(x, precision)), nil
}

func roundHalfAway(x float64, precision int64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || precision > 308 || precision < -308 {
		return x
	}
	// work on the shortest decimal form so 2.675 rounds to 2.68
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(x, 'f', -1, 64))
	if !ok {
		return x
	}
	neg := r.Sign() < 0
	r.Abs(r)

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(abs64(precision)), nil))
	if precision >= 0 {
		r.Mul(r, scale)
	} else {
		r.Quo(r, scale)
	}

	// floor(r + 1/2)
	num := new(big.Int).Mul(r.Num(), big.NewInt(2))
	num.Add(num, r.Denom())
	den := new(big.Int).Mul(r.Denom(), big.NewInt(2))
	rounded := new(big.Rat).SetInt(num.Quo(num, den))

	if precision >= 0 {
		rounded.Quo(rounded, scale)
	} else {
		rounded.Mul(rounded, scale)
	}
	f, _ := rounded.Float64()
	if neg {
		f = -f
	}
	return f
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// fnHasData reports whether the current template received any data.
func fnHasData(state *State, args []value.Value) (value.Value, error) {
	if err := checkArity("hasData", args, 0, 0); err != nil {
		return value.None(), err
	}
	return value.FromBool(len(state.scope.root()) > 0), nil
}

func fnLength(_ *State, args []value.Value) (value.Value, error) {
	if err := checkArity("length", args, 1, 1); err != nil {
		return value.None(), err
	}
	n, ok := args[0].Len()
	if !ok {
		return value.None(), newError(ErrInvalidOperand, "length() needs a list, map or string, got %s", args[0].Kind())
	}
	return value.FromInt(int64(n)), nil
}

func fnKeys(_ *State, args []value.Value) (value.Value, error) {
	if err := checkArity("keys", args, 1, 1); err != nil {
		return value.None(), err
	}
	if args[0].Kind() != value.KindMap {
		return value.None(), newError(ErrInvalidOperand, "keys() needs a map, got %s", args[0].Kind())
	}
	keys := args[0].Keys()
	items := make([]value.Value, len(keys))
	for i, k := range keys {
		items[i] = value.FromString(k)
	}
	return value.FromSlice(items), nil
}

func numericFunc(name string, fn func(float64) float64) FunctionFunc {
	return func(_ *State, args []value.Value) (value.Value, error) {
		if err := checkArity(name, args, 1, 1); err != nil {
			return value.None(), err
		}
		x, ok := args[0].AsFloat()
		if !ok {
			return value.None(), newError(ErrInvalidOperand, "%s() needs a number, got %s", name, args[0].Repr())
		}
		return value.FromFloat(fn(x)), nil
	}
}

// extremumFunc builds min (want -1) and max (want 1) over numbers or
// strings.
func extremumFunc(name string, want int) FunctionFunc {
	return func(_ *State, args []value.Value) (value.Value, error) {
		if len(args) < 2 {
			return value.None(), newError(ErrInvalidArguments, "%s() takes at least 2 arguments, got %d", name, len(args))
		}
		best := args[0]
		for _, arg := range args[1:] {
			c, err := arg.Compare(best)
			if err != nil {
				return value.None(), err
			}
			if c == want {
				best = arg
			}
		}
		return best, nil
	}
}
