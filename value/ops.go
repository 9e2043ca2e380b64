package value

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidOperand is wrapped by errors from operators applied to
	// values of the wrong kind.
	ErrInvalidOperand = errors.New("invalid operand")
	// ErrIndexOutOfRange is wrapped by errors from list indexing.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// OpError is returned by the operators in this package.
type OpError struct {
	Msg string
	Err error
}

func (e *OpError) Error() string {
	return e.Msg
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(kind error, format string, args ...interface{}) error {
	return &OpError{Msg: fmt.Sprintf(format, args...), Err: kind}
}

// Neg performs unary negation.
func (v Value) Neg() (Value, error) {
	if f, ok := v.AsFloat(); ok {
		return FromFloat(-f), nil
	}
	return None(), opError(ErrInvalidOperand, "cannot negate %s", v.Kind())
}

// Not returns the negated truthiness of the value.
func (v Value) Not() Value {
	return FromBool(!v.IsTrue())
}

// Add performs numeric addition or string concatenation.
//
// When either operand is a string both operands are stringified and joined;
// otherwise both must be numbers.
func (v Value) Add(other Value) (Value, error) {
	if v.Kind() == KindString || other.Kind() == KindString {
		return FromString(v.String() + other.String()), nil
	}
	a, b, err := numbers("add", v, other)
	if err != nil {
		return None(), err
	}
	return FromFloat(a + b), nil
}

// Sub performs subtraction.
func (v Value) Sub(other Value) (Value, error) {
	a, b, err := numbers("subtract", v, other)
	if err != nil {
		return None(), err
	}
	return FromFloat(a - b), nil
}

// Mul performs multiplication.
func (v Value) Mul(other Value) (Value, error) {
	a, b, err := numbers("multiply", v, other)
	if err != nil {
		return None(), err
	}
	return FromFloat(a * b), nil
}

// Div performs floating point division.
func (v Value) Div(other Value) (Value, error) {
	a, b, err := numbers("divide", v, other)
	if err != nil {
		return None(), err
	}
	if b == 0 {
		return None(), opError(ErrInvalidOperand, "division by zero")
	}
	return FromFloat(a / b), nil
}

// Rem computes the remainder of a division. The result has the sign of the
// dividend.
func (v Value) Rem(other Value) (Value, error) {
	a, b, err := numbers("compute remainder of", v, other)
	if err != nil {
		return None(), err
	}
	if b == 0 {
		return None(), opError(ErrInvalidOperand, "modulo by zero")
	}
	return FromFloat(math.Mod(a, b)), nil
}

// Compare orders two numbers or two strings. It returns -1, 0 or 1.
func (v Value) Compare(other Value) (int, error) {
	switch a := v.data.(type) {
	case float64:
		if b, ok := other.data.(float64); ok {
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			}
			return 0, nil
		}
	case string:
		if b, ok := other.data.(string); ok {
			switch {
			case a < b:
				return -1, nil
			case a > b:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, opError(ErrInvalidOperand, "cannot compare %s with %s", v.Kind(), other.Kind())
}

func numbers(op string, a, b Value) (float64, float64, error) {
	x, ok1 := a.AsFloat()
	y, ok2 := b.AsFloat()
	if !ok1 || !ok2 {
		return 0, 0, opError(ErrInvalidOperand, "cannot %s %s and %s", op, a.Kind(), b.Kind())
	}
	return x, y, nil
}
