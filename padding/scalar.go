package padding

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/padding-gomlx/internal/scalars"
)

// Scalar is a compile-time value of a given dtype.
//
// The value is held as a float64, already rounded to what the dtype can represent.
type Scalar struct {
	DType dtypes.DType
	Value float64
}

// NewScalar returns the scalar of the given dtype closest to value.
func NewScalar(dtype dtypes.DType, value float64) Scalar {
	if !scalars.IsSupported(dtype) {
		exceptions.Panicf("unsupported dtype %s for padding scalar", dtype)
	}
	return Scalar{DType: dtype, Value: scalars.Round(dtype, value)}
}

// ScalarOf converts a Go value (float32, int8, float16.Float16, bool, ...) to a Scalar with the corresponding dtype.
func ScalarOf(value any) Scalar {
	dtype, v, err := scalars.FromAny(value)
	if err != nil {
		panic(err)
	}
	return NewScalar(dtype, v)
}

// Zero returns the 0 of dtype.
func Zero(dtype dtypes.DType) Scalar {
	return NewScalar(dtype, 0)
}

// One returns the 1 of dtype.
func One(dtype dtypes.DType) Scalar {
	return NewScalar(dtype, 1)
}

// Equal returns whether both scalars have the same dtype and value. NaNs are equal to each other.
func (s Scalar) Equal(other Scalar) bool {
	if s.DType != other.DType {
		return false
	}
	if math.IsNaN(s.Value) && math.IsNaN(other.Value) {
		return true
	}
	return s.Value == other.Value
}

// IsZero returns whether the value is zero.
func (s Scalar) IsZero() bool {
	return s.Value == 0
}

// Convert returns s cast to dtype, with the device's conversion semantics.
func (s Scalar) Convert(dtype dtypes.DType) Scalar {
	return NewScalar(dtype, s.Value)
}

// String implements fmt.Stringer.
func (s Scalar) String() string {
	return scalars.Format(s.DType, s.Value)
}
