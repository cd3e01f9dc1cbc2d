// Package scalars contains dtype-aware numeric utilities used to evaluate padding values at compile time.
//
// All values are carried as float64 and rounded to the precision (and range) of their dtype, the same way
// the device would store them.
package scalars

import (
	"math"
	"strconv"
	"strings"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/go-xla/pkg/types/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// IsSupported returns whether dtype can be represented by this package: floats, integers and booleans.
func IsSupported(dtype dtypes.DType) bool {
	return dtype.IsFloat() || dtype.IsInt() || dtype == dtypes.Bool
}

// Round converts v to the nearest value representable by dtype.
//
// Float values are rounded to the dtype precision, integer values are truncated and saturated to the
// dtype range (NaN becomes 0), and booleans become 0 or 1.
func Round(dtype dtypes.DType, v float64) float64 {
	switch dtype {
	case dtypes.Float64:
		return v
	case dtypes.Float32:
		return float64(float32(v))
	case dtypes.Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case dtypes.BFloat16:
		return float64(bfloat16.FromFloat64(v).Float32())
	case dtypes.Bool:
		if v != 0 && !math.IsNaN(v) {
			return 1
		}
		return 0
	}
	if !dtype.IsInt() {
		return v
	}
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	lowest, _ := Lowest(dtype)
	highest, _ := Highest(dtype)
	return math.Min(math.Max(v, lowest), highest)
}

// Lowest returns the lowest finite value representable by dtype.
//
// Integer and boolean limits come from dtypes. Float limits are the finite ones: dtypes returns -Inf.
func Lowest(dtype dtypes.DType) (float64, error) {
	switch {
	case dtype == dtypes.Float64:
		return -math.MaxFloat64, nil
	case dtype == dtypes.Float32:
		return -math.MaxFloat32, nil
	case dtype == dtypes.Float16:
		return -float64(float16.Frombits(0x7bff).Float32()), nil
	case dtype == dtypes.BFloat16:
		return -float64(bfloat16.FromBits(0x7f7f).Float32()), nil
	case dtype.IsInt() || dtype == dtypes.Bool:
		return limit(dtype.LowestValue())
	default:
		return 0, errors.Errorf("dtype %s has no lowest value", dtype)
	}
}

// Highest returns the highest finite value representable by dtype.
//
// Notice Uint64 and Int64 limits are not exactly representable in a float64, they are rounded to the
// nearest float64.
func Highest(dtype dtypes.DType) (float64, error) {
	switch {
	case dtype == dtypes.Float64:
		return math.MaxFloat64, nil
	case dtype == dtypes.Float32:
		return math.MaxFloat32, nil
	case dtype == dtypes.Float16:
		return float64(float16.Frombits(0x7bff).Float32()), nil
	case dtype == dtypes.BFloat16:
		return float64(bfloat16.FromBits(0x7f7f).Float32()), nil
	case dtype.IsInt() || dtype == dtypes.Bool:
		return limit(dtype.HighestValue())
	default:
		return 0, errors.Errorf("dtype %s has no highest value", dtype)
	}
}

func limit(value any) (float64, error) {
	_, v, err := FromAny(value)
	return v, err
}

// FromAny converts a Go scalar value to its dtype and its float64 value.
func FromAny(v any) (dtype dtypes.DType, value float64, err error) {
	switch x := v.(type) {
	case float64:
		return dtypes.Float64, x, nil
	case float32:
		return dtypes.Float32, float64(x), nil
	case float16.Float16:
		return dtypes.Float16, float64(x.Float32()), nil
	case bfloat16.BFloat16:
		return dtypes.BFloat16, float64(x.Float32()), nil
	case int:
		if strconv.IntSize == 32 {
			return dtypes.Int32, float64(x), nil
		}
		return dtypes.Int64, float64(x), nil
	case int64:
		return dtypes.Int64, float64(x), nil
	case int32:
		return dtypes.Int32, float64(x), nil
	case int16:
		return dtypes.Int16, float64(x), nil
	case int8:
		return dtypes.Int8, float64(x), nil
	case uint64:
		return dtypes.Uint64, float64(x), nil
	case uint32:
		return dtypes.Uint32, float64(x), nil
	case uint16:
		return dtypes.Uint16, float64(x), nil
	case uint8:
		return dtypes.Uint8, float64(x), nil
	case bool:
		if x {
			return dtypes.Bool, 1, nil
		}
		return dtypes.Bool, 0, nil
	default:
		return dtypes.InvalidDType, 0, errors.Errorf("unsupported scalar type %T", v)
	}
}

// Parse converts a textual literal to a value of the given dtype.
//
// Besides numbers, it accepts "min"/"lowest" and "max"/"highest" for the dtype limits, and "true"/"false".
func Parse(dtype dtypes.DType, text string) (float64, error) {
	if !IsSupported(dtype) {
		return 0, errors.Errorf("unsupported dtype %s for literal %q", dtype, text)
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "min", "lowest":
		return Lowest(dtype)
	case "max", "highest":
		return Highest(dtype)
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid literal %q for dtype %s", text, dtype)
	}
	return Round(dtype, v), nil
}

// Format returns the canonical text of value for dtype.
func Format(dtype dtypes.DType, value float64) string {
	switch {
	case dtype == dtypes.Bool:
		return strconv.FormatBool(value != 0)
	case dtype.IsInt() && math.Abs(value) < 1<<53:
		return strconv.FormatInt(int64(value), 10)
	default:
		return strconv.FormatFloat(value, 'g', -1, 64)
	}
}
