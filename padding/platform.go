package padding

import (
	"github.com/gomlx/go-xla/pkg/types/dtypes"
	"github.com/gomlx/padding-gomlx/internal/scalars"
	"github.com/pkg/errors"
)

// Platform answers the target capability queries the engine needs: the sentinel (lowest and highest
// representable) values of each dtype.
type Platform interface {
	Lowest(dtype dtypes.DType) (Scalar, error)
	Highest(dtype dtypes.DType) (Scalar, error)
}

// DefaultPlatform uses the finite limits of each dtype: e.g. ±65504 for Float16 and ±3.4028234663852886e+38
// for Float32.
type DefaultPlatform struct{}

var _ Platform = DefaultPlatform{}

// Lowest implements Platform.
func (DefaultPlatform) Lowest(dtype dtypes.DType) (Scalar, error) {
	v, err := scalars.Lowest(dtype)
	if err != nil {
		return Scalar{}, errors.WithMessage(err, "DefaultPlatform")
	}
	return Scalar{DType: dtype, Value: v}, nil
}

// Highest implements Platform.
func (DefaultPlatform) Highest(dtype dtypes.DType) (Scalar, error) {
	v, err := scalars.Highest(dtype)
	if err != nil {
		return Scalar{}, errors.WithMessage(err, "DefaultPlatform")
	}
	return Scalar{DType: dtype, Value: v}, nil
}
