package backend

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Parameter is a named tensor of trainable values. Identity is pointer
// identity: two models share weights exactly when they hold the same
// *Parameter.
type Parameter struct {
	Name  string
	Shape []int
	Data  []float64
}

func NewParameter(name string, shape ...int) (*Parameter, error) {
	if name == "" {
		return nil, errors.New("parameter name is required")
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("parameter %s: shape is required", name)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("parameter %s: dimension %d must be > 0", name, d)
		}
		n *= d
	}
	return &Parameter{
		Name:  name,
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, n),
	}, nil
}

func (p *Parameter) Size() int { return len(p.Data) }

// At2 reads a row-major element of a rank-2 parameter.
func (p *Parameter) At2(i, j int) float64 { return p.Data[i*p.Shape[1]+j] }

func (p *Parameter) Set2(i, j int, v float64) { p.Data[i*p.Shape[1]+j] = v }

// InitUniform fills the parameter uniformly from [-scale, scale]. Scale
// zero selects 1/sqrt(fan-in), with fan-in taken as size over the last
// dimension.
func (p *Parameter) InitUniform(rng *rand.Rand, scale float64) {
	if scale == 0 {
		fanIn := p.Size() / p.Shape[len(p.Shape)-1]
		if fanIn < 1 {
			fanIn = 1
		}
		scale = 1 / math.Sqrt(float64(fanIn))
	}
	for i := range p.Data {
		p.Data[i] = (rng.Float64()*2 - 1) * scale
	}
}

func snapshotParams(params []*Parameter) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p.Data...)
	}
	return out
}

func restoreParams(params []*Parameter, snap [][]float64) {
	for i, p := range params {
		copy(p.Data, snap[i])
	}
}
