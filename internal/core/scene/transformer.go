package scene

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/skygraph/internal/core/coord"
	"github.com/zeusync/skygraph/internal/core/ephem"
	"github.com/zeusync/skygraph/internal/core/mathx"
)

// Kind identifies the local-transform strategy of a node.
type Kind uint8

const (
	KindStatic Kind = iota
	KindOrbit
	KindHeliotropic
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindOrbit:
		return "orbit"
	case KindHeliotropic:
		return "heliotropic"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Transformer computes a node's local transform for an instant. It must be a
// pure function of the instant and its own fixed parameters.
type Transformer interface {
	Kind() Kind
	Transform(instant time.Time) (mgl64.Mat4, error)
}

// ParentOriented strategies can compose the orientation of the parent body.
// The traversal calls TransformIn instead of Transform for them.
type ParentOriented interface {
	Transformer
	TransformIn(instant time.Time, parentOrientation mgl64.Mat4) (mgl64.Mat4, error)
}

// SunLongitudeFunc returns the Sun's ecliptic longitude in degrees.
type SunLongitudeFunc func(instant time.Time) float64

// Static always yields the same matrix.
type Static struct {
	Matrix mgl64.Mat4
}

func NewStatic(m mgl64.Mat4) *Static { return &Static{Matrix: m} }

// StaticAt is a static translation.
func StaticAt(position mgl64.Vec3) *Static { return NewStatic(mathx.Translate(position)) }

func (s *Static) Kind() Kind { return KindStatic }

func (s *Static) Transform(time.Time) (mgl64.Mat4, error) {
	if !mathx.IsFiniteMat4(s.Matrix) {
		return mgl64.Mat4{}, ErrNonFinite
	}
	return s.Matrix, nil
}

// Orbit places a node at the position its model gives for the instant,
// followed by a fixed orientation of the orbital frame. With
// InheritOrientation the parent's body orientation goes between the two.
type Orbit struct {
	Model              ephem.Model
	Orientation        mgl64.Mat4
	InheritOrientation bool
}

func NewOrbit(model ephem.Model) *Orbit {
	return &Orbit{Model: model, Orientation: mgl64.Ident4()}
}

// OrbitOrientation builds the orbital frame rotation from the argument of
// pericenter, inclination and ascending node (degrees).
func OrbitOrientation(argOfPericenter, inclination, ascendingNode float64) mgl64.Mat4 {
	return mathx.RotateYDeg(argOfPericenter).
		Mul4(mathx.RotateZDeg(inclination)).
		Mul4(mathx.RotateYDeg(ascendingNode))
}

func (o *Orbit) Kind() Kind { return KindOrbit }

func (o *Orbit) Transform(instant time.Time) (mgl64.Mat4, error) {
	return o.TransformIn(instant, mgl64.Ident4())
}

func (o *Orbit) TransformIn(instant time.Time, parentOrientation mgl64.Mat4) (mgl64.Mat4, error) {
	base, err := translationAt(o.Model, instant)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	if o.InheritOrientation {
		base = base.Mul4(parentOrientation)
	}
	// a zero orientation means the struct was built without NewOrbit
	if o.Orientation == (mgl64.Mat4{}) {
		return base, nil
	}
	return base.Mul4(o.Orientation), nil
}

// Heliotropic is an orbit whose frame follows the Sun's apparent longitude:
// translation, then the ecliptic to equatorial frame change, then a rotation
// of (longitude + 180) degrees about the pole.
type Heliotropic struct {
	Model        ephem.Model
	SunLongitude SunLongitudeFunc
}

func NewHeliotropic(model ephem.Model) *Heliotropic {
	return &Heliotropic{Model: model, SunLongitude: coord.SunLongitude}
}

func (h *Heliotropic) Kind() Kind { return KindHeliotropic }

func (h *Heliotropic) Transform(instant time.Time) (mgl64.Mat4, error) {
	sunLongitude := coord.SunLongitude
	if h.SunLongitude != nil {
		sunLongitude = h.SunLongitude
	}
	lon := sunLongitude(instant)
	if !mathx.IsFinite(lon) {
		return mgl64.Mat4{}, fmt.Errorf("%w: sun longitude %v", ErrNonFinite, lon)
	}

	base, err := translationAt(h.Model, instant)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return base.Mul4(coord.EclToEq()).Mul4(mathx.RotateYDeg(lon + 180)), nil
}

func translationAt(model ephem.Model, instant time.Time) (mgl64.Mat4, error) {
	if model == nil {
		return mgl64.Ident4(), nil
	}
	s, err := model.At(instant)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	p := s.Position()
	if !mathx.IsFiniteVec3(p) {
		return mgl64.Mat4{}, fmt.Errorf("%w: position %v", ErrNonFinite, p)
	}
	return mathx.Translate(p), nil
}
