package scene

import (
	"fmt"
	"math/bits"
	"strings"
)

// ComponentType tags a node with the kind of object it renders, so whole
// categories can be switched on and off at once.
type ComponentType uint8

const (
	Stars ComponentType = iota
	Planets
	Moons
	Satellites
	Asteroids
	Clusters
	Labels
	Orbits
	Locations
	Countries
	Equatorial
	Ecliptic
	Galactic
	Atmospheres
	Clouds
	Constellations
	Boundaries
	MilkyWay
	Galaxies
	Nebulae
	Meshes
	Effects
	VelocityVectors
	Axes
	Others

	componentTypeCount
)

var componentTypeNames = [...]string{
	"Stars", "Planets", "Moons", "Satellites", "Asteroids", "Clusters", "Labels", "Orbits",
	"Locations", "Countries", "Equatorial", "Ecliptic", "Galactic", "Atmospheres", "Clouds",
	"Constellations", "Boundaries", "MilkyWay", "Galaxies", "Nebulae", "Meshes", "Effects",
	"VelocityVectors", "Axes", "Others",
}

func (ct ComponentType) String() string {
	if ct < componentTypeCount {
		return componentTypeNames[ct]
	}
	return fmt.Sprintf("ComponentType(%d)", uint8(ct))
}

// ParseComponentType matches names case-insensitively.
func ParseComponentType(name string) (ComponentType, error) {
	for i, n := range componentTypeNames {
		if strings.EqualFold(n, name) {
			return ComponentType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown component type %q", name)
}

// ComponentTypes is a set of component types.
type ComponentTypes uint64

// AllComponentTypes contains every known component type.
const AllComponentTypes = ComponentTypes(1<<componentTypeCount - 1)

func TypesOf(cts ...ComponentType) ComponentTypes {
	var s ComponentTypes
	for _, ct := range cts {
		s = s.With(ct)
	}
	return s
}

func (s ComponentTypes) Has(ct ComponentType) bool { return s&(1<<ct) != 0 }
func (s ComponentTypes) With(ct ComponentType) ComponentTypes {
	return s | 1<<ct
}
func (s ComponentTypes) Without(ct ComponentType) ComponentTypes {
	return s &^ (1 << ct)
}
func (s ComponentTypes) Len() int      { return bits.OnesCount64(uint64(s)) }
func (s ComponentTypes) IsEmpty() bool { return s == 0 }

// List returns the members in declaration order.
func (s ComponentTypes) List() []ComponentType {
	out := make([]ComponentType, 0, s.Len())
	for ct := ComponentType(0); ct < componentTypeCount; ct++ {
		if s.Has(ct) {
			out = append(out, ct)
		}
	}
	return out
}

func (s ComponentTypes) Names() []string {
	list := s.List()
	out := make([]string, len(list))
	for i, ct := range list {
		out[i] = ct.String()
	}
	return out
}

// Toggles holds the global per-type gates. The zero value has every type off;
// use NewToggles for the usual all-on start.
type Toggles struct {
	on ComponentTypes
}

func NewToggles() Toggles { return Toggles{on: AllComponentTypes} }

func (t *Toggles) Set(ct ComponentType, on bool) {
	if on {
		t.on = t.on.With(ct)
	} else {
		t.on = t.on.Without(ct)
	}
}

func (t Toggles) IsOn(ct ComponentType) bool { return t.on.Has(ct) }

// AllOn reports whether every type in s is switched on. This is the
// attribute value handed to Switch.IsVisibleFor.
func (t Toggles) AllOn(s ComponentTypes) bool { return s&t.on == s }

// Switch is the visibility capability a renderable node may carry.
type Switch interface {
	Name() string
	Description() string
	IsVisible() bool
	// IsVisibleFor combines the node flag with a type-level gate: both must be open.
	IsVisibleFor(attributeValue bool) bool
	SetVisible(visible bool)
	HasComponentType(ct ComponentType) bool
}

var _ Switch = (*Visibility)(nil)

// Visibility is the stock Switch component. It only stores state.
type Visibility struct {
	name        string
	description string
	visible     bool
	types       ComponentTypes
}

func NewVisibility(name, description string, visible bool, types ComponentTypes) *Visibility {
	return &Visibility{name: name, description: description, visible: visible, types: types}
}

func (v *Visibility) Name() string                  { return v.name }
func (v *Visibility) Description() string           { return v.description }
func (v *Visibility) IsVisible() bool               { return v.visible }
func (v *Visibility) SetVisible(visible bool)       { v.visible = visible }
func (v *Visibility) Types() ComponentTypes         { return v.types }
func (v *Visibility) SetTypes(types ComponentTypes) { v.types = types }

func (v *Visibility) IsVisibleFor(attributeValue bool) bool {
	return attributeValue && v.visible
}

func (v *Visibility) HasComponentType(ct ComponentType) bool {
	return v.types.Has(ct)
}
