package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/skygraph/internal/core/ephem"
)

// Description is a declarative scene able to be written in JSON or YAML.
// Nodes are created in order, so parents must come before their children.
type Description struct {
	Root  string            `json:"root" yaml:"root"`
	Nodes []NodeDescription `json:"nodes" yaml:"nodes"`
}

type NodeDescription struct {
	Name        string `json:"name" yaml:"name"`
	Parent      string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Kind is static, orbit or heliotropic. Empty means static.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	Position    []float64               `json:"position,omitempty" yaml:"position,omitempty"`
	Velocity    []float64               `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	Kepler      *KeplerDescription      `json:"kepler,omitempty" yaml:"kepler,omitempty"`
	Table       []TimedDescription      `json:"table,omitempty" yaml:"table,omitempty"`
	Orientation *OrientationDescription `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	// BodyOrientation is the node's own frame, inherited by child orbits
	// that ask for it.
	BodyOrientation *OrientationDescription `json:"body_orientation,omitempty" yaml:"body_orientation,omitempty"`

	Visible *bool    `json:"visible,omitempty" yaml:"visible,omitempty"`
	Types   []string `json:"types,omitempty" yaml:"types,omitempty"`

	Fade    *FadeDescription    `json:"fade,omitempty" yaml:"fade,omitempty"`
	Catalog *CatalogDescription `json:"catalog,omitempty" yaml:"catalog,omitempty"`
}

type KeplerDescription struct {
	SemiMajorAxis   float64   `json:"semi_major_axis" yaml:"semi_major_axis"`
	Eccentricity    float64   `json:"eccentricity" yaml:"eccentricity"`
	Inclination     float64   `json:"inclination" yaml:"inclination"`
	AscendingNode   float64   `json:"ascending_node" yaml:"ascending_node"`
	ArgOfPericenter float64   `json:"arg_of_pericenter" yaml:"arg_of_pericenter"`
	MeanAnomaly     float64   `json:"mean_anomaly" yaml:"mean_anomaly"`
	Epoch           time.Time `json:"epoch" yaml:"epoch"`
	Period          float64   `json:"period" yaml:"period"`
}

type TimedDescription struct {
	Time     time.Time `json:"time" yaml:"time"`
	Position []float64 `json:"position" yaml:"position"`
	Velocity []float64 `json:"velocity,omitempty" yaml:"velocity,omitempty"`
}

type OrientationDescription struct {
	ArgOfPericenter float64 `json:"arg_of_pericenter" yaml:"arg_of_pericenter"`
	Inclination     float64 `json:"inclination" yaml:"inclination"`
	AscendingNode   float64 `json:"ascending_node" yaml:"ascending_node"`
	// InheritParent composes the parent's body orientation into an orbit.
	InheritParent bool `json:"inherit_parent,omitempty" yaml:"inherit_parent,omitempty"`
}

func (or *OrientationDescription) matrix() mgl64.Mat4 {
	return OrbitOrientation(or.ArgOfPericenter, or.Inclination, or.AscendingNode)
}

// FadeDescription holds [near, far] ranges and [from, to] opacity maps.
type FadeDescription struct {
	In     []float64 `json:"in,omitempty" yaml:"in,omitempty"`
	Out    []float64 `json:"out,omitempty" yaml:"out,omitempty"`
	InMap  []float64 `json:"in_map,omitempty" yaml:"in_map,omitempty"`
	OutMap []float64 `json:"out_map,omitempty" yaml:"out_map,omitempty"`
}

type CatalogDescription struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	Provenance  string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// LoadJSON decodes a description from JSON.
func LoadJSON(r io.Reader) (*Description, error) {
	var d Description
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return &d, nil
}

// LoadYAML decodes a description from YAML.
func LoadYAML(r io.Reader) (*Description, error) {
	var d Description
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	return &d, nil
}

// Build creates a graph holding the described hierarchy. The returned map
// resolves node names to ids.
func (d *Description) Build(opts ...Option) (*Graph, map[string]NodeID, error) {
	if d.Root != "" {
		opts = append([]Option{WithRootName(d.Root)}, opts...)
	}
	g := NewGraph(opts...)
	ids := make(map[string]NodeID, len(d.Nodes))

	for i := range d.Nodes {
		nd := &d.Nodes[i]
		if nd.Name == "" {
			return nil, nil, fmt.Errorf("%w: node %d has no name", ErrInvalidDescription, i)
		}
		if _, dup := ids[nd.Name]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate node %q", ErrInvalidDescription, nd.Name)
		}

		parent := g.Root()
		if nd.Parent != "" {
			p, ok := ids[nd.Parent]
			if !ok {
				return nil, nil, fmt.Errorf("%w: node %q: unknown parent %q", ErrInvalidDescription, nd.Name, nd.Parent)
			}
			parent = p
		}

		nodeOpts, err := nd.options()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: node %q: %w", ErrInvalidDescription, nd.Name, err)
		}
		id, err := g.Add(parent, nd.Name, nodeOpts...)
		if err != nil {
			return nil, nil, err
		}
		ids[nd.Name] = id
	}
	return g, ids, nil
}

func (nd *NodeDescription) options() ([]NodeOption, error) {
	opts := []NodeOption{WithDescription(nd.Description)}

	t, err := nd.transformer()
	if err != nil {
		return nil, err
	}
	if t != nil {
		opts = append(opts, WithTransformer(t))
	}

	if nd.BodyOrientation != nil {
		opts = append(opts, WithOrientation(nd.BodyOrientation.matrix()))
	}

	if nd.Visible != nil || len(nd.Types) > 0 {
		types := make([]ComponentType, 0, len(nd.Types))
		for _, name := range nd.Types {
			ct, err := ParseComponentType(name)
			if err != nil {
				return nil, err
			}
			types = append(types, ct)
		}
		visible := nd.Visible == nil || *nd.Visible
		opts = append(opts, WithVisibility(visible, types...))
	}

	if nd.Fade != nil || nd.Catalog != nil {
		f, err := nd.fade()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithFade(f))
	}
	return opts, nil
}

func (nd *NodeDescription) transformer() (Transformer, error) {
	switch strings.ToLower(nd.Kind) {
	case "", "static":
		if nd.Position == nil {
			return nil, nil
		}
		p, err := vec3(nd.Position)
		if err != nil {
			return nil, fmt.Errorf("position: %w", err)
		}
		return StaticAt(p), nil
	case "orbit":
		model, err := nd.model()
		if err != nil {
			return nil, err
		}
		o := NewOrbit(model)
		if or := nd.Orientation; or != nil {
			o.Orientation = or.matrix()
			o.InheritOrientation = or.InheritParent
		}
		return o, nil
	case "heliotropic":
		model, err := nd.model()
		if err != nil {
			return nil, err
		}
		return NewHeliotropic(model), nil
	default:
		return nil, fmt.Errorf("unknown kind %q", nd.Kind)
	}
}

// model picks the orbital model: Kepler elements, then a table, then a fixed sample.
func (nd *NodeDescription) model() (ephem.Model, error) {
	switch {
	case nd.Kepler != nil:
		k := ephem.Kepler{
			SemiMajorAxis:   nd.Kepler.SemiMajorAxis,
			Eccentricity:    nd.Kepler.Eccentricity,
			Inclination:     nd.Kepler.Inclination,
			AscendingNode:   nd.Kepler.AscendingNode,
			ArgOfPericenter: nd.Kepler.ArgOfPericenter,
			MeanAnomaly:     nd.Kepler.MeanAnomaly,
			Epoch:           nd.Kepler.Epoch,
			Period:          nd.Kepler.Period,
		}
		if err := k.Validate(); err != nil {
			return nil, err
		}
		return k, nil
	case len(nd.Table) > 0:
		points := make([]ephem.Timed, len(nd.Table))
		for i, row := range nd.Table {
			s, err := sample(row.Position, row.Velocity)
			if err != nil {
				return nil, fmt.Errorf("table row %d: %w", i, err)
			}
			points[i] = ephem.Timed{Time: row.Time, Sample: s}
		}
		tb, err := ephem.NewTabulated(points)
		if err != nil {
			return nil, err
		}
		return tb, nil
	case nd.Position != nil:
		s, err := sample(nd.Position, nd.Velocity)
		if err != nil {
			return nil, err
		}
		return ephem.Fixed(s), nil
	default:
		return nil, fmt.Errorf("kind %q needs kepler, table or position", nd.Kind)
	}
}

func (nd *NodeDescription) fade() (*Fade, error) {
	var in, out *Range
	var err error
	if nd.Fade != nil {
		if in, err = rangeOf(nd.Fade.In); err != nil {
			return nil, fmt.Errorf("fade in: %w", err)
		}
		if out, err = rangeOf(nd.Fade.Out); err != nil {
			return nil, fmt.Errorf("fade out: %w", err)
		}
	}

	var f *Fade
	if c := nd.Catalog; c != nil {
		prov, err := parseProvenance(c.Provenance)
		if err != nil {
			return nil, err
		}
		f = NewCatalog(&CatalogInfo{Name: c.Name, Description: c.Description, Source: c.Source, Provenance: prov}, in, out)
	} else {
		f = NewFade(in, out)
	}

	if nd.Fade != nil {
		if len(nd.Fade.InMap) > 0 {
			if len(nd.Fade.InMap) != 2 {
				return nil, fmt.Errorf("in_map needs 2 values, got %d", len(nd.Fade.InMap))
			}
			f.InMap = [2]float64{nd.Fade.InMap[0], nd.Fade.InMap[1]}
		}
		if len(nd.Fade.OutMap) > 0 {
			if len(nd.Fade.OutMap) != 2 {
				return nil, fmt.Errorf("out_map needs 2 values, got %d", len(nd.Fade.OutMap))
			}
			f.OutMap = [2]float64{nd.Fade.OutMap[0], nd.Fade.OutMap[1]}
		}
	}
	return f, nil
}

func parseProvenance(s string) (Provenance, error) {
	for p := ProvenanceInternal; p <= ProvenanceUI; p++ {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	if s == "" {
		return ProvenanceInternal, nil
	}
	return 0, fmt.Errorf("unknown provenance %q", s)
}

func rangeOf(v []float64) (*Range, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 2:
		return &Range{Near: v[0], Far: v[1]}, nil
	default:
		return nil, fmt.Errorf("range needs 2 values, got %d", len(v))
	}
}

func sample(position, velocity []float64) (ephem.Sample, error) {
	p, err := vec3(position)
	if err != nil {
		return ephem.Sample{}, fmt.Errorf("position: %w", err)
	}
	var v mgl64.Vec3
	if velocity != nil {
		if v, err = vec3(velocity); err != nil {
			return ephem.Sample{}, fmt.Errorf("velocity: %w", err)
		}
	}
	return ephem.NewSample(p, v), nil
}

func vec3(v []float64) (mgl64.Vec3, error) {
	if len(v) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("need 3 components, got %d", len(v))
	}
	return mgl64.Vec3{v[0], v[1], v[2]}, nil
}
