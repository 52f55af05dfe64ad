package scene

import (
	"fmt"

	"github.com/zeusync/skygraph/internal/core/mathx"
)

// Provenance tells where a catalog metadata record came from.
type Provenance uint8

const (
	ProvenanceInternal Provenance = iota
	ProvenanceLOD
	ProvenanceSAMP
	ProvenanceScript
	ProvenanceUI
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceInternal:
		return "internal"
	case ProvenanceLOD:
		return "lod"
	case ProvenanceSAMP:
		return "samp"
	case ProvenanceScript:
		return "script"
	case ProvenanceUI:
		return "ui"
	default:
		return fmt.Sprintf("provenance(%d)", uint8(p))
	}
}

// CatalogInfo is the display metadata the renderer keeps statistics against.
// The engine guarantees its presence and never interprets the contents.
type CatalogInfo struct {
	Name        string
	Description string
	Source      string
	Provenance  Provenance
}

// Range is a camera-distance interval in scene units.
type Range struct {
	Near, Far float64
}

// Fade decorates a node with camera-distance opacity and display metadata.
//
// With In set, opacity maps from InMap[0] at In.Near to InMap[1] at In.Far;
// Out works the same way with OutMap. Both factors multiply.
type Fade struct {
	In     *Range
	Out    *Range
	InMap  [2]float64
	OutMap [2]float64

	metadata *CatalogInfo
	catalog  bool
}

func NewFade(in, out *Range) *Fade {
	return &Fade{
		In:     in,
		Out:    out,
		InMap:  [2]float64{0, 1},
		OutMap: [2]float64{1, 0},
	}
}

// NewCatalog builds the fade decorator of a catalog node. The metadata record
// always exists afterwards: info is kept as given, and a nil info is replaced
// by an internally sourced record.
func NewCatalog(info *CatalogInfo, in, out *Range) *Fade {
	f := NewFade(in, out)
	f.catalog = true
	if info == nil {
		info = &CatalogInfo{Provenance: ProvenanceInternal}
	}
	f.metadata = info
	return f
}

// Factor returns the opacity multiplier for a camera distance.
func (f *Fade) Factor(distance float64) float64 {
	factor := 1.0
	if f.In != nil {
		factor *= mathx.Lint(distance, f.In.Near, f.In.Far, f.InMap[0], f.InMap[1])
	}
	if f.Out != nil {
		factor *= mathx.Lint(distance, f.Out.Near, f.Out.Far, f.OutMap[0], f.OutMap[1])
	}
	return factor
}

// IsCatalog reports whether the decorator was built by NewCatalog.
func (f *Fade) IsCatalog() bool { return f.catalog }

// Metadata returns the display metadata, creating an internal record on first
// access for plain fade nodes. Catalog nodes are built with metadata, so a
// missing record there is a broken invariant and panics.
func (f *Fade) Metadata() *CatalogInfo {
	if f.metadata == nil {
		if f.catalog {
			panic(ErrMissingMetadata)
		}
		f.metadata = &CatalogInfo{Provenance: ProvenanceInternal}
	}
	return f.metadata
}

// HasMetadata reports whether a record exists without creating one.
func (f *Fade) HasMetadata() bool { return f.metadata != nil }
