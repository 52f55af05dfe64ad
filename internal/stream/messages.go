package stream

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/skygraph/internal/core/scene"
)

// Frame types on the wire.
const (
	FrameFull  = "full"
	FrameDelta = "delta"
)

// Frame is one feed message. A full frame lists every attached node; a delta
// lists only nodes whose renderer state changed and the ids removed since
// the previous frame.
type Frame struct {
	Type    string        `json:"type"`
	Seq     uint64        `json:"seq"`
	Instant time.Time     `json:"instant"`
	Nodes   []NodeMessage `json:"nodes"`
	Removed []string      `json:"removed,omitempty"`
}

type NodeMessage struct {
	ID      string          `json:"id"`
	Parent  string          `json:"parent,omitempty"`
	Name    string          `json:"name"`
	Kind    string          `json:"kind"`
	World   [16]float32     `json:"world"`
	Opacity float32         `json:"opacity"`
	Visible bool            `json:"visible"`
	Types   []string        `json:"types,omitempty"`
	Catalog *CatalogMessage `json:"catalog,omitempty"`
}

type CatalogMessage struct {
	Name       string `json:"name"`
	Source     string `json:"source,omitempty"`
	Provenance string `json:"provenance"`
}

// FullFrame renders a snapshot as a full frame.
func FullFrame(seq uint64, instant time.Time, states []scene.NodeState) Frame {
	nodes := make([]NodeMessage, len(states))
	for i := range states {
		nodes[i] = nodeMessage(&states[i])
	}
	return Frame{Type: FrameFull, Seq: seq, Instant: instant, Nodes: nodes}
}

func nodeMessage(st *scene.NodeState) NodeMessage {
	m := NodeMessage{
		ID:      st.ID.String(),
		Name:    st.Name,
		Kind:    st.Kind.String(),
		World:   st.World,
		Opacity: st.Opacity,
		Visible: st.Visible,
		Types:   st.Types.Names(),
	}
	if st.Parent != scene.NoNode {
		m.Parent = st.Parent.String()
	}
	if st.Catalog != nil {
		m.Catalog = &CatalogMessage{
			Name:       st.Catalog.Name,
			Source:     st.Catalog.Source,
			Provenance: st.Catalog.Provenance.String(),
		}
	}
	return m
}

// stateHash fingerprints the parts of a node state a renderer draws from.
func stateHash(st *scene.NodeState) uint64 {
	var buf [8 + 8 + 1 + 16*4 + 4 + 1 + 8]byte
	b := buf[:0]
	b = binary.LittleEndian.AppendUint64(b, uint64(st.ID))
	b = binary.LittleEndian.AppendUint64(b, uint64(st.Parent))
	b = append(b, byte(st.Kind))
	for _, v := range st.World {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
	}
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(st.Opacity))
	if st.Visible {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = binary.LittleEndian.AppendUint64(b, uint64(st.Types))
	return xxhash.Sum64(b)
}
