// Package stream carries layout snapshots between processes over websockets.
// Clients choose JSON or a compact binary framing per connection.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sudorandom/fightscope/pkg/layout"
)

type Format int

const (
	FormatJSON Format = iota
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "json"
}

// ParseFormat maps a ?format= query value to a Format. Unknown values are
// JSON.
func ParseFormat(s string) Format {
	if s == "binary" || s == "bin" {
		return FormatBinary
	}
	return FormatJSON
}

var ErrMalformedFrame = errors.New("malformed snapshot frame")

// Field numbers of the binary framing.
const (
	fieldType      protowire.Number = 1
	fieldRunID     protowire.Number = 2
	fieldSeq       protowire.Number = 3
	fieldNode      protowire.Number = 4
	fieldLink      protowire.Number = 5
	fieldStats     protowire.Number = 6
	fieldTimestamp protowire.Number = 7

	nodeID      protowire.Number = 1
	nodeLabel   protowire.Number = 2
	nodeCountry protowire.Number = 3
	nodeDegree  protowire.Number = 4
	nodeCoords  protowire.Number = 5 // x y z vx vy vz, fixed64 each

	linkSource protowire.Number = 1
	linkTarget protowire.Number = 2
	linkWeight protowire.Number = 3
	linkCoords protowire.Number = 4 // x1 y1 z1 x2 y2 z2

	statsTicks    protowire.Number = 1
	statsMeanTick protowire.Number = 2
	statsLastTick protowire.Number = 3
	statsAlpha    protowire.Number = 4
)

func Encode(s layout.Snapshot, f Format) ([]byte, error) {
	if f == FormatBinary {
		return EncodeBinary(s), nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

func Decode(b []byte, f Format) (layout.Snapshot, error) {
	if f == FormatBinary {
		return DecodeBinary(b)
	}
	var s layout.Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return layout.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return s, nil
}

// EncodeBinary writes s as a protobuf-compatible wire message. Floats are
// fixed64 so positions survive exactly.
func EncodeBinary(s layout.Snapshot) []byte {
	b := make([]byte, 0, 64+len(s.Nodes)*96+len(s.Links)*80)

	typ := uint64(0)
	if s.Type == layout.TypeStable {
		typ = 1
	}
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, typ)
	b = protowire.AppendTag(b, fieldRunID, protowire.BytesType)
	b = protowire.AppendBytes(b, s.RunID[:])
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Seq)

	var sub []byte
	for _, n := range s.Nodes {
		sub = sub[:0]
		sub = appendString(sub, nodeID, n.ID)
		sub = appendString(sub, nodeLabel, n.Label)
		sub = appendString(sub, nodeCountry, n.Country)
		sub = appendFloat(sub, nodeDegree, n.Degree)
		sub = appendFloats(sub, nodeCoords, n.X, n.Y, n.Z, n.VX, n.VY, n.VZ)
		b = protowire.AppendTag(b, fieldNode, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	for _, l := range s.Links {
		sub = sub[:0]
		sub = appendString(sub, linkSource, l.Source)
		sub = appendString(sub, linkTarget, l.Target)
		sub = appendFloat(sub, linkWeight, l.Weight)
		sub = appendFloats(sub, linkCoords, l.X1, l.Y1, l.Z1, l.X2, l.Y2, l.Z2)
		b = protowire.AppendTag(b, fieldLink, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}

	sub = sub[:0]
	sub = protowire.AppendTag(sub, statsTicks, protowire.VarintType)
	sub = protowire.AppendVarint(sub, s.Stats.Ticks)
	sub = protowire.AppendTag(sub, statsMeanTick, protowire.VarintType)
	sub = protowire.AppendVarint(sub, uint64(s.Stats.MeanTick))
	sub = protowire.AppendTag(sub, statsLastTick, protowire.VarintType)
	sub = protowire.AppendVarint(sub, uint64(s.Stats.LastTick))
	sub = appendFloat(sub, statsAlpha, s.Stats.Alpha)
	b = protowire.AppendTag(b, fieldStats, protowire.BytesType)
	b = protowire.AppendBytes(b, sub)

	if !s.Timestamp.IsZero() {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, uint64(s.Timestamp.UnixNano()))
	}
	return b
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// appendFloats packs vs into one length-delimited field.
func appendFloats(b []byte, num protowire.Number, vs ...float64) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(8*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

// fields walks a message, calling fn with each field's number, type and raw
// value bytes. Varint and fixed64 values are passed already decoded in v.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		var v uint64
		var raw []byte
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func unpackFloats(raw []byte, dst ...*float64) error {
	if len(raw) != 8*len(dst) {
		return fmt.Errorf("%w: packed floats have %d bytes, want %d", ErrMalformedFrame, len(raw), 8*len(dst))
	}
	for _, d := range dst {
		v, n := protowire.ConsumeFixed64(raw)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		*d = math.Float64frombits(v)
		raw = raw[n:]
	}
	return nil
}

// DecodeBinary is the inverse of EncodeBinary. Unknown fields are skipped.
func DecodeBinary(b []byte) (layout.Snapshot, error) {
	s := layout.Snapshot{Type: layout.TypeTick}
	err := fields(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case fieldType:
			if v == 1 {
				s.Type = layout.TypeStable
			}
		case fieldRunID:
			id, err := uuid.FromBytes(raw)
			if err != nil {
				return fmt.Errorf("%w: run id: %v", ErrMalformedFrame, err)
			}
			s.RunID = id
		case fieldSeq:
			s.Seq = v
		case fieldNode:
			n, err := decodeNode(raw)
			if err != nil {
				return err
			}
			s.Nodes = append(s.Nodes, n)
		case fieldLink:
			l, err := decodeLink(raw)
			if err != nil {
				return err
			}
			s.Links = append(s.Links, l)
		case fieldStats:
			return fields(raw, func(num protowire.Number, _ protowire.Type, v uint64, _ []byte) error {
				switch num {
				case statsTicks:
					s.Stats.Ticks = v
				case statsMeanTick:
					s.Stats.MeanTick = time.Duration(v)
				case statsLastTick:
					s.Stats.LastTick = time.Duration(v)
				case statsAlpha:
					s.Stats.Alpha = math.Float64frombits(v)
				}
				return nil
			})
		case fieldTimestamp:
			s.Timestamp = time.Unix(0, int64(v)).UTC()
		}
		return nil
	})
	if err != nil {
		return layout.Snapshot{}, err
	}
	return s, nil
}

func decodeNode(b []byte) (layout.PositionedNode, error) {
	var n layout.PositionedNode
	err := fields(b, func(num protowire.Number, _ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case nodeID:
			n.ID = string(raw)
		case nodeLabel:
			n.Label = string(raw)
		case nodeCountry:
			n.Country = string(raw)
		case nodeDegree:
			n.Degree = math.Float64frombits(v)
		case nodeCoords:
			return unpackFloats(raw, &n.X, &n.Y, &n.Z, &n.VX, &n.VY, &n.VZ)
		}
		return nil
	})
	return n, err
}

func decodeLink(b []byte) (layout.PositionedLink, error) {
	var l layout.PositionedLink
	err := fields(b, func(num protowire.Number, _ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case linkSource:
			l.Source = string(raw)
		case linkTarget:
			l.Target = string(raw)
		case linkWeight:
			l.Weight = math.Float64frombits(v)
		case linkCoords:
			return unpackFloats(raw, &l.X1, &l.Y1, &l.Z1, &l.X2, &l.Y2, &l.Z2)
		}
		return nil
	})
	return l, err
}
