package storage

import (
	"encoding/json"
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/janelia-flyem/bgrid/attribute"
	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/geometry"
)

// recordVersion is bumped when the element layout changes incompatibly.
const recordVersion = 1

// marshalElement encodes an element as a msgp map.  Geometry and metadata are
// embedded as their JSON documents so they stay readable by other tools.
func marshalElement(el *blockmodel.Element) ([]byte, error) {
	geom, err := geometry.MarshalGeometry(el.Geometry)
	if err != nil {
		return nil, err
	}
	md, err := json.Marshal(el.Metadata)
	if err != nil {
		return nil, err
	}
	o := msgp.Require(nil, elementMsgsize(el)+len(geom)+len(md))
	o = msgp.AppendMapHeader(o, 6)
	o = msgp.AppendString(o, "version")
	o = msgp.AppendInt(o, recordVersion)
	o = msgp.AppendString(o, "name")
	o = msgp.AppendString(o, el.Name)
	o = msgp.AppendString(o, "description")
	o = msgp.AppendString(o, el.Description)
	o = msgp.AppendString(o, "geometry")
	o = msgp.AppendBytes(o, geom)
	o = msgp.AppendString(o, "metadata")
	o = msgp.AppendBytes(o, md)
	o = msgp.AppendString(o, "attributes")
	o = msgp.AppendArrayHeader(o, uint32(len(el.Attributes)))
	for _, a := range el.Attributes {
		o = appendAttribute(o, a)
	}
	return o, nil
}

func appendAttribute(o []byte, a *attribute.Attribute) []byte {
	o = msgp.AppendMapHeader(o, 9)
	o = msgp.AppendString(o, "name")
	o = msgp.AppendString(o, a.Name)
	o = msgp.AppendString(o, "kind")
	o = msgp.AppendUint8(o, uint8(a.Kind))
	o = msgp.AppendString(o, "description")
	o = msgp.AppendString(o, a.Description)
	o = msgp.AppendString(o, "floats")
	o = msgp.AppendArrayHeader(o, uint32(len(a.Floats)))
	for _, v := range a.Floats {
		o = msgp.AppendFloat64(o, v)
	}
	o = msgp.AppendString(o, "ints")
	o = msgp.AppendArrayHeader(o, uint32(len(a.Ints)))
	for _, v := range a.Ints {
		o = msgp.AppendInt64(o, v)
	}
	o = msgp.AppendString(o, "codes")
	o = msgp.AppendArrayHeader(o, uint32(len(a.Codes)))
	for _, v := range a.Codes {
		o = msgp.AppendInt32(o, v)
	}
	o = msgp.AppendString(o, "categories")
	o = msgp.AppendArrayHeader(o, uint32(len(a.Categories)))
	for _, v := range a.Categories {
		o = msgp.AppendString(o, v)
	}
	o = msgp.AppendString(o, "null_sentinel")
	o = msgp.AppendInt64(o, a.NullSentinel)
	o = msgp.AppendString(o, "nullable")
	o = msgp.AppendBool(o, a.Nullable)
	return o
}

// elementMsgsize is an upper bound on the encoded size excluding the JSON
// documents.
func elementMsgsize(el *blockmodel.Element) int {
	s := msgp.MapHeaderSize + 6*(msgp.StringPrefixSize+16) + msgp.IntSize +
		2*msgp.StringPrefixSize + len(el.Name) + len(el.Description) +
		2*msgp.BytesPrefixSize + msgp.ArrayHeaderSize
	for _, a := range el.Attributes {
		s += msgp.MapHeaderSize + 9*(msgp.StringPrefixSize+16) +
			2*msgp.StringPrefixSize + len(a.Name) + len(a.Description) +
			msgp.Uint8Size + msgp.Int64Size + msgp.BoolSize + 4*msgp.ArrayHeaderSize +
			len(a.Floats)*msgp.Float64Size + len(a.Ints)*msgp.Int64Size + len(a.Codes)*msgp.Int32Size
		for _, c := range a.Categories {
			s += msgp.StringPrefixSize + len(c)
		}
	}
	return s
}

func decodeError(what string, err error) error {
	return fmt.Errorf("decoding %s: %v: %w", what, err, bgrid.ErrData)
}

// unmarshalElement is the inverse of marshalElement.  Unknown fields are
// skipped.
func unmarshalElement(bts []byte) (*blockmodel.Element, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return nil, decodeError("element", err)
	}
	el := new(blockmodel.Element)
	var geom, md []byte
	for ; sz > 0; sz-- {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return nil, decodeError("element", err)
		}
		switch msgp.UnsafeString(field) {
		case "version":
			var v int
			v, bts, err = msgp.ReadIntBytes(bts)
			if err == nil && v > recordVersion {
				return nil, fmt.Errorf("element record version %d is newer than %d: %w", v, recordVersion, bgrid.ErrData)
			}
		case "name":
			el.Name, bts, err = msgp.ReadStringBytes(bts)
		case "description":
			el.Description, bts, err = msgp.ReadStringBytes(bts)
		case "geometry":
			geom, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "metadata":
			md, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "attributes":
			var n uint32
			n, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				break
			}
			el.Attributes = make([]*attribute.Attribute, n)
			for i := range el.Attributes {
				el.Attributes[i], bts, err = readAttribute(bts)
				if err != nil {
					break
				}
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return nil, decodeError(fmt.Sprintf("element field %q", field), err)
		}
	}

	if el.Geometry, err = geometry.UnmarshalGeometry(geom); err != nil {
		return nil, fmt.Errorf("element %q: %w", el.Name, err)
	}
	if len(md) != 0 {
		if err := json.Unmarshal(md, &el.Metadata); err != nil {
			return nil, fmt.Errorf("element %q metadata: %v: %w", el.Name, err, bgrid.ErrData)
		}
	}
	if err := el.Validate(); err != nil {
		return nil, err
	}
	return el, nil
}

func readAttribute(bts []byte) (*attribute.Attribute, []byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	a := new(attribute.Attribute)
	for ; sz > 0; sz-- {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return nil, bts, err
		}
		switch msgp.UnsafeString(field) {
		case "name":
			a.Name, bts, err = msgp.ReadStringBytes(bts)
		case "kind":
			var k uint8
			k, bts, err = msgp.ReadUint8Bytes(bts)
			a.Kind = attribute.Kind(k)
		case "description":
			a.Description, bts, err = msgp.ReadStringBytes(bts)
		case "floats":
			var n uint32
			if n, bts, err = msgp.ReadArrayHeaderBytes(bts); err == nil && n > 0 {
				a.Floats = make([]float64, n)
				for i := range a.Floats {
					if a.Floats[i], bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
						break
					}
				}
			}
		case "ints":
			var n uint32
			if n, bts, err = msgp.ReadArrayHeaderBytes(bts); err == nil && n > 0 {
				a.Ints = make([]int64, n)
				for i := range a.Ints {
					if a.Ints[i], bts, err = msgp.ReadInt64Bytes(bts); err != nil {
						break
					}
				}
			}
		case "codes":
			var n uint32
			if n, bts, err = msgp.ReadArrayHeaderBytes(bts); err == nil && n > 0 {
				a.Codes = make([]int32, n)
				for i := range a.Codes {
					if a.Codes[i], bts, err = msgp.ReadInt32Bytes(bts); err != nil {
						break
					}
				}
			}
		case "categories":
			var n uint32
			if n, bts, err = msgp.ReadArrayHeaderBytes(bts); err == nil && n > 0 {
				a.Categories = make([]string, n)
				for i := range a.Categories {
					if a.Categories[i], bts, err = msgp.ReadStringBytes(bts); err != nil {
						break
					}
				}
			}
		case "null_sentinel":
			a.NullSentinel, bts, err = msgp.ReadInt64Bytes(bts)
		case "nullable":
			a.Nullable, bts, err = msgp.ReadBoolBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return nil, bts, fmt.Errorf("attribute field %q: %v", field, err)
		}
	}
	return a, bts, nil
}
