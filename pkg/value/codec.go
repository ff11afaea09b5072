package value

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/codec"
	"github.com/ipld/go-ipld-prime/codec/dagjson"
	"github.com/ipld/go-ipld-prime/codec/json"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	rfmtjson "github.com/polydawn/refmt/json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/tagspeak/tagspeak/tsapi"
)

// Format names a document serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
	FormatCBOR  Format = "cbor"
)

// FormatForPath picks the format from a file extension.
//
// Errors:
//
//   - tagspeak-error-format-unsupported -- for any other extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".jsonc":
		return FormatJSONC, nil
	case ".cbor":
		return FormatCBOR, nil
	}
	return "", tsapi.ErrorFormatUnsupported(filepath.Ext(path))
}

// ParseFormat maps a format name (as written in a packet mode) to a Format.
//
// Errors:
//
//   - tagspeak-error-format-unsupported -- for unknown names.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatJSON, FormatYAML, FormatJSONC, FormatCBOR:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", tsapi.ErrorFormatUnsupported(name)
}

var encodeOptions = dagjson.EncodeOptions{
	EncodeLinks: false,
	EncodeBytes: false,
	MapSortMode: codec.MapSortMode_None,
}

var cborDecMode cbor.DecMode

func init() {
	var err error
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Decode parses serialized data into a document tree.
// Trees are built from map[string]any, []any, string, int64, float64, bool and nil.
//
// Errors:
//
//   - tagspeak-error-serialization -- if the data does not parse.
//   - tagspeak-error-format-unsupported -- for an unknown format.
func Decode(format Format, data []byte) (any, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	case FormatJSONC:
		return decodeJSON(jsonc.ToJSON(data))
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, tsapi.ErrorSerialization("decoding yaml", err)
		}
		return normalize(v)
	case FormatCBOR:
		var v any
		if err := cborDecMode.Unmarshal(data, &v); err != nil {
			return nil, tsapi.ErrorSerialization("decoding cbor", err)
		}
		return normalize(v)
	}
	return nil, tsapi.ErrorFormatUnsupported(string(format))
}

// Encode serializes a document tree. JSON is compact; JSONC is written as plain JSON.
//
// Errors:
//
//   - tagspeak-error-serialization -- if the tree holds something unencodable.
//   - tagspeak-error-format-unsupported -- for an unknown format.
func Encode(format Format, tree any) ([]byte, error) {
	switch format {
	case FormatJSON, FormatJSONC:
		return encodeJSON(tree, false)
	case FormatYAML:
		b, err := yaml.Marshal(tree)
		if err != nil {
			return nil, tsapi.ErrorSerialization("encoding yaml", err)
		}
		return b, nil
	case FormatCBOR:
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, tsapi.ErrorSerialization("encoding cbor", err)
		}
		b, err := em.Marshal(tree)
		if err != nil {
			return nil, tsapi.ErrorSerialization("encoding cbor", err)
		}
		return b, nil
	}
	return nil, tsapi.ErrorFormatUnsupported(string(format))
}

// encodeFile is Encode with human-friendly JSON, as written to disk.
func encodeFile(format Format, tree any) ([]byte, error) {
	if format == FormatJSON || format == FormatJSONC {
		b, err := encodeJSON(tree, true)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	return Encode(format, tree)
}

func decodeJSON(data []byte) (any, error) {
	n, err := ipld.Decode(data, json.Decode)
	if err != nil {
		return nil, tsapi.ErrorSerialization("decoding json", err)
	}
	return fromNode(n)
}

func encodeJSON(tree any, pretty bool) ([]byte, error) {
	n, err := toNode(tree)
	if err != nil {
		return nil, err
	}
	// A nil Line is what makes refmt drop the space after each colon.
	var opt rfmtjson.EncodeOptions
	if pretty {
		opt.Line = []byte{'\n'}
		opt.Indent = []byte{'\t'}
	}
	var buf bytes.Buffer
	if err := dagjson.Marshal(n, rfmtjson.NewEncoder(&buf, opt), encodeOptions); err != nil {
		return nil, tsapi.ErrorSerialization("encoding json", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// canonicalJSON is the snapshot form used to detect no-op saves and external edits.
func canonicalJSON(tree any) ([]byte, error) {
	return encodeJSON(tree, false)
}

func fromNode(n datamodel.Node) (any, error) {
	switch n.Kind() {
	case datamodel.Kind_Null:
		return nil, nil
	case datamodel.Kind_Bool:
		return n.AsBool()
	case datamodel.Kind_Int:
		return n.AsInt()
	case datamodel.Kind_Float:
		return n.AsFloat()
	case datamodel.Kind_String:
		return n.AsString()
	case datamodel.Kind_Bytes:
		b, err := n.AsBytes()
		return string(b), err
	case datamodel.Kind_List:
		out := make([]any, 0, n.Length())
		for itr := n.ListIterator(); !itr.Done(); {
			_, v, err := itr.Next()
			if err != nil {
				return nil, tsapi.ErrorSerialization("reading list", err)
			}
			e, err := fromNode(v)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case datamodel.Kind_Map:
		out := make(map[string]any, n.Length())
		for itr := n.MapIterator(); !itr.Done(); {
			k, v, err := itr.Next()
			if err != nil {
				return nil, tsapi.ErrorSerialization("reading map", err)
			}
			ks, err := k.AsString()
			if err != nil {
				return nil, tsapi.ErrorSerialization("reading map key", err)
			}
			e, err := fromNode(v)
			if err != nil {
				return nil, err
			}
			out[ks] = e
		}
		return out, nil
	}
	return nil, tsapi.ErrorSerialization("reading document", fmt.Errorf("unsupported kind %s", n.Kind()))
}

func toNode(tree any) (datamodel.Node, error) {
	nb := basicnode.Prototype.Any.NewBuilder()
	if err := assemble(nb, tree); err != nil {
		return nil, tsapi.ErrorSerialization("building document", err)
	}
	return nb.Build(), nil
}

func assemble(na datamodel.NodeAssembler, v any) error {
	switch x := v.(type) {
	case nil:
		return na.AssignNull()
	case bool:
		return na.AssignBool(x)
	case int64:
		return na.AssignInt(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return na.AssignInt(int64(x))
		}
		return na.AssignFloat(x)
	case string:
		return na.AssignString(x)
	case []any:
		la, err := na.BeginList(int64(len(x)))
		if err != nil {
			return err
		}
		for _, e := range x {
			if err := assemble(la.AssembleValue(), e); err != nil {
				return err
			}
		}
		return la.Finish()
	case map[string]any:
		ma, err := na.BeginMap(int64(len(x)))
		if err != nil {
			return err
		}
		for _, k := range sortedKeys(x) {
			if err := ma.AssembleKey().AssignString(k); err != nil {
				return err
			}
			if err := assemble(ma.AssembleValue(), x[k]); err != nil {
				return err
			}
		}
		return ma.Finish()
	}
	return fmt.Errorf("unsupported document value of type %T", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize converts decoder output (yaml, cbor) into the document tree types.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return normalizeUint(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normalizeUint(x), nil
	case float32:
		return float64(x), nil
	case []byte:
		return string(x), nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = n
		}
		return out, nil
	}
	return nil, tsapi.ErrorSerialization("reading document", fmt.Errorf("unsupported value of type %T", v))
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}
