package transform

import (
	"bytes"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// ParseYAML reads a YAML document into a Value
func ParseYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return FromYAMLNode(&doc)
}

// FromYAMLNode converts a decoded yaml.Node tree into a Value
func FromYAMLNode(n *yaml.Node) (Value, error) {
	if n == nil {
		return Null{}, nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null{}, nil
		}
		return FromYAMLNode(n.Content[0])
	case yaml.AliasNode:
		return FromYAMLNode(n.Alias)
	case yaml.MappingNode:
		obj := &Object{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			val, err := FromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(n.Content[i].Value, val)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := &Array{}
		for _, c := range n.Content {
			val, err := FromYAMLNode(c)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, val)
		}
		return arr, nil
	case yaml.ScalarNode:
		return scalarFromYAML(n)
	case 0:
		// zero node, e.g. an absent optional field
		return Null{}, nil
	default:
		return nil, errors.Errorf("unsupported YAML node kind %d", n.Kind)
	}
}

func scalarFromYAML(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null{}, nil
	case "!!bool":
		b, err := strconv.ParseBool(strings.ToLower(n.Value))
		if err != nil {
			var out bool
			if derr := n.Decode(&out); derr != nil {
				return nil, errors.Errorf("decoding bool %q: %w", n.Value, derr)
			}
			return Bool(out), nil
		}
		return Bool(b), nil
	case "!!int", "!!float":
		return Number(n.Value), nil
	default:
		return String(n.Value), nil
	}
}

// EncodeYAML writes v as a YAML document indented with two spaces
func EncodeYAML(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAMLNode(v)); err != nil {
		return nil, errors.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Errorf("encoding YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func toYAMLNode(v Value) *yaml.Node {
	switch t := v.(type) {
	case Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(bool(t))}
	case Number:
		tag := "!!int"
		if strings.ContainsAny(string(t), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(t)}
	case String:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(t)}
	case *Array:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range t.Items {
			n.Content = append(n.Content, toYAMLNode(item))
		}
		return n
	case *Object:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, m := range t.Members {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: m.Key},
				toYAMLNode(m.Value),
			)
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}
