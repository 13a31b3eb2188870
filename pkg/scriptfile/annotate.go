package scriptfile

import (
	"bytes"
	"fmt"

	"github.com/speakeasy-api/blockjit"
	"gopkg.in/yaml.v3"
)

// Annotate copies the TargetType of every variable read and write into its
// statement as a "type" key. Call it after the list has been analysed.
func (s *Script) Annotate() {
	for _, ins := range s.List.All() {
		if ins.Op != blockjit.OpReadVariable && ins.Op != blockjit.OpWriteVariable {
			continue
		}
		n, ok := s.nodes[ins]
		if !ok {
			continue
		}
		setKey(n, "type", ins.TargetType.String())
	}
}

// Marshal renders the document, including any annotations.
func (s *Script) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s.doc); err != nil {
		return nil, fmt.Errorf("failed to marshal script: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal script: %w", err)
	}
	return buf.Bytes(), nil
}

func setKey(n *yaml.Node, key, value string) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			n.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
			return
		}
	}
	n.Content = append(n.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}
