package dirtree

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nicolagi/dedupvfs/internal/hash"
)

// MarshalJSON encodes a node as the documented 3-element tuple:
// [is_directory, metadata, content], where content is a name->node object
// for directories or the hex digest string (possibly empty) for files.
//
// A directory's content object is built by hand, writing each child in
// n.children order, rather than via json.Marshal on a Go map: map encoding
// sorts keys alphabetically, which would discard the children's insertion
// order on every save. Order is not semantically significant, but it must
// round-trip so that List() is deterministic across a save/load cycle.
func (n *Node) MarshalJSON() ([]byte, error) {
	var content json.RawMessage
	var err error
	if n.IsDir() {
		content, err = marshalOrderedChildren(n.children)
	} else {
		content, err = json.Marshal(string(n.digest))
	}
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(n.metadata)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{
		json.RawMessage(fmt.Sprintf("%t", n.IsDir())),
		meta,
		content,
	})
}

// marshalOrderedChildren writes children as a JSON object, one member per
// child in slice order, without ever passing through a Go map.
func marshalOrderedChildren(children []*Node) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range children {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a node from its documented tuple form. Children, if
// any, have their parent and name set here, mirroring the fact that a
// node's own name is not part of its own encoded tuple - it's the key
// under which its parent stores it.
func (n *Node) UnmarshalJSON(data []byte) error {
	var tuple [3]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	var isDir bool
	if err := json.Unmarshal(tuple[0], &isDir); err != nil {
		return err
	}
	var metadata map[string]string
	if err := json.Unmarshal(tuple[1], &metadata); err != nil {
		return err
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	n.metadata = metadata
	if isDir {
		n.kind = KindDir
		children, err := unmarshalOrderedChildren(tuple[2])
		if err != nil {
			return err
		}
		for _, c := range children {
			c.parent = n
			n.children = append(n.children, c)
		}
	} else {
		n.kind = KindFile
		var digest string
		if err := json.Unmarshal(tuple[2], &digest); err != nil {
			return err
		}
		n.digest = hash.Digest(digest)
	}
	return nil
}

// unmarshalOrderedChildren decodes a directory's content object into
// *Node values in the order their keys appear in the document, by walking
// the object token by token instead of unmarshaling into a Go map (whose
// iteration order is randomized per process and would make List() results
// vary from run to run after a Load()).
func unmarshalOrderedChildren(data json.RawMessage) ([]*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("dirtree: expected object start for directory content, got %v", tok)
	}
	var children []*Node
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("dirtree: expected string key in directory content, got %v", keyTok)
		}
		child := &Node{}
		if err := dec.Decode(child); err != nil {
			return nil, err
		}
		child.name = name
		children = append(children, child)
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return nil, err
	}
	return children, nil
}

// encode serialises the whole tree document (the root node).
func encode(root *Node) ([]byte, error) {
	return json.Marshal(root)
}

// decode parses a tree document into a root node. An empty (zero-length)
// document is not an error: the caller is expected to check for that case
// first and bootstrap an empty tree instead of calling decode. A non-empty
// but malformed document is always an error - there is no silent fallback
// to an empty tree.
func decode(data []byte) (*Node, error) {
	root := &Node{kind: KindDir, metadata: map[string]string{}}
	if err := json.Unmarshal(data, root); err != nil {
		return nil, err
	}
	return root, nil
}
