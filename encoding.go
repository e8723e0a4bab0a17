// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package svm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalJSON encodes the elements as a JSON array, one element at a time.
func (v *Vec[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range v.Slice() {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("svm: encode element %d: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON appends the elements of a JSON array to the vector. It
// does not reset the vector first.
func (v *Vec[T]) UnmarshalJSON(data []byte) error {
	return v.ExtendJSON(json.NewDecoder(bytes.NewReader(data)))
}

// ExtendJSON reads one JSON array from dec and pushes each element
// straight into the vector's shared memory. A JSON null appends nothing.
//
// Coarse-grain vectors must be mapped and have enough capacity for the
// whole array; an array that does not fit fails with ErrImplicitGrowth.
// On any error the elements appended so far are released and the length
// is restored.
func (v *Vec[T]) ExtendJSON(dec *json.Decoder) (err error) {
	if v.buf.elem.size == 0 {
		return ErrNotConstructed
	}
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("svm: decode JSON: %w", err)
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("svm: decode JSON: expected array, got %v", tok)
	}

	start := v.len
	defer func() {
		if err != nil {
			v.Truncate(start)
		}
	}()
	for i := 0; dec.More(); i++ {
		if err := v.checkDecodeCapacity(i, 1); err != nil {
			return err
		}
		var e T
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("svm: decode element %d: %w", i, err)
		}
		if err := v.Push(e); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("svm: decode JSON: %w", err)
	}
	return nil
}

// checkDecodeCapacity fails when n more decoded elements, starting with
// element i, would grow a coarse-grain vector.
func (v *Vec[T]) checkDecodeCapacity(i, n int) error {
	if v.buf.mode != ModeCoarseGrainBuffer || n <= v.buf.cap-v.len {
		return nil
	}
	return fmt.Errorf("svm: decode element %d: %w: capacity %d, length %d",
		i+v.buf.cap-v.len, ErrImplicitGrowth, v.buf.cap, v.len)
}

// MarshalYAML encodes the elements as a YAML sequence, one element at a
// time.
func (v *Vec[T]) MarshalYAML() (any, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for i, e := range v.Slice() {
		n := &yaml.Node{}
		if err := n.Encode(e); err != nil {
			return nil, fmt.Errorf("svm: encode element %d: %w", i, err)
		}
		seq.Content = append(seq.Content, n)
	}
	return seq, nil
}

// UnmarshalYAML appends the elements of a YAML sequence to the vector. A
// YAML null appends nothing. Capacity and error handling follow
// ExtendJSON.
func (v *Vec[T]) UnmarshalYAML(node *yaml.Node) (err error) {
	if v.buf.elem.size == 0 {
		return ErrNotConstructed
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("svm: decode YAML: expected sequence at line %d", node.Line)
	}
	if err := v.checkDecodeCapacity(0, len(node.Content)); err != nil {
		return err
	}

	start := v.len
	defer func() {
		if err != nil {
			v.Truncate(start)
		}
	}()
	for i, n := range node.Content {
		var e T
		if err := n.Decode(&e); err != nil {
			return fmt.Errorf("svm: decode element %d: %w", i, err)
		}
		if err := v.Push(e); err != nil {
			return err
		}
	}
	return nil
}
