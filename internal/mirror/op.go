package mirror

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

type OpKind string

const (
	OpSet    OpKind = "set"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
	// OpUnion adds ids to a list field, initialising the document when
	// it does not exist yet.
	OpUnion OpKind = "union"
)

// Op is one mirror write. Ops are plain data so they can be applied right
// away or persisted and applied later by the relay.
type Op struct {
	Kind   OpKind         `json:"kind"`
	Path   string         `json:"path"`
	Value  any            `json:"value,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Field  string         `json:"field,omitempty"`
	IDs    []uint         `json:"ids,omitempty"`
}

func SetOp(path string, value any) Op {
	return Op{Kind: OpSet, Path: path, Value: value}
}

func UpdateOp(path string, fields map[string]any) Op {
	return Op{Kind: OpUpdate, Path: path, Fields: fields}
}

func RemoveOp(path string) Op {
	return Op{Kind: OpRemove, Path: path}
}

func UnionOp(path, field string, ids []uint) Op {
	return Op{Kind: OpUnion, Path: path, Field: field, IDs: ids}
}

// DecodeOp restores an op persisted with json.Marshal.
func DecodeOp(payload []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(payload, &op); err != nil {
		return Op{}, errors.Wrap(err, "mirror: decode op")
	}
	return op, nil
}

// Apply performs op against tree.
func Apply(ctx context.Context, tree Tree, op Op) error {
	switch op.Kind {
	case OpSet:
		return tree.Set(ctx, op.Path, op.Value)
	case OpUpdate:
		return tree.Update(ctx, op.Path, op.Fields)
	case OpRemove:
		return tree.Remove(ctx, op.Path)
	case OpUnion:
		return applyUnion(ctx, tree, op)
	default:
		return errors.Errorf("mirror: unknown op %q", op.Kind)
	}
}

// ApplyAll applies ops in order and stops at the first failure.
func ApplyAll(ctx context.Context, tree Tree, ops []Op) error {
	for _, op := range ops {
		if err := Apply(ctx, tree, op); err != nil {
			return err
		}
	}
	return nil
}

func applyUnion(ctx context.Context, tree Tree, op Op) error {
	raw, ok, err := tree.Get(ctx, op.Path)
	if err != nil {
		return err
	}

	var existing []uint
	if ok {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			return errors.Wrapf(err, "mirror: decode %s", op.Path)
		}
		if existing, err = DecodeIDs(doc[op.Field]); err != nil {
			return err
		}
	}

	return tree.Update(ctx, op.Path, map[string]any{op.Field: union(existing, op.IDs)})
}

func union(a, b []uint) []uint {
	seen := make(map[uint]struct{}, len(a)+len(b))
	out := make([]uint, 0, len(a)+len(b))
	for _, list := range [][]uint{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
