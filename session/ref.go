// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"
)

// Ref is a handle on a value living in the companion. Operations on it
// are synchronous round-trips: each one runs a small snippet in the
// companion with the referent (and any arguments) passed as locals.
//
// The companion retains the referent until the handle is released.
// Release it explicitly when done; a handle that becomes unreachable
// without Release is released by a GC cleanup, best effort. A released
// handle rejects every further operation.
//
// A Ref may only be used with the session that produced it.
type Ref struct {
	session *Session
	id      string

	released atomic.Bool
	cleanup  runtime.Cleanup
}

// refReferent carries what the GC cleanup needs without keeping the
// Ref itself alive.
type refReferent struct {
	session *Session
	id      string
}

// newRef wires a handle to its companion-side referent.
func newRef(s *Session, id string) *Ref {
	r := &Ref{session: s, id: id}
	r.cleanup = runtime.AddCleanup(r, func(referent refReferent) {
		referent.session.sendDelref(referent.id)
	}, refReferent{session: s, id: id})
	return r
}

// sendDelref is the fire-and-forget release notice. A dead session is
// fine: the companion process going away released everything with it.
func (s *Session) sendDelref(id string) {
	if !s.IsOpen() {
		return
	}
	_ = s.send(delrefNotice{Tag: tagDelref, Ref: id})
}

// Release frees the companion-side referent. Idempotent, best effort,
// never an error. After Release every other operation on the handle
// fails.
func (r *Ref) Release() {
	if r.released.Swap(true) {
		return
	}
	r.cleanup.Stop()
	r.session.sendDelref(r.id)
}

// String identifies the handle for logs. Local and non-blocking; use
// Str for the referent's own str().
func (r *Ref) String() string {
	state := ""
	if r.released.Load() {
		state = ", released"
	}
	return fmt.Sprintf("ref(%s, session %p%s)", r.id, r.session, state)
}

// use validates the handle before an operation builds a message
// around it.
func (r *Ref) use() error {
	if r.released.Load() {
		return fmt.Errorf("reference %s is released", r.id)
	}
	return nil
}

// Str returns str() of the referent.
func (r *Ref) Str(ctx context.Context) (string, error) {
	return r.stringOp(ctx, "pb.ret(str(obj))")
}

// Repr returns repr() of the referent.
func (r *Ref) Repr(ctx context.Context) (string, error) {
	return r.stringOp(ctx, "pb.ret(repr(obj))")
}

func (r *Ref) stringOp(ctx context.Context, code string) (string, error) {
	if err := r.use(); err != nil {
		return "", err
	}
	v, err := r.session.Run(ctx, code, "", map[string]any{"obj": r})
	if err != nil {
		return "", err
	}
	text, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("result is %T, want string: %w", v, ErrProtocol)
	}
	return text, nil
}

// Dir lists the referent's accessible member names.
func (r *Ref) Dir(ctx context.Context) ([]string, error) {
	if err := r.use(); err != nil {
		return nil, err
	}
	v, err := r.session.Run(ctx, "pb.ret(dir(obj))", "", map[string]any{"obj": r})
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("dir result is %T, want a list: %w", v, ErrProtocol)
	}
	names := make([]string, len(items))
	for i, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("dir entry %d is %T, want string: %w", i, item, ErrProtocol)
		}
		names[i] = name
	}
	return names, nil
}

// Attr returns the named attribute as a new reference. Attribute
// values are never unwrapped, whatever their type; unwrap with Str,
// Len, or a Run call when the value itself is wanted.
func (r *Ref) Attr(ctx context.Context, name string) (*Ref, error) {
	if err := r.use(); err != nil {
		return nil, err
	}
	return r.session.runExpectRef(ctx, "pb.ret_ref(getattr(obj, name))",
		map[string]any{"obj": r, "name": name})
}

// SetAttr assigns the named attribute.
func (r *Ref) SetAttr(ctx context.Context, name string, value any) error {
	if err := r.use(); err != nil {
		return err
	}
	_, err := r.session.Run(ctx, "setattr(obj, name, value)", "",
		map[string]any{"obj": r, "name": name, "value": value})
	return err
}

// Call invokes the referent with positional arguments and returns the
// result as a new reference.
func (r *Ref) Call(ctx context.Context, args ...any) (*Ref, error) {
	return r.CallWith(ctx, args, nil)
}

// CallWith invokes the referent with positional and keyword
// arguments. Keyword names are spliced into the generated call site
// and must be valid Python identifiers.
func (r *Ref) CallWith(ctx context.Context, args []any, kwargs map[string]any) (*Ref, error) {
	if err := r.use(); err != nil {
		return nil, err
	}

	locals := map[string]any{"obj": r}
	var call strings.Builder
	call.WriteString("pb.ret_ref(obj(")
	for i, arg := range args {
		name := fmt.Sprintf("a%d", i)
		locals[name] = arg
		if i > 0 {
			call.WriteString(", ")
		}
		call.WriteString(name)
	}
	for i, key := range slices.Sorted(maps.Keys(kwargs)) {
		if !validIdentifier(key) {
			return nil, fmt.Errorf("keyword argument name %q is not a Python identifier", key)
		}
		name := fmt.Sprintf("k%d", i)
		locals[name] = kwargs[key]
		if len(args) > 0 || i > 0 {
			call.WriteString(", ")
		}
		call.WriteString(key)
		call.WriteString("=")
		call.WriteString(name)
	}
	call.WriteString("))")
	return r.session.runExpectRef(ctx, call.String(), locals)
}

// Item returns the subscripted element as a new reference. More than
// one key indexes with a single tuple key.
func (r *Ref) Item(ctx context.Context, keys ...any) (*Ref, error) {
	if err := r.use(); err != nil {
		return nil, err
	}
	locals := map[string]any{"obj": r}
	expr, err := subscript(locals, keys)
	if err != nil {
		return nil, err
	}
	return r.session.runExpectRef(ctx, "pb.ret_ref("+expr+")", locals)
}

// SetItem assigns the subscripted element.
func (r *Ref) SetItem(ctx context.Context, value any, keys ...any) error {
	if err := r.use(); err != nil {
		return err
	}
	locals := map[string]any{"obj": r, "value": value}
	expr, err := subscript(locals, keys)
	if err != nil {
		return err
	}
	_, err = r.session.Run(ctx, expr+" = value", "", locals)
	return err
}

// DelItem deletes the subscripted element.
func (r *Ref) DelItem(ctx context.Context, keys ...any) error {
	if err := r.use(); err != nil {
		return err
	}
	locals := map[string]any{"obj": r}
	expr, err := subscript(locals, keys)
	if err != nil {
		return err
	}
	_, err = r.session.Run(ctx, "del "+expr, "", locals)
	return err
}

// Len returns len() of the referent.
func (r *Ref) Len(ctx context.Context) (int, error) {
	if err := r.use(); err != nil {
		return 0, err
	}
	v, err := r.session.Run(ctx, "pb.ret(len(obj))", "", map[string]any{"obj": r})
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("len result is %T, want int: %w", v, ErrProtocol)
	}
	return n, nil
}

// NewRef materializes value in the companion and returns a reference
// to it. value goes through the normal marshalling rules, nested
// containers and references included.
func (s *Session) NewRef(ctx context.Context, value any) (*Ref, error) {
	return s.runExpectRef(ctx, "pb.ret_ref(value)", map[string]any{"value": value})
}

// runExpectRef runs code whose pb.ret_ref result must come back as a
// reference.
func (s *Session) runExpectRef(ctx context.Context, code string, locals map[string]any) (*Ref, error) {
	v, err := s.Run(ctx, code, "", locals)
	if err != nil {
		return nil, err
	}
	ref, ok := v.(*Ref)
	if !ok {
		return nil, fmt.Errorf("result is %T, want a reference: %w", v, ErrProtocol)
	}
	return ref, nil
}

// subscript builds "obj[k0]" or "obj[(k0, k1)]" and binds the keys
// into locals. Multiple keys form one tuple key, matching Python's
// multi-index subscription.
func subscript(locals map[string]any, keys []any) (string, error) {
	if len(keys) == 0 {
		return "", errors.New("at least one key is required")
	}
	names := make([]string, len(keys))
	for i, key := range keys {
		name := fmt.Sprintf("k%d", i)
		locals[name] = key
		names[i] = name
	}
	if len(names) == 1 {
		return "obj[" + names[0] + "]", nil
	}
	return "obj[(" + strings.Join(names, ", ") + ")]", nil
}

// validIdentifier matches the ASCII subset of Python identifiers,
// which covers keyword argument names worth generating.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
