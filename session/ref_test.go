// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/pybridge/lib/testutil"
)

// startOp runs one reference operation in a goroutine so the test body
// can play the companion's side of the exchange.
func startOp(f func() (any, error)) chan runOutcome {
	done := make(chan runOutcome, 1)
	go func() {
		value, err := f()
		done <- runOutcome{value, err}
	}()
	return done
}

func refResult(id string) map[string]any {
	return map[string]any{"t": "ref", "v": id}
}

func TestRefStrGeneratesSnippet(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Str(context.Background()) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret(str(obj))" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if !reflect.DeepEqual(locals["obj"], map[string]any{"t": "ref", "v": "3"}) {
		t.Fatalf("obj local = %v", locals["obj"])
	}
	companion.result(requestID(t, request), "<thing at 0x1>")

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "str returning")
	if outcome.err != nil {
		t.Fatalf("Str: %v", outcome.err)
	}
	if outcome.value != "<thing at 0x1>" {
		t.Fatalf("Str = %v", outcome.value)
	}
}

func TestRefReprGeneratesSnippet(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Repr(context.Background()) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret(repr(obj))" {
		t.Fatalf("generated code = %v", got)
	}
	companion.result(requestID(t, request), "Thing()")
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "repr returning")
	if outcome.err != nil || outcome.value != "Thing()" {
		t.Fatalf("Repr = %v, %v", outcome.value, outcome.err)
	}
}

func TestRefStrRejectsNonString(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Str(context.Background()) })
	request := companion.next()
	companion.result(requestID(t, request), 7)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "str returning")
	if !errors.Is(outcome.err, ErrProtocol) {
		t.Fatalf("Str error = %v, want ErrProtocol", outcome.err)
	}
}

func TestRefDirReturnsNames(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Dir(context.Background()) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret(dir(obj))" {
		t.Fatalf("generated code = %v", got)
	}
	companion.result(requestID(t, request), []any{"append", "clear"})

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "dir returning")
	if outcome.err != nil {
		t.Fatalf("Dir: %v", outcome.err)
	}
	if !reflect.DeepEqual(outcome.value, []string{"append", "clear"}) {
		t.Fatalf("Dir = %v", outcome.value)
	}
}

func TestRefAttrReturnsNewRef(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Attr(context.Background(), "items") })
	request := companion.next()
	if got := request["code"]; got != "pb.ret_ref(getattr(obj, name))" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if locals["name"] != "items" {
		t.Fatalf("name local = %v", locals["name"])
	}
	companion.result(requestID(t, request), refResult("4"))

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "attr returning")
	if outcome.err != nil {
		t.Fatalf("Attr: %v", outcome.err)
	}
	attr, ok := outcome.value.(*Ref)
	if !ok {
		t.Fatalf("Attr = %T, want *Ref", outcome.value)
	}
	if attr.id != "4" {
		t.Fatalf("Attr ref id = %q, want 4", attr.id)
	}
}

func TestRefAttrRejectsPlainResult(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Attr(context.Background(), "items") })
	request := companion.next()
	companion.result(requestID(t, request), 42)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "attr returning")
	if !errors.Is(outcome.err, ErrProtocol) {
		t.Fatalf("Attr error = %v, want ErrProtocol", outcome.err)
	}
}

func TestRefSetAttrSendsValue(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) {
		return nil, r.SetAttr(context.Background(), "count", 10)
	})
	request := companion.next()
	if got := request["code"]; got != "setattr(obj, name, value)" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if locals["name"] != "count" || locals["value"] != 10.0 {
		t.Fatalf("locals = %v", locals)
	}
	companion.result(requestID(t, request), nil)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "setattr returning")
	if outcome.err != nil {
		t.Fatalf("SetAttr: %v", outcome.err)
	}
}

func TestRefCallBuildsPositionalAndKeywordArguments(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) {
		return r.CallWith(context.Background(), []any{1, 2},
			map[string]any{"beta": 20, "alpha": 10})
	})
	request := companion.next()
	if got := request["code"]; got != "pb.ret_ref(obj(a0, a1, alpha=k0, beta=k1))" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if locals["a0"] != 1.0 || locals["a1"] != 2.0 {
		t.Fatalf("positional locals = %v", locals)
	}
	if locals["k0"] != 10.0 || locals["k1"] != 20.0 {
		t.Fatalf("keyword locals = %v", locals)
	}
	companion.result(requestID(t, request), refResult("5"))

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "call returning")
	if outcome.err != nil {
		t.Fatalf("CallWith: %v", outcome.err)
	}
	if outcome.value.(*Ref).id != "5" {
		t.Fatalf("CallWith ref = %v", outcome.value)
	}
}

func TestRefCallWithoutArguments(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Call(context.Background()) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret_ref(obj())" {
		t.Fatalf("generated code = %v", got)
	}
	companion.result(requestID(t, request), refResult("5"))
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "call returning")
	if outcome.err != nil {
		t.Fatalf("Call: %v", outcome.err)
	}
}

func TestRefCallRejectsBadKeywordName(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	_, err := r.CallWith(context.Background(), nil, map[string]any{"not-a-name": 1})
	if err == nil || !strings.Contains(err.Error(), "not a Python identifier") {
		t.Fatalf("CallWith error = %v", err)
	}
	companion.expectNone()
}

func TestRefItemSingleKey(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Item(context.Background(), "config") })
	request := companion.next()
	if got := request["code"]; got != "pb.ret_ref(obj[k0])" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if locals["k0"] != "config" {
		t.Fatalf("key local = %v", locals["k0"])
	}
	companion.result(requestID(t, request), refResult("6"))
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "item returning")
	if outcome.err != nil {
		t.Fatalf("Item: %v", outcome.err)
	}
}

func TestRefItemMultipleKeysFormTuple(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Item(context.Background(), 1, 2) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret_ref(obj[(k0, k1)])" {
		t.Fatalf("generated code = %v", got)
	}
	companion.result(requestID(t, request), refResult("6"))
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "item returning")
	if outcome.err != nil {
		t.Fatalf("Item: %v", outcome.err)
	}
}

func TestRefItemRequiresKeys(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	_, err := r.Item(context.Background())
	if err == nil || !strings.Contains(err.Error(), "at least one key") {
		t.Fatalf("Item error = %v", err)
	}
	companion.expectNone()
}

func TestRefSetItemAssigns(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) {
		return nil, r.SetItem(context.Background(), "fast", "mode")
	})
	request := companion.next()
	if got := request["code"]; got != "obj[k0] = value" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if locals["k0"] != "mode" || locals["value"] != "fast" {
		t.Fatalf("locals = %v", locals)
	}
	companion.result(requestID(t, request), nil)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "setitem returning")
	if outcome.err != nil {
		t.Fatalf("SetItem: %v", outcome.err)
	}
}

func TestRefDelItemDeletes(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) {
		return nil, r.DelItem(context.Background(), "mode")
	})
	request := companion.next()
	if got := request["code"]; got != "del obj[k0]" {
		t.Fatalf("generated code = %v", got)
	}
	companion.result(requestID(t, request), nil)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "delitem returning")
	if outcome.err != nil {
		t.Fatalf("DelItem: %v", outcome.err)
	}
}

func TestRefLenReturnsInt(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	done := startOp(func() (any, error) { return r.Len(context.Background()) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret(len(obj))" {
		t.Fatalf("generated code = %v", got)
	}
	companion.result(requestID(t, request), 17)
	outcome := testutil.RequireReceive(t, done, 5*time.Second, "len returning")
	if outcome.err != nil {
		t.Fatalf("Len: %v", outcome.err)
	}
	if outcome.value != 17 {
		t.Fatalf("Len = %v, want 17", outcome.value)
	}
}

func TestRefReleaseSendsDelrefOnce(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")

	if strings.Contains(r.String(), "released") {
		t.Fatalf("fresh reference reports released: %s", r)
	}
	r.Release()
	notice := companion.next()
	if notice["tag"] != "delref" || notice["ref"] != "3" {
		t.Fatalf("notice = %v, want a delref for 3", notice)
	}

	r.Release()
	companion.expectNone()
	if !strings.Contains(r.String(), "released") {
		t.Fatalf("released reference does not say so: %s", r)
	}
}

func TestRefOperationsAfterReleaseFail(t *testing.T) {
	s, companion := newTestSession(t)
	r := newRef(s, "3")
	r.Release()
	companion.next()

	if _, err := r.Str(context.Background()); err == nil || !strings.Contains(err.Error(), "released") {
		t.Fatalf("Str after release = %v", err)
	}
	if err := r.SetAttr(context.Background(), "x", 1); err == nil || !strings.Contains(err.Error(), "released") {
		t.Fatalf("SetAttr after release = %v", err)
	}
	companion.expectNone()
}

func TestRefOperationsAfterSessionDeathFail(t *testing.T) {
	s, _ := newTestSession(t)
	r := newRef(s, "3")
	s.teardown()

	if _, err := r.Str(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Str after session death = %v, want ErrClosed", err)
	}
	// Release on a dead session stays silent: the companion took every
	// referent down with it.
	r.Release()
}

func TestNewRefMaterializesValue(t *testing.T) {
	s, companion := newTestSession(t)

	done := startOp(func() (any, error) { return s.NewRef(context.Background(), 42) })
	request := companion.next()
	if got := request["code"]; got != "pb.ret_ref(value)" {
		t.Fatalf("generated code = %v", got)
	}
	locals := request["locals"].(map[string]any)
	if locals["value"] != 42.0 {
		t.Fatalf("value local = %v", locals["value"])
	}
	companion.result(requestID(t, request), refResult("9"))

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "newref returning")
	if outcome.err != nil {
		t.Fatalf("NewRef: %v", outcome.err)
	}
	if outcome.value.(*Ref).id != "9" {
		t.Fatalf("NewRef = %v", outcome.value)
	}
}
