package canonical_test

import (
	"encoding/json"
	"testing"

	"github.com/Kaaval/Main/evidence-ledger/internal/canonical"
)

func TestCanonicalSortedKeys(t *testing.T) {
	a := map[string]interface{}{
		"officer":    "SI Rao",
		"caseId":     "CASE-1",
		"evidenceId": nil,
	}
	b := map[string]interface{}{
		"evidenceId": nil,
		"caseId":     "CASE-1",
		"officer":    "SI Rao",
	}

	ca, err := canonical.MarshalCanonical(a)
	if err != nil {
		t.Fatalf("canonical.MarshalCanonical(a) error: %v", err)
	}
	cb, err := canonical.MarshalCanonical(b)
	if err != nil {
		t.Fatalf("canonical.MarshalCanonical(b) error: %v", err)
	}

	if string(ca) != string(cb) {
		t.Fatalf("canonical outputs differ:\nA: %s\nB: %s", ca, cb)
	}
	want := `{"caseId":"CASE-1","evidenceId":null,"officer":"SI Rao"}`
	if string(ca) != want {
		t.Fatalf("unexpected canonical form: %s", ca)
	}
}

func TestCanonicalNestedAndStructs(t *testing.T) {
	type detail struct {
		Title string `json:"title"`
		Hash  string `json:"hash"`
	}
	in := map[string]interface{}{
		"list":   []interface{}{3, 2, 1},
		"num":    json.Number("123.45"),
		"detail": detail{Title: "<seized>", Hash: "ab"},
		"bool":   true,
	}

	c, err := canonical.MarshalCanonical(in)
	if err != nil {
		t.Fatalf("canonical.MarshalCanonical error: %v", err)
	}
	want := `{"bool":true,"detail":{"hash":"ab","title":"<seized>"},"list":[3,2,1],"num":123.45}`
	if string(c) != want {
		t.Fatalf("unexpected canonical form:\n got %s\nwant %s", c, want)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(c, &out); err != nil {
		t.Fatalf("canonical output is not valid JSON: %v", err)
	}
}
