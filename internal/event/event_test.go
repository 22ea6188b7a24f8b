package event

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	e := Event{
		V:         1,
		TS:        1700000000.25,
		Type:      TypeToolCall,
		SessionID: "sess-1",
		ID:        "file_watcher:42",
		Tool:      "Bash",
		Phase:     PhaseStart,
		Command:   "go test ./...",
		Metadata:  map[string]any{"cwd": "/tmp"},
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !reflect.DeepEqual(e, got) {
		t.Errorf("round trip mismatch:\n  in:  %+v\n  out: %+v", e, got)
	}
}

func TestUnknownFieldsPreserved(t *testing.T) {
	raw := `{"v":1,"ts":2.0,"type":"file_touch","session_id":"s","path":"a.go","kind":"read","future_field":{"x":1},"ingest_path":"http"}`

	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(e.Extra) != 2 {
		t.Fatalf("Extra = %v, want 2 preserved fields", e.Extra)
	}

	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal merged: %v", err)
	}
	if _, ok := m["future_field"]; !ok {
		t.Error("future_field lost in round trip")
	}
	if m["ingest_path"] != "http" {
		t.Errorf("ingest_path = %v, want %q", m["ingest_path"], "http")
	}
	if m["path"] != "a.go" {
		t.Errorf("path = %v, want %q", m["path"], "a.go")
	}
}

func TestExtraNeverShadowsKnownFields(t *testing.T) {
	e := Event{
		V: 1, TS: 1, Type: TypeFileTouch, SessionID: "s",
		Path: "real.go", Kind: KindRead,
		Extra: map[string]json.RawMessage{
			"path":  json.RawMessage(`"fake.go"`),
			"other": json.RawMessage(`true`),
		},
	}

	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["path"] != "real.go" {
		t.Errorf("known field overwritten by Extra: path = %v", m["path"])
	}
	if m["other"] != true {
		t.Errorf("other = %v, want true", m["other"])
	}
}

func TestCanonicalID(t *testing.T) {
	if got := CanonicalID(0); got != "file_watcher:0" {
		t.Errorf("CanonicalID(0) = %q", got)
	}
	if got := CanonicalID(1234); got != "file_watcher:1234" {
		t.Errorf("CanonicalID(1234) = %q", got)
	}
}

func TestOffsetOf(t *testing.T) {
	tests := []struct {
		id     string
		offset int64
		ok     bool
	}{
		{"file_watcher:0", 0, true},
		{"file_watcher:987", 987, true},
		{"file_watcher:42:gap", 42, true},
		{"unknown", 0, false},
		{"", 0, false},
		{"file_watcher:-5", 0, false},
		{"file_watcher:abc", 0, false},
	}
	for _, tt := range tests {
		off, ok := OffsetOf(tt.id)
		if ok != tt.ok || off != tt.offset {
			t.Errorf("OffsetOf(%q) = (%d, %v), want (%d, %v)", tt.id, off, ok, tt.offset, tt.ok)
		}
	}
}

func TestCompareIDs(t *testing.T) {
	if CompareIDs("file_watcher:9", "file_watcher:10") >= 0 {
		t.Error("expected numeric comparison, not lexical")
	}
	if CompareIDs("file_watcher:10", "file_watcher:10") != 0 {
		t.Error("equal ids should compare equal")
	}
	if CompareIDs("file_watcher:11", "file_watcher:10") <= 0 {
		t.Error("expected 11 > 10")
	}
}

func TestGapID(t *testing.T) {
	id := GapID("file_watcher:500")
	if id != "file_watcher:500:gap" {
		t.Errorf("GapID = %q", id)
	}
	if !IsGapID(id) {
		t.Error("IsGapID should report true for gap ids")
	}
	if IsGapID("file_watcher:500") {
		t.Error("IsGapID should report false for plain ids")
	}
	if off, ok := OffsetOf(id); !ok || off != 500 {
		t.Errorf("gap id offset = (%d, %v), want (500, true)", off, ok)
	}
}

func TestNewGapMarker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewGapMarker("file_watcher:900", 7, "file_watcher:100", 900, now)

	if m.Type != TypeUnknown {
		t.Errorf("type = %q, want unknown", m.Type)
	}
	if m.GapType != GapTypeDropped {
		t.Errorf("gap_type = %q", m.GapType)
	}
	if m.ID != "file_watcher:900:gap" {
		t.Errorf("id = %q", m.ID)
	}
	if m.DroppedCount != 7 || m.FromEventID != "file_watcher:100" || m.ToOffset != 900 {
		t.Errorf("marker fields = %+v", m)
	}
}

func TestNewGapMarkerUnknownWatermark(t *testing.T) {
	m := NewGapMarker("file_watcher:10", 1, "", time.Now().Unix(), time.Now())
	if m.FromEventID != "unknown" {
		t.Errorf("from_event_id = %q, want unknown", m.FromEventID)
	}
}

func validEvent() Event {
	return Event{
		V:         1,
		TS:        1700000000,
		Type:      TypeFileTouch,
		SessionID: "s",
		Path:      "main.go",
		Kind:      KindRead,
	}
}

func TestValidateOK(t *testing.T) {
	now := time.Unix(1700000100, 0)
	if errs := Validate(validEvent(), now); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestValidate(t *testing.T) {
	now := time.Unix(1700000100, 0)
	longStr := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	tests := []struct {
		name   string
		mutate func(*Event)
		field  string
	}{
		{"bad version", func(e *Event) { e.V = 2 }, "v"},
		{"negative ts", func(e *Event) { e.TS = -1 }, "ts"},
		{"future ts", func(e *Event) { e.TS = float64(now.Unix()) + 120 }, "ts"},
		{"missing session", func(e *Event) { e.SessionID = "" }, "session_id"},
		{"long session", func(e *Event) { e.SessionID = longStr(257) }, "session_id"},
		{"bad id", func(e *Event) { e.ID = "nonsense" }, "id"},
		{"missing path", func(e *Event) { e.Path = "" }, "path"},
		{"long path", func(e *Event) { e.Path = longStr(4097) }, "path"},
		{"bad kind", func(e *Event) { e.Kind = "peek" }, "kind"},
		{"bad type", func(e *Event) { e.Type = "mystery" }, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(&e)
			errs := Validate(e, now)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, fe := range errs {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %q, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidateVariants(t *testing.T) {
	now := time.Unix(1700000100, 0)

	tool := Event{V: 1, TS: 1, Type: TypeToolCall, SessionID: "s", Tool: "Bash", Phase: PhaseEnd}
	if errs := Validate(tool, now); len(errs) != 0 {
		t.Errorf("tool_call: %v", errs)
	}

	tool.Phase = "middle"
	if errs := Validate(tool, now); len(errs) == 0 {
		t.Error("expected phase error")
	}

	sess := Event{V: 1, TS: 1, Type: TypeSession, SessionID: "s", State: SessionInterrupt}
	if errs := Validate(sess, now); len(errs) != 0 {
		t.Errorf("session: %v", errs)
	}

	agent := Event{V: 1, TS: 1, Type: TypeAgentState, SessionID: "s", State: "sleeping"}
	if errs := Validate(agent, now); len(errs) == 0 {
		t.Error("expected agent state error")
	}

	unk := Event{V: 1, TS: 1, Type: TypeUnknown, SessionID: "s", PayloadKeys: make([]string, 101)}
	if errs := Validate(unk, now); len(errs) == 0 {
		t.Error("expected payload_keys error")
	}
}

func TestValidateMetadataSize(t *testing.T) {
	now := time.Unix(1700000100, 0)
	e := validEvent()
	big := make([]byte, 10001)
	for i := range big {
		big[i] = 'a'
	}
	e.Metadata = map[string]any{"blob": string(big)}

	errs := Validate(e, now)
	if len(errs) == 0 {
		t.Fatal("expected metadata size error")
	}
	if errs[0].Field != "metadata" {
		t.Errorf("field = %q, want metadata", errs[0].Field)
	}
}

func TestValidatePure(t *testing.T) {
	e := validEvent()
	e.Extra = map[string]json.RawMessage{"x": json.RawMessage(`1`)}
	before, _ := json.Marshal(e)
	_ = Validate(e, time.Now())
	after, _ := json.Marshal(e)
	if string(before) != string(after) {
		t.Error("Validate mutated the event")
	}
}
