////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package relay

import (
	"encoding/json"
	"testing"
)

// Tests that ComputeID is stable for the same content and changes when any
// hashed field changes.
func TestEvent_ComputeID(t *testing.T) {
	ev := &Event{
		PubKey:    "aabb",
		CreatedAt: 1700000000,
		Kind:      EnvelopeKind,
		Tags:      [][]string{{RecipientTag, "ccdd"}},
		Content:   "hello",
	}

	id1 := ev.ComputeID()
	id2 := ev.ComputeID()
	if id1 != id2 {
		t.Errorf("ComputeID is not stable.\nfirst:  %s\nsecond: %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Errorf("ComputeID returned %d hex chars, expected 64", len(id1))
	}

	ev.Content = "hello!"
	if ev.ComputeID() == id1 {
		t.Error("ComputeID did not change when the content changed.")
	}
}

// Tests TagValue with present, absent, and malformed tags.
func TestEvent_TagValue(t *testing.T) {
	ev := &Event{Tags: [][]string{
		{"short"},
		{RecipientTag, "first"},
		{RecipientTag, "second"},
		{EphemeralTag, "keybytes"},
	}}

	if v := ev.TagValue(RecipientTag); v != "first" {
		t.Errorf("TagValue returned the wrong value."+
			"\nexpected: %s\nreceived: %s", "first", v)
	}
	if v := ev.TagValue(EphemeralTag); v != "keybytes" {
		t.Errorf("TagValue returned the wrong value."+
			"\nexpected: %s\nreceived: %s", "keybytes", v)
	}
	if v := ev.TagValue("missing"); v != "" {
		t.Errorf("TagValue returned %q for a missing tag.", v)
	}
}

// Tests that ParseFrame decodes an EVENT frame.
func TestParseFrame_Event(t *testing.T) {
	raw := `["EVENT","sub1",{"id":"abc","pubkey":"def","created_at":5,` +
		`"kind":1059,"tags":[["p","xyz"]],"content":"ct","sig":"sg"}]`

	f, err := ParseFrame([]byte(raw))
	if err != nil {
		t.Fatalf("ParseFrame failed: %+v", err)
	}
	if f.Type != FrameEvent {
		t.Errorf("Wrong frame type.\nexpected: %d\nreceived: %d",
			FrameEvent, f.Type)
	}
	if f.SubID != "sub1" {
		t.Errorf("Wrong sub ID.\nexpected: %s\nreceived: %s", "sub1", f.SubID)
	}
	if f.Event == nil || f.Event.ID != "abc" || f.Event.Kind != 1059 {
		t.Errorf("Wrong event body: %+v", f.Event)
	}
}

// Tests that ParseFrame decodes OK frames with and without a reason.
func TestParseFrame_OK(t *testing.T) {
	f, err := ParseFrame([]byte(`["OK","evid",true,""]`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %+v", err)
	}
	if f.Type != FrameOK || !f.OK || f.EventID != "evid" {
		t.Errorf("Wrong OK frame: %+v", f)
	}

	f, err = ParseFrame([]byte(`["OK","evid",false,"blocked: spam"]`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %+v", err)
	}
	if f.OK || f.Reason != "blocked: spam" {
		t.Errorf("Wrong OK rejection frame: %+v", f)
	}

	f, err = ParseFrame([]byte(`["OK","evid",true]`))
	if err != nil {
		t.Fatalf("ParseFrame failed on a 3-element OK: %+v", err)
	}
	if !f.OK {
		t.Errorf("Wrong 3-element OK frame: %+v", f)
	}
}

// Tests that ParseFrame decodes EOSE and NOTICE frames.
func TestParseFrame_EOSE_Notice(t *testing.T) {
	f, err := ParseFrame([]byte(`["EOSE","sub2"]`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %+v", err)
	}
	if f.Type != FrameEOSE || f.SubID != "sub2" {
		t.Errorf("Wrong EOSE frame: %+v", f)
	}

	f, err = ParseFrame([]byte(`["NOTICE","slow down"]`))
	if err != nil {
		t.Fatalf("ParseFrame failed: %+v", err)
	}
	if f.Type != FrameNotice || f.Notice != "slow down" {
		t.Errorf("Wrong NOTICE frame: %+v", f)
	}
}

// Tests that ParseFrame rejects garbage, empty arrays, unknown labels, and
// truncated frames.
func TestParseFrame_Invalid(t *testing.T) {
	bad := []string{
		`not json`,
		`{}`,
		`[]`,
		`[5]`,
		`["AUTH","x"]`,
		`["EVENT","sub"]`,
		`["OK","evid"]`,
		`["EOSE"]`,
	}
	for _, raw := range bad {
		if _, err := ParseFrame([]byte(raw)); err == nil {
			t.Errorf("ParseFrame accepted %q.", raw)
		}
	}
}

// Tests that a Filter's zero fields are omitted from its wire form.
func TestFilter_Encoding(t *testing.T) {
	data, err := json.Marshal(Filter{Kinds: []int{EnvelopeKind}})
	if err != nil {
		t.Fatalf("Marshal failed: %+v", err)
	}
	if string(data) != `{"kinds":[1059]}` {
		t.Errorf("Unexpected filter encoding: %s", data)
	}
}
