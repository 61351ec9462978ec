package port

import "testing"

func TestBundleRoundTrip(t *testing.T) {
	in := []Message{
		{Code: 1, TargetHandler: 10, Payload: []byte("hello")},
		{Code: 2, TargetHandler: 11, Payload: nil},
		{Code: 3, TargetHandler: 12, Payload: []byte{1, 2, 3, 4}},
	}
	out, err := DecodeBundle(EncodeBundle(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d messages, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Code != in[i].Code || out[i].TargetHandler != in[i].TargetHandler {
			t.Fatalf("frame %d mismatch: %+v vs %+v", i, out[i], in[i])
		}
	}
}

func TestBundleMalformedFrameAbortsOnlyCurrentBundle(t *testing.T) {
	good := EncodeBundle([]Message{{Code: 1, TargetHandler: 1, Payload: []byte("ok")}})
	// Corrupt a second frame's length field to exceed the remaining payload.
	bad := append(good, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0)
	out, err := DecodeBundle(bad)
	if err == nil {
		t.Fatal("expected decode error on malformed trailing frame")
	}
	if len(out) != 1 {
		t.Fatalf("expected the well-formed leading frame to survive, got %d", len(out))
	}
}

func TestSendTimeoutOnFullQueue(t *testing.T) {
	p := New(1)
	if err := p.Send(Message{Code: 1}, 0); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := p.Send(Message{Code: 2}, 0); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout on full queue, got %v", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	p := New(1)
	p.Close()
	if err := p.Send(Message{Code: 1}, 0); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
