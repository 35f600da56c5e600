package orders

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusApproved, StatusDelivered, true},
		{StatusPending, StatusDelivered, false},
		{StatusApproved, StatusApproved, false},
		{StatusDelivered, StatusPending, false},
		{StatusDelivered, StatusApproved, false},
		{StatusApproved, StatusPending, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, name := range []string{"pending", "approved", "delivered"} {
		s, ok := ParseStatus(name)
		if !ok {
			t.Fatalf("ParseStatus(%q) not ok", name)
		}
		if s.String() != name {
			t.Errorf("round trip %q -> %s", name, s)
		}
	}
	if _, ok := ParseStatus("cancelled"); ok {
		t.Error("cancelled must not parse: cancelled orders are deleted, not listed")
	}
	if Status(7).Valid() {
		t.Error("Status(7) must be invalid")
	}
}
