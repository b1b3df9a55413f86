package runtime

import "testing"

func TestParseAddress(t *testing.T) {
    cases := []struct {
        in      string
        want    Address
        wantErr bool
    }{
        {"clstr://demo@10.0.0.1:2552", Address{System: "demo", Host: "10.0.0.1", Port: 2552}, false},
        {"10.0.0.1:2552", Address{Host: "10.0.0.1", Port: 2552}, false},
        {"clstr://demo@[::1]:2552", Address{System: "demo", Host: "::1", Port: 2552}, false},
        {"clstr://@host:2552", Address{}, true},
        {"clstr://demo@host", Address{}, true},
        {"http://demo@host:2552", Address{}, true},
        {"host:notaport", Address{}, true},
        {"", Address{}, true},
    }
    for _, c := range cases {
        got, err := ParseAddress(c.in)
        if c.wantErr {
            if err == nil {
                t.Fatalf("ParseAddress(%q): expected error, got %v", c.in, got)
            }
            continue
        }
        if err != nil {
            t.Fatalf("ParseAddress(%q): %v", c.in, err)
        }
        if got != c.want {
            t.Fatalf("ParseAddress(%q) = %#v, want %#v", c.in, got, c.want)
        }
    }
}

func TestAddressStringRoundTrip(t *testing.T) {
    a := Address{System: "demo", Host: "node-1.internal", Port: 2552}
    s := a.String()
    if s != "clstr://demo@node-1.internal:2552" {
        t.Fatalf("unexpected string form: %q", s)
    }
    back, err := ParseAddress(s)
    if err != nil {
        t.Fatalf("round-trip parse: %v", err)
    }
    if back != a {
        t.Fatalf("round-trip mismatch: got %#v want %#v", back, a)
    }
    if got := a.HostPort(); got != "node-1.internal:2552" {
        t.Fatalf("HostPort = %q", got)
    }
}

func TestOlderThanTotalOrder(t *testing.T) {
    older := Member{Address: Address{System: "demo", Host: "b", Port: 1}, StartedAt: 100}
    newer := Member{Address: Address{System: "demo", Host: "a", Port: 1}, StartedAt: 200}
    if !older.OlderThan(newer) || newer.OlderThan(older) {
        t.Fatalf("start time must dominate ordering")
    }
    // Equal start times fall back to address string.
    tieA := Member{Address: Address{System: "demo", Host: "a", Port: 1}, StartedAt: 100}
    tieB := Member{Address: Address{System: "demo", Host: "b", Port: 1}, StartedAt: 100}
    if !tieA.OlderThan(tieB) || tieB.OlderThan(tieA) {
        t.Fatalf("address tie-break must be stable")
    }
}

func TestMemberStatusText(t *testing.T) {
    for st, name := range statusNames {
        b, err := st.MarshalText()
        if err != nil || string(b) != name {
            t.Fatalf("marshal %v: got %q err %v", st, b, err)
        }
        var back MemberStatus
        if err := back.UnmarshalText(b); err != nil || back != st {
            t.Fatalf("unmarshal %q: got %v err %v", b, back, err)
        }
    }
    var s MemberStatus
    if err := s.UnmarshalText([]byte("bogus")); err == nil {
        t.Fatalf("expected error for unknown status")
    }
}
