package commsutil

import "testing"

func TestBuildSubjects(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   Subjects
	}{
		{"default", "", Subjects{"modules.execute", "modules.query", "modules.instantiate"}},
		{"custom", "chain.a", Subjects{"chain.a.execute", "chain.a.query", "chain.a.instantiate"}},
		{"trailing dot", "mm.", Subjects{"mm.execute", "mm.query", "mm.instantiate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildSubjects(tt.prefix)
			if got != tt.want {
				t.Errorf("BuildSubjects(%q) = %+v, want %+v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestBuildEventSubject(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		eventType string
		want      string
	}{
		{"default prefix", "", "counter_reset", "modules.events.counter_reset"},
		{"custom prefix", "ev", "kv_set", "ev.kv_set"},
		{"wildcards replaced", "", "a*b>c d", "modules.events.a_b_c_d"},
		{"empty type", "", "", "modules.events._"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildEventSubject(tt.prefix, tt.eventType)
			if got != tt.want {
				t.Errorf("BuildEventSubject(%q, %q) = %q, want %q", tt.prefix, tt.eventType, got, tt.want)
			}
		})
	}
}

func TestBuildOutboundSubject(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		target string
		want   string
	}{
		{"dotted target", "", "counter.reset", "modules.outbound.counter.reset"},
		{"custom prefix", "out.", "bank", "out.bank"},
		{"leading dot trimmed", "", ".x.", "modules.outbound.x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildOutboundSubject(tt.prefix, tt.target)
			if got != tt.want {
				t.Errorf("BuildOutboundSubject(%q, %q) = %q, want %q", tt.prefix, tt.target, got, tt.want)
			}
		})
	}
}
