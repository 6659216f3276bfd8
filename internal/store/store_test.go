package store

import "testing"

func TestChunked(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want []span
	}{
		{"empty", 0, nil},
		{"single partial", 7, []span{{0, 7}}},
		{"exact batch", 100, []span{{0, 100}}},
		{"one over", 101, []span{{0, 100}, {100, 101}}},
		{"several", 250, []span{{0, 100}, {100, 200}, {200, 250}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunked(tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d spans, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}
