package live

import "testing"

func TestTurnWindow_EvictsOldest(t *testing.T) {
	w := newTurnWindow(3)

	for _, text := range []string{"a", "b", "c", "d"} {
		w.Append(Turn{Role: "user", Text: text})
	}

	if w.Len() != 3 {
		t.Fatalf("Len = %d, want 3", w.Len())
	}
	want := []string{"b", "c", "d"}
	for i, turn := range w.Snapshot() {
		if turn.Text != want[i] {
			t.Errorf("turns[%d] = %q, want %q", i, turn.Text, want[i])
		}
	}
}

func TestTurnWindow_Recent(t *testing.T) {
	w := newTurnWindow(5)
	for _, text := range []string{"a", "b", "c"} {
		w.Append(Turn{Text: text})
	}

	tests := []struct {
		n    int
		want []string
	}{
		{0, nil},
		{2, []string{"b", "c"}},
		{10, []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		got := w.Recent(tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Recent(%d) len = %d, want %d", tt.n, len(got), len(tt.want))
			continue
		}
		for i, turn := range got {
			if turn.Text != tt.want[i] {
				t.Errorf("Recent(%d)[%d] = %q, want %q", tt.n, i, turn.Text, tt.want[i])
			}
		}
	}
}

func TestTurnWindow_Clear(t *testing.T) {
	w := newTurnWindow(2)
	w.Append(Turn{Text: "a"})
	w.Clear()
	if w.Len() != 0 {
		t.Errorf("Len after clear = %d, want 0", w.Len())
	}
}

func TestTurnWindow_SnapshotIsCopy(t *testing.T) {
	w := newTurnWindow(2)
	w.Append(Turn{Text: "a"})

	snap := w.Snapshot()
	snap[0].Text = "mutated"

	if w.Snapshot()[0].Text != "a" {
		t.Error("mutating a snapshot must not affect the window")
	}
}
