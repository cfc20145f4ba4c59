package service

import "testing"

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		hasAttachment bool
		want          int64
	}{
		{"plain chat", "hello there", false, 50},
		{"draw keyword", "draw a cat", false, 200},
		{"case insensitive", "Create Image of a dog", false, 200},
		{"vietnamese image keyword", "vẽ con mèo", false, 200},
		{"video keyword", "make a short video", false, 300},
		{"image beats video", "draw a video frame", false, 200},
		{"attachment analysis", "what is this?", true, 200},
		{"video beats attachment", "turn this into a movie", true, 300},
		{"attachment without text", "", true, 200},
		{"empty text", "", false, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateCost(tt.text, tt.hasAttachment); got != tt.want {
				t.Errorf("EstimateCost(%q, %v): got %d, want %d", tt.text, tt.hasAttachment, got, tt.want)
			}
		})
	}
}

func TestEstimateCostIsPure(t *testing.T) {
	first := EstimateCost("draw a cat", false)
	for range 10 {
		if got := EstimateCost("draw a cat", false); got != first {
			t.Fatalf("EstimateCost changed between calls: got %d, want %d", got, first)
		}
	}
}
