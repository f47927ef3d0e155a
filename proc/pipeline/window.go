package pipeline

import "fmt"

// Window selects part of a track in seconds. Length 0 plays to the end.
type Window struct {
	Start  int
	Length int
}

// Normalize clamps w to a track of the given duration. A start at or past
// the end selects the whole track; a window running past the end is cut.
func (w Window) Normalize(duration int) Window {
	if duration <= 0 {
		return Window{}
	}

	start, length := max(w.Start, 0), max(w.Length, 0)
	if start >= duration {
		return Window{Start: 0, Length: duration}
	}
	if length == 0 || start+length > duration {
		length = duration - start
	}
	return Window{Start: start, Length: length}
}

func (w Window) String() string {
	return fmt.Sprintf("[%ds +%ds]", w.Start, w.Length)
}
