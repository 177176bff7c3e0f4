// Package viz draws a running particle simulation in the terminal.
//
// [Model] is a Bubble Tea model that steps a particle store on every tick
// and plots the snapshot on a braille [Canvas], with an energy chart and
// run statistics beside it.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	S     - Single step while paused
//	+/-   - Double or halve steps per frame
//	T     - Cycle color themes
//	G     - Toggle GIF recording
//	?     - Show help overlay
package viz
