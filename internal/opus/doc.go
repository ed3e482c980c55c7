// Package opus transcodes uploaded clips to Ogg Opus and measures them.
//
// Clips are stored as plain Ogg Opus files encoded with 20ms frames, so the
// clip duration is the number of audio packets times the frame duration.
package opus
