// Package conversation defines the conversation phase model and the legal
// transitions between phases. It is pure data plus transition rules and
// performs no I/O.
package conversation
