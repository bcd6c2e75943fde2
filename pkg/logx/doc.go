// Package logx wraps zerolog for greetbot.
//
// Stdout is human readable by default (logging.format: json switches it),
// the optional file sink is JSON lines, and level and sinks can be swapped
// at runtime on config reload.
package logx
