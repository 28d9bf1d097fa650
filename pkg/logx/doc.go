// Package logx is a thin value-type wrapper over zerolog.
//
// A Service owns the sinks (readable console, JSON file) and can swap them
// on config reload; Loggers taken from it pick up the new sinks without
// being rebuilt.
package logx
