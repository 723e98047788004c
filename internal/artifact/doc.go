// Package artifact persists compiled agent programs between runs and caches
// per-vendor deep-dive results.
//
// Programs live under a canonical path derived from the logical path the
// caller asks for. Loads probe an ordered list of candidate paths so files
// written under older naming schemes are still found; a miss is reported as
// (nil, false) and is never an error. LoadOrBuild is the one shared
// load, build, optimize, save chain every cached program goes through.
package artifact
