// Package buffer holds the three playground source buffers and their
// persisted form.
//
// A Set is the markup, style and script text the user is editing. A
// SavedSession is the single record written to storage on every change:
//
//	{"html": "...", "css": "...", "js": "...", "timestamp": "2026-10-19T12:00:00Z"}
//
// The Store reads and writes that record under one well-known key. Reading a
// missing or malformed record is not an error: it yields three empty buffers.
package buffer
