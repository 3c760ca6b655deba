// Package content knows the shapes of the dashboard's data files: which
// names hold entry lists, which hold documents, what an absent file
// defaults to, and how entries reference each other across files.
package content

import (
	"encoding/json"
	"path"
	"strings"
)

// Dir is the directory inside the remote repository holding every
// editable file.
const Dir = "data"

// Kind classifies a data file's payload shape.
type Kind int

const (
	// KindList is a JSON array of entries (locations, times, ...).
	KindList Kind = iota
	// KindDocument is an object with a title and a list of sections
	// (about, attend, and any name not registered as a list).
	KindDocument
)

// listNames are the files whose payload is a JSON array. Every other
// name is document-shaped.
var listNames = map[string]bool{
	"locations":        true,
	"times":            true,
	"repeating-events": true,
	"live":             true,
}

// locationDependents are the list files whose entries reference a
// location by identifier. Deleting a location cascades through these.
var locationDependents = []string{"times", "repeating-events", "live"}

// LocationRefField is the entry field carrying a location reference in
// the dependent files.
const LocationRefField = "locationId"

// Normalize reduces a file name or repository path to its bare name:
// "data/locations.json" and "locations.json" both become "locations".
func Normalize(name string) string {
	name = path.Base(name)
	return strings.TrimSuffix(name, ".json")
}

// KindOf returns the payload shape registered for a file name or path.
// Unregistered names are document-shaped.
func KindOf(name string) Kind {
	if listNames[Normalize(name)] {
		return KindList
	}
	return KindDocument
}

// PathFor maps a bare file name to its repository path.
func PathFor(name string) string {
	return Dir + "/" + Normalize(name) + ".json"
}

// DefaultFor returns the skeleton substituted when a file does not
// exist remotely: an empty list for list files, an empty titled
// document otherwise.
func DefaultFor(name string) json.RawMessage {
	if KindOf(name) == KindList {
		return json.RawMessage(`[]`)
	}
	return json.RawMessage(`{"title":"","sections":[]}`)
}

// LocationDependents returns the names of the files swept during a
// cascading location delete.
func LocationDependents() []string {
	out := make([]string, len(locationDependents))
	copy(out, locationDependents)
	return out
}

// KnownNames returns every file name the dashboard edits, in display
// order.
func KnownNames() []string {
	return []string{"about", "attend", "more", "locations", "times", "repeating-events", "live"}
}
