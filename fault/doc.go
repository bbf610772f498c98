// Package fault - error kinds for the face pair loader
//
// Every failure surfaced by the loader carries one Kind so callers can
// branch on the class of problem without matching message text.
package fault
