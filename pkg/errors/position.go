package errors

import "kava/pkg/source"

// Position is a location in the source text. Line and column are 1-based
// for display; the byte offsets are 0-based and end-exclusive.
type Position struct {
	Line     int
	Column   int
	StartPos int
	EndPos   int
	Source   *source.SourceFile
}

// Unknown is the zero Position, used for errors raised from the node tree,
// which does not record source locations.
var Unknown = Position{}
