package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoArticulations = errors.New("no articulations found")

// StructuralMissError reports a document in which no strategy located a
// course pairing.
type StructuralMissError struct {
	RowsSeen   int
	CodesSeen  int
	Strategies []string
	PageScore  float64
}

func (e *StructuralMissError) Error() string {
	return fmt.Sprintf("%s: rows=%d codes=%d strategies=%s pageScore=%.2f",
		ErrNoArticulations, e.RowsSeen, e.CodesSeen, strings.Join(e.Strategies, ","), e.PageScore)
}

func (e *StructuralMissError) Unwrap() error {
	return ErrNoArticulations
}
