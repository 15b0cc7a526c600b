package claim

import (
	"fmt"

	"dart-ledger-go/internal/apperr"

	"google.golang.org/grpc/codes"
)

var ErrIllegalTransition = apperr.New(codes.FailedPrecondition, "illegal state transition")

// Machine is an explicit transition table for a record's status field.
type Machine[S ~string] struct {
	name  string
	edges map[S]map[S]struct{}
}

func NewMachine[S ~string](name string, edges map[S][]S) *Machine[S] {
	m := &Machine[S]{name: name, edges: make(map[S]map[S]struct{}, len(edges))}
	for from, tos := range edges {
		set := make(map[S]struct{}, len(tos))
		for _, to := range tos {
			set[to] = struct{}{}
		}
		m.edges[from] = set
	}
	return m
}

func (m *Machine[S]) Can(from, to S) bool {
	_, ok := m.edges[from][to]
	return ok
}

func (m *Machine[S]) Check(from, to S) error {
	if !m.Can(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, m.name, from, to)
	}
	return nil
}
