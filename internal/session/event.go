package session

import "fmt"

// List names the collection an Event refers to.
type List int

const (
	Peripherals List = iota
	Services
	Characteristics
)

func (l List) String() string {
	switch l {
	case Peripherals:
		return "peripherals"
	case Services:
		return "services"
	default:
		return "characteristics"
	}
}

// EventKind is the kind of change.
type EventKind int

const (
	Inserted EventKind = iota
	Updated
	ClearedAll
)

func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "cleared"
	}
}

// Event describes a change to an ordered list. Indices are positions after
// the change; they are empty for ClearedAll.
type Event struct {
	List    List
	Kind    EventKind
	Indices []int
}

func (e Event) String() string {
	if e.Kind == ClearedAll {
		return fmt.Sprintf("%s %s", e.List, e.Kind)
	}
	return fmt.Sprintf("%s %s %v", e.List, e.Kind, e.Indices)
}

// EventsFor converts reconciled index sets into events, inserts first.
func EventsFor(list List, added, updated []int) []Event {
	var out []Event
	if len(added) > 0 {
		out = append(out, Event{List: list, Kind: Inserted, Indices: added})
	}
	if len(updated) > 0 {
		out = append(out, Event{List: list, Kind: Updated, Indices: updated})
	}
	return out
}
