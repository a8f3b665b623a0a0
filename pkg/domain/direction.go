package domain

// Direction is the sort/scan direction of a single key within a compound
// index. Hashed keys carry no natural ordering; they exist only to route
// equality lookups on values too large to index normally (see FieldMode).
type Direction int8

const (
	Ascending  Direction = 1
	Descending Direction = -1
	Hashed     Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "1"
	case Descending:
		return "-1"
	case Hashed:
		return "hashed"
	default:
		return "0"
	}
}

// Sign returns +1 or -1 for Ascending/Descending, and 0 for Hashed (hashed
// keys have no sign to multiply against).
func (d Direction) Sign() int {
	switch d {
	case Ascending:
		return 1
	case Descending:
		return -1
	default:
		return 0
	}
}
