package orders

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusPaid: true},
	StatusPaid:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
