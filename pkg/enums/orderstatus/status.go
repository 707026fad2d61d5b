package orderstatus

import (
	"strings"
)

type Status struct {
	Name string
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	parts := strings.Split(s.Name, "-")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, " ")
}

// Active reports whether an order in this status still belongs to a live table session.
func (s Status) Active() bool {
	return s.Name != Statuses.Completed.Name
}

type Enum struct {
	Pending        Status
	Preparing      Status
	OutForDelivery Status
	Delivered      Status
	Completed      Status
}

var Statuses = Enum{
	Pending:        Status{Name: "pending"},
	Preparing:      Status{Name: "preparing"},
	OutForDelivery: Status{Name: "out-for-delivery"},
	Delivered:      Status{Name: "delivered"},
	Completed:      Status{Name: "completed"},
}

var All = []Status{
	Statuses.Pending,
	Statuses.Preparing,
	Statuses.OutForDelivery,
	Statuses.Delivered,
	Statuses.Completed,
}

// ByName returns the status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}
