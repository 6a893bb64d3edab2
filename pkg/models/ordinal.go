package models

// OrdinalAssignment places one entity at a 1-based position among its siblings.
type OrdinalAssignment struct {
	ID      string `json:"id"      validate:"required"`
	Ordinal int    `json:"ordinal" validate:"min=1"`
}

// Direction is a single-step move within an ordered sibling list.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether d is up or down.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}
