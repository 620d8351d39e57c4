package enums

import "fmt"

// ReactionType is a user's like or dislike on a movie.
type ReactionType string

const (
	ReactionTypeLike    ReactionType = "like"
	ReactionTypeDislike ReactionType = "dislike"
)

var validReactionTypes = []ReactionType{
	ReactionTypeLike,
	ReactionTypeDislike,
}

// String implements fmt.Stringer.
func (r ReactionType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReactionType.
func (r ReactionType) IsValid() bool {
	for _, candidate := range validReactionTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReactionType converts raw input into a ReactionType.
func ParseReactionType(value string) (ReactionType, error) {
	for _, candidate := range validReactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reaction type %q", value)
}
