package criteriaquery

import (
	"encoding/json"
	"fmt"
)

// SortDirection represents the direction of sorting
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// QueryOptions represents additional query options like sorting and pagination
type QueryOptions struct {
	Sort   map[string]SortDirection `json:"sort,omitempty"`
	Limit  *int                     `json:"limit,omitempty"`
	Offset *int                     `json:"offset,omitempty"`
}

// ParseQueryOptions parses a JSON string into QueryOptions
func ParseQueryOptions(jsonStr string) (*QueryOptions, error) {
	if jsonStr == "" {
		return &QueryOptions{}, nil
	}

	var options QueryOptions
	if err := json.Unmarshal([]byte(jsonStr), &options); err != nil {
		return nil, fmt.Errorf("failed to parse query options JSON: %w", err)
	}

	for field, direction := range options.Sort {
		if direction != SortAsc && direction != SortDesc {
			return nil, fmt.Errorf("invalid sort direction %q for field %q", direction, field)
		}
	}
	if options.Limit != nil && *options.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", *options.Limit)
	}
	if options.Offset != nil && *options.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative, got %d", *options.Offset)
	}

	return &options, nil
}
