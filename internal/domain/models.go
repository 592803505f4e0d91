package domain

// ModelOption describes one selectable vision model for metadata generation.
type ModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Backend     string `json:"backend"`
	Description string `json:"description,omitempty"`
	Selected    bool   `json:"selected"`
}
