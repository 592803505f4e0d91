package generator

import "imagemeta/internal/domain"

var modelCatalog = []domain.ModelOption{
	{
		ID:          "gemini-1.5-flash-latest",
		Name:        "Gemini 1.5 Flash",
		Backend:     "gemini",
		Description: "Fast, inexpensive multimodal model.",
	},
	{
		ID:          "gemini-1.5-pro-latest",
		Name:        "Gemini 1.5 Pro",
		Backend:     "gemini",
		Description: "Slower, more detailed descriptions.",
	},
	{
		ID:          "gemini-2.0-flash",
		Name:        "Gemini 2.0 Flash",
		Backend:     "gemini",
		Description: "Newer flash model with better keyword recall.",
	},
	{
		ID:          "gemini-2.5-flash",
		Name:        "Gemini 2.5 Flash",
		Backend:     "gemini",
		Description: "Latest flash model.",
	},
	{
		ID:          "gemini-1.5-flash-002",
		Name:        "Gemini 1.5 Flash (Vertex AI)",
		Backend:     "vertex",
		Description: "Uses Google Cloud application default credentials.",
	},
}

// Catalog returns selectable models with the active one flagged.
func Catalog(selected string) []domain.ModelOption {
	out := make([]domain.ModelOption, 0, len(modelCatalog))
	for _, option := range modelCatalog {
		option.Selected = option.ID == selected
		out = append(out, option)
	}
	return out
}

// FindModel returns a catalog entry by ID.
func FindModel(id string) (domain.ModelOption, bool) {
	for _, option := range modelCatalog {
		if option.ID == id {
			return option, true
		}
	}
	return domain.ModelOption{}, false
}
