package core

// FallbackCategoryID is returned by LookupCategory for unknown ids.
const FallbackCategoryID = "other"

// The fallback entry must stay last.
var categories = []Category{
	{ID: "food", Name: "Food & Dining", Icon: "🍽️", Color: "#FF6B6B"},
	{ID: "transport", Name: "Transportation", Icon: "🚗", Color: "#4ECDC4"},
	{ID: "shopping", Name: "Shopping", Icon: "🛍️", Color: "#45B7D1"},
	{ID: "entertainment", Name: "Entertainment", Icon: "🎬", Color: "#96CEB4"},
	{ID: "bills", Name: "Bills & Utilities", Icon: "⚡", Color: "#FFEAA7"},
	{ID: "health", Name: "Healthcare", Icon: "🏥", Color: "#DDA0DD"},
	{ID: "education", Name: "Education", Icon: "📚", Color: "#98D8C8"},
	{ID: "travel", Name: "Travel", Icon: "✈️", Color: "#F7DC6F"},
	{ID: FallbackCategoryID, Name: "Other", Icon: "📝", Color: "#BDC3C7"},
}

// Categories returns the catalog in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// LookupCategory returns the entry with the given id, or the last catalog
// entry ("other") when nothing matches.
func LookupCategory(id string) Category {
	for _, c := range categories {
		if c.ID == id {
			return c
		}
	}
	return categories[len(categories)-1]
}

// IsKnownCategory reports whether id names a catalog entry.
func IsKnownCategory(id string) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// CategoryIDs lists every catalog id in order.
func CategoryIDs() []string {
	ids := make([]string, len(categories))
	for i, c := range categories {
		ids[i] = c.ID
	}
	return ids
}
