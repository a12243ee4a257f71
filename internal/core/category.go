package core

const (
	CategoryFood      Category = "Comida"
	CategorySnacks    Category = "Chucherías"
	CategoryHome      Category = "Casa"
	CategoryTransport Category = "Transporte"
	CategoryBaby      Category = "Bebé"
	CategoryJulinda   Category = "Julinda"
	CategoryVladimir  Category = "Vladimir"
)

// CategoryInfo holds the presentation attributes shared by the chart and the
// text report so both show a category the same way.
type CategoryInfo struct {
	Name  Category
	Emoji string
	Color string // hex RGB, no leading '#'
}

// DefaultEmoji is used for categories outside the table.
const DefaultEmoji = "🔹"

var categoryTable = []CategoryInfo{
	{Name: CategoryFood, Emoji: "🍽️", Color: "FF6384"},
	{Name: CategorySnacks, Emoji: "🍬", Color: "FF9F40"},
	{Name: CategoryHome, Emoji: "🏠", Color: "4BC0C0"},
	{Name: CategoryTransport, Emoji: "🚗", Color: "36A2EB"},
	{Name: CategoryBaby, Emoji: "👶", Color: "FFCD56"},
	{Name: CategoryJulinda, Emoji: "👩", Color: "9966FF"},
	{Name: CategoryVladimir, Emoji: "👨", Color: "4CAF50"},
}

var categoryIndex = func() map[Category]int {
	idx := make(map[Category]int, len(categoryTable))
	for i, info := range categoryTable {
		idx[info.Name] = i
	}
	return idx
}()

// Categories returns the known categories in table order.
func Categories() []Category {
	out := make([]Category, len(categoryTable))
	for i, info := range categoryTable {
		out[i] = info.Name
	}
	return out
}

// LookupCategory returns the table entry for c.
func LookupCategory(c Category) (CategoryInfo, bool) {
	i, ok := categoryIndex[c]
	if !ok {
		return CategoryInfo{Name: c, Emoji: DefaultEmoji, Color: "9E9E9E"}, false
	}
	return categoryTable[i], true
}

// Emoji returns the icon for c, or DefaultEmoji when c is unknown.
func (c Category) Emoji() string {
	info, _ := LookupCategory(c)
	return info.Emoji
}

// order ranks c by its table position; unknown categories sort last.
func (c Category) order() int {
	if i, ok := categoryIndex[c]; ok {
		return i
	}
	return len(categoryTable)
}
