// internal/app/system/limits/limits.go
package limits

// Input size limits for catalog text. Names show up in inline keyboard
// buttons, so they stay short.
const (
	// NameMax is the maximum length in characters of a category or tag name.
	NameMax = 50

	// DescriptionMax is the maximum length in characters of a resource description.
	DescriptionMax = 1000

	// CategoryDescriptionMax bounds the optional category description.
	CategoryDescriptionMax = 200

	// PreviewMax is how much of a description a search result line shows.
	PreviewMax = 50
)
