// ABOUTME: Embeds the convoy card template into the binary using go:embed
// ABOUTME: Provides templateFS for loading templates at runtime

package render

import "embed"

//go:embed templates/*.html
var templateFS embed.FS
