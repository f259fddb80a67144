package ascii

// GetASCIIArt returns the ASCII art logo for ipabuild
func GetASCIIArt() string {
	return `
 _             _           _ _     _
(_)_ __   __ _| |__  _   _(_) | __| |
| | '_ \ / _' | '_ \| | | | | |/ _' |
| | |_) | (_| | |_) | |_| | | | (_| |
|_| .__/ \__,_|_.__/ \__,_|_|_|\__,_|
  |_|   Flutter iOS builds on GitHub Actions
`
}
