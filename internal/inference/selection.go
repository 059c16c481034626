package inference

import "strings"

// minCredentialLength is the shortest hosted key treated as plausible.
const minCredentialLength = 20

var credentialPlaceholders = []string{
	"your-api-key",
	"your_api_key",
	"your-anthropic-key",
	"your_anthropic_api_key",
	"placeholder",
	"changeme",
	"replace-me",
	"xxxxxxxx",
	"...",
}

// ValidCredential reports whether key looks like a real hosted credential: non
// empty after trimming, longer than a trivial threshold and not a template
// placeholder.
func ValidCredential(key string) bool {
	key = strings.TrimSpace(key)
	if len(key) <= minCredentialLength {
		return false
	}
	if strings.HasPrefix(key, "<") && strings.HasSuffix(key, ">") {
		return false
	}
	lower := strings.ToLower(key)
	for _, p := range credentialPlaceholders {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// SelectModel picks a local model: the preferred name exactly (with or without
// a ":latest" tag), then the first name containing family, then the first
// model. It returns "" when nothing is installed.
func SelectModel(available []string, preferred, family string) string {
	if len(available) == 0 {
		return ""
	}
	if preferred != "" {
		for _, name := range available {
			if name == preferred || name == preferred+":latest" {
				return name
			}
		}
	}
	if family != "" {
		family = strings.ToLower(family)
		for _, name := range available {
			if strings.Contains(strings.ToLower(name), family) {
				return name
			}
		}
	}
	return available[0]
}
