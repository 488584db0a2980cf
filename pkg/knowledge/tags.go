package knowledge

import "strings"

// tagKeywords is the fixed keyword-to-tag dictionary used when an item is
// created without explicit tags. Matching is case-insensitive on whole
// words within the title and body.
var tagKeywords = map[string]string{
	"postgres":       "database",
	"postgresql":     "database",
	"mysql":          "database",
	"sqlite":         "database",
	"database":       "database",
	"sql":            "database",
	"migration":      "database",
	"index":          "database",
	"cache":          "caching",
	"redis":          "caching",
	"memcached":      "caching",
	"api":            "api",
	"endpoint":       "api",
	"rest":           "api",
	"grpc":           "api",
	"graphql":        "api",
	"auth":           "security",
	"authentication": "security",
	"authorization":  "security",
	"token":          "security",
	"encryption":     "security",
	"vulnerability":  "security",
	"deploy":         "deployment",
	"deployment":     "deployment",
	"kubernetes":     "deployment",
	"docker":         "deployment",
	"ci":             "deployment",
	"pipeline":       "deployment",
	"latency":        "performance",
	"performance":    "performance",
	"slow":           "performance",
	"timeout":        "performance",
	"memory":         "performance",
	"leak":           "performance",
	"outage":         "reliability",
	"downtime":       "reliability",
	"incident":       "reliability",
	"failover":       "reliability",
	"retry":          "reliability",
	"monitoring":     "observability",
	"metrics":        "observability",
	"logging":        "observability",
	"alert":          "observability",
	"test":           "testing",
	"testing":        "testing",
	"frontend":       "frontend",
	"ui":             "frontend",
	"css":            "frontend",
	"react":          "frontend",
}

// DeriveTags extracts tags from free text via the keyword dictionary.
// Returns tags in first-seen order without duplicates.
func DeriveTags(text string) []string {
	seen := make(map[string]struct{})
	tags := []string{}

	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		tag, ok := tagKeywords[word]
		if !ok {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	return tags
}
