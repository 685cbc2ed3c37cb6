package content

import (
	"regexp"

	"gopkg.in/yaml.v3"
)

var frontmatterRE = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)

// Frontmatter is the YAML header of a post. Date stays textual so that bare
// dates and full timestamps are both accepted by dates.Parse.
type Frontmatter struct {
	Title  string `yaml:"title"`
	Date   string `yaml:"date"`
	Author string `yaml:"author"`
}

// ParseFrontmatter splits src into its header and body. A missing or
// malformed header yields a zero Frontmatter and the whole input as body.
func ParseFrontmatter(src string) (Frontmatter, string) {
	m := frontmatterRE.FindStringSubmatch(src)
	if m == nil {
		return Frontmatter{}, src
	}
	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
		return Frontmatter{}, src
	}
	return fm, m[2]
}
