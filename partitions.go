package edgecache

import "fmt"

// Partitions holds the named cache partitions for one worker generation.
// The names embed the version; a version bump yields a disjoint set of
// partitions, and activation drops every partition not in the allow-list.
type Partitions struct {
	// Umbrella is used for naming-scheme consistency only and is never
	// opened as a partition.
	Umbrella string
	Static   string
	Dynamic  string
	API      string
}

func NewPartitions(product, version string) Partitions {
	return Partitions{
		Umbrella: fmt.Sprintf("%s-v%s", product, version),
		Static:   fmt.Sprintf("%s-static-v%s", product, version),
		Dynamic:  fmt.Sprintf("%s-dynamic-v%s", product, version),
		API:      fmt.Sprintf("%s-api-v%s", product, version),
	}
}

// AllowList returns the partition names permitted to survive activation.
func (p Partitions) AllowList() []string {
	return []string{p.Static, p.Dynamic, p.API}
}
