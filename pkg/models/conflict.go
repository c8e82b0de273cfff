package models

// Conflict records a natural key that maps to more than one real-world entity.
// AssignedKeys maps a variation index to its resolved key; index 0 always keeps
// the natural key and near-duplicate variations share the key of their cluster.
type Conflict struct {
	EntityType   string               `json:"entity_type"`
	NaturalKey   string               `json:"natural_key"`
	Variations   []ReferenceVariation `json:"variations"`
	AssignedKeys map[int]string       `json:"assigned_keys"`
	// Clusters maps a variation index to its near-duplicate cluster; cluster 0 is canonical.
	Clusters []int `json:"clusters"`
}

// ClusterCount returns the number of distinct entities behind the natural key.
func (c *Conflict) ClusterCount() int {
	n := 0
	for _, cl := range c.Clusters {
		if cl+1 > n {
			n = cl + 1
		}
	}
	return n
}

// KeyFor returns the resolved key for a variation index.
func (c *Conflict) KeyFor(index int) string {
	if k, ok := c.AssignedKeys[index]; ok {
		return k
	}
	return c.NaturalKey
}

// SimilarityGroup is an audit record of a natural key whose variations only
// differ in formatting. No synthetic key is minted for it.
type SimilarityGroup struct {
	EntityType           string   `json:"entity_type"`
	NaturalKey           string   `json:"natural_key"`
	CanonicalDescription string   `json:"canonical_description"`
	Descriptions         []string `json:"descriptions"`
	Sources              []string `json:"sources"`
}

// SyntheticKeyAssignment is one row of the resolved surrogate key table, kept for
// traceability from generated code back to the conflicting source rows.
type SyntheticKeyAssignment struct {
	EntityType    string `json:"entity_type"`
	NaturalKey    string `json:"natural_key"`
	SyntheticKey  string `json:"synthetic_key"`
	Description   string `json:"description"`
	SourceDataset string `json:"source_dataset"`
}
