package domain

// CatalogRow is one cleaned entry of the ranked movie catalog
type CatalogRow struct {
	Title       string  `json:"title"`
	Rating      float64 `json:"rating"`
	RatingCount int64   `json:"rating_count"`
	Year        int     `json:"year"`
}

// ClusteredRow is a catalog row with its assigned cluster label
type ClusteredRow struct {
	CatalogRow
	Cluster int `json:"cluster"`
}

// ClusterSummary is the Catalog analysis result.
// Centroids live in standardized feature space; Mean and Scale recover raw units.
type ClusterSummary struct {
	K            int            `json:"k"`
	Seed         int64          `json:"seed"`
	FeatureNames []string       `json:"feature_names"`
	Labels       []int          `json:"labels"`
	Centroids    [][]float64    `json:"centroids"`
	Mean         []float64      `json:"mean"`
	Scale        []float64      `json:"scale"`
	Inertia      float64        `json:"inertia"`
	Iterations   int            `json:"iterations"`
	Rows         []ClusteredRow `json:"rows"`
}

// ClusterSizes returns the number of rows assigned to each cluster
func (s *ClusterSummary) ClusterSizes() []int {
	sizes := make([]int, s.K)
	for _, l := range s.Labels {
		if l >= 0 && l < s.K {
			sizes[l]++
		}
	}
	return sizes
}
