package types

import "scholar/scholar/sources/db/models"

type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type SearchResponse struct {
	Papers  []models.PaperMetadata `json:"papers"`
	Summary string                 `json:"summary"`
}

type ImportRequest struct {
	URL string `json:"url"`
}
