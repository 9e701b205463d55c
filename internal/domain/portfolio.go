package domain

// Portfolio is the derived aggregate over one user's ledger. It is
// always recomputed from a ledger snapshot and never patched directly.
type Portfolio struct {
	TotalValue      float64 `json:"totalValue"`
	TotalProfitLoss float64 `json:"totalProfitLoss"`
	DayProfitLoss   float64 `json:"dayProfitLoss"`
	OpenPositions   int     `json:"openPositions"`
	TotalTrades     int     `json:"totalTrades"`
	WinRate         float64 `json:"winRate"`
}

// PostStats is the locally tracked display state for a community post.
type PostStats struct {
	PostID     string `json:"postId"`
	Likes      int    `json:"likes"`
	Liked      bool   `json:"liked"`
	Bookmarked bool   `json:"bookmarked"`
}
