// ChartSync - Music Chart Sync Scheduling and Gap Detection
// Copyright 2026 MusicChartsAI
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/musicchartsai/chartsync

package soundcharts

// rankingResponse is the wire shape of the chart ranking endpoint.
type rankingResponse struct {
	Items []rankingItem `json:"items"`
	Page  pageInfo      `json:"page"`
}

type pageInfo struct {
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type rankingItem struct {
	Position      int      `json:"position"`
	Streams       int64    `json:"metricValue"`
	Song          songInfo `json:"song"`
	TimeOnChart   int      `json:"timeOnChart"`
	PositionDelta int      `json:"positionEvolution"`
}

type songInfo struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	CreditName string `json:"creditName"`
	ISRC       string `json:"isrc"`
}

// apiError is the provider's error envelope on non-2xx responses.
type apiError struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}
