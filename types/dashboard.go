package types

// ChartPoint is one day of the dashboard chart.
type ChartPoint struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// TableRow is one product row of the dashboard table.
type TableRow struct {
	ID     int     `json:"id"`
	Name   string  `json:"nome"`
	Status string  `json:"status"`
	Value  float64 `json:"valor"`
}

// DashboardData is the payload served to authenticated users.
type DashboardData struct {
	UserEmail string       `json:"user_email"`
	ChartData []ChartPoint `json:"chart_data"`
	TableData []TableRow   `json:"table_data"`
}
