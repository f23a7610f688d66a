package services

import (
	"time"

	"github.com/pilotodevendas/apiserver/types"
)

const dashboardDays = 7

var dashboardProducts = []types.TableRow{
	{ID: 1, Name: "Produto A", Status: "Ativo", Value: 1250.00},
	{ID: 2, Name: "Produto B", Status: "Pendente", Value: 890.50},
	{ID: 3, Name: "Produto C", Status: "Ativo", Value: 2100.75},
	{ID: 4, Name: "Produto D", Status: "Inativo", Value: 450.00},
	{ID: 5, Name: "Produto E", Status: "Ativo", Value: 3200.00},
}

// DashboardService builds the placeholder dashboard payload.
type DashboardService struct {
	now func() time.Time
}

func NewDashboardService(now func() time.Time) *DashboardService {
	if now == nil {
		now = time.Now
	}
	return &DashboardService{now: now}
}

// Data returns the last seven days of chart points, oldest first, and the product table.
func (s *DashboardService) Data(user types.User) types.DashboardData {
	today := s.now()
	chart := make([]types.ChartPoint, 0, dashboardDays)
	for i := 0; i < dashboardDays; i++ {
		day := today.AddDate(0, 0, i-(dashboardDays-1))
		chart = append(chart, types.ChartPoint{
			Date:  day.Format("2006-01-02"),
			Value: 100 + i*50 + (i%2)*30,
		})
	}

	table := make([]types.TableRow, len(dashboardProducts))
	copy(table, dashboardProducts)

	return types.DashboardData{
		UserEmail: user.Email,
		ChartData: chart,
		TableData: table,
	}
}
