package service

import (
	"github.com/deppfellow/abaita/internal/app"
	"github.com/deppfellow/abaita/internal/lib/feed"
	"github.com/deppfellow/abaita/internal/repository"
)

// Services is a container for all service instances.
type Services struct {
	Attendance *AttendanceService
}

// NewServices wires the services on the app's shared resources.
func NewServices(a *app.App, repos *repository.Repositories) *Services {
	return &Services{
		Attendance: NewAttendanceService(
			a.Logger,
			repos.Punches,
			feed.NewClient(a.Config.Server, a.Logger),
			nil,
		),
	}
}
