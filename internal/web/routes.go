package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/class-attendance/internal/report"
	"github.com/kozaktomas/class-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	svc := s.services
	policy := s.config.Policy.Report

	configHandler := handlers.NewConfigHandler(s.config)
	studentsHandler := handlers.NewStudentsHandler(svc.Registry, svc.Detector, s.config.Storage.FacesDir)
	subjectsHandler := handlers.NewSubjectsHandler(svc.Registry)
	attendanceHandler := handlers.NewAttendanceHandler(svc.Registry, svc.Ledger, svc.Attendance)
	reportsHandler := handlers.NewReportsHandler(svc.Registry, svc.Ledger, report.Options{
		MinimumAttendance: policy.MinimumAttendance,
		GoodLabel:         policy.GoodLabel,
		LowLabel:          policy.LowLabel,
	})
	recognizeHandler := handlers.NewRecognizeHandler(svc.Registry, svc.Ledger, svc.Matcher, svc.Detector, svc.Logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		// Students
		r.Get("/students", studentsHandler.List)
		r.Post("/students", studentsHandler.Create)
		r.Get("/students/{rollNo}", studentsHandler.Get)
		r.Delete("/students/{rollNo}", studentsHandler.Delete)

		// Subjects
		r.Get("/subjects", subjectsHandler.List)
		r.Get("/subjects/{subject}", subjectsHandler.Get)

		// Attendance ledger
		r.Get("/attendance", attendanceHandler.List)
		r.Post("/attendance/present", attendanceHandler.MarkPresent)
		r.Post("/attendance/absent", attendanceHandler.MarkAbsent)
		r.Get("/attendance/absentees", attendanceHandler.Absentees)
		r.Post("/attendance/absentees/sweep", attendanceHandler.Sweep)
		r.Get("/attendance/export", attendanceHandler.Export)
		r.Post("/attendance/import", attendanceHandler.Import)

		// Reports
		r.Get("/reports/attendance", reportsHandler.Attendance)

		// Recognition
		r.Post("/recognize", recognizeHandler.Recognize)
	})
}
