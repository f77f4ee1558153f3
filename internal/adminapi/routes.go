package adminapi

// setupRoutes registers every read-only endpoint under /api/v1.
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/weights", s.handleCurrentWeights)
		v1.GET("/positions", s.handleOpenPositions)
		v1.GET("/deliberations", s.handleRecentDeliberations)
		v1.GET("/signals/counters", s.handleSignalCounters)
	}
}
