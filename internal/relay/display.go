package relay

import "fmt"

// displayServerInfo shows relay configuration information
func (s *Server) displayServerInfo(addr string) {
	fmt.Printf("Relay listening on http://%s (mode: %s)\n", addr, s.Mode)
	s.displayEndpoints()
	s.displayAuthInfo()
	s.displayUploadLimitInfo()
	s.displayRateLimitInfo()
}

// displayEndpoints shows available endpoints
func (s *Server) displayEndpoints() {
	fmt.Println("Available endpoints:")
	fmt.Println("  GET  /health    - Health check")
	fmt.Println("  GET  /stats     - Relay statistics")
	fmt.Println("  POST /analyze   - Stream a resume analysis as server-sent events")
	if s.observability.MetricsHandler() != nil {
		fmt.Printf("  GET  %-9s - Prometheus metrics\n", s.metricsPath())
	}
}

// displayAuthInfo shows authentication configuration
func (s *Server) displayAuthInfo() {
	if n := s.apiKeyCount(); n > 0 {
		fmt.Printf("API authentication: ENABLED (%d keys configured)\n", n)
		fmt.Println("Include 'X-API-Key: <your-key>' header in requests to /analyze")
	} else {
		fmt.Println("API authentication: DISABLED (no API keys configured)")
	}
}

// displayUploadLimitInfo shows upload size limit configuration
func (s *Server) displayUploadLimitInfo() {
	if s.MaxUploadSize > 0 {
		fmt.Printf("Upload size limit: %d bytes (%.1f MB)\n", s.MaxUploadSize, float64(s.MaxUploadSize)/(1024*1024))
	} else {
		fmt.Println("Upload size limit: DISABLED")
	}
}

// displayRateLimitInfo shows rate limiting configuration
func (s *Server) displayRateLimitInfo() {
	if s.RateLimit.Enabled {
		fmt.Printf("Rate limiting: ENABLED (%d requests/min, burst: %d)\n",
			s.RateLimit.RequestsPerMin, s.RateLimit.BurstCapacity)
		if s.RateLimit.ByAPIKey {
			fmt.Println("  - Per API key rate limiting enabled")
		}
		if s.RateLimit.ByIP {
			fmt.Println("  - Per IP address rate limiting enabled")
		}
	} else {
		fmt.Println("Rate limiting: DISABLED")
	}
}
