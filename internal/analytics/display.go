package analytics

// FloorAtOne never reports zero. It is applied only when rendering
// responses for visitors; aggregation always returns true counts.
func FloorAtOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ForDisplay returns a copy of stats with every count floored at one.
func (s RealTimeStats) ForDisplay() RealTimeStats {
	s.OnlineUsers = FloorAtOne(s.OnlineUsers)
	s.TotalViews = FloorAtOne(s.TotalViews)
	s.TodayViews = FloorAtOne(s.TodayViews)
	return s
}
