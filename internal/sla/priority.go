// Package sla derives incident priorities and computes SLA deadlines.
package sla

import "github.com/bissquit/incident-sla/internal/domain"

// DefaultPriority is used whenever impact or urgency is unknown.
// SLA computation must never prevent an incident from being created.
const DefaultPriority = domain.PriorityP3

// priorityMatrix is indexed by [impact][urgency], both ordered CRITICAL..LOW.
var priorityMatrix = [4][4]domain.Priority{
	{domain.PriorityP1, domain.PriorityP1, domain.PriorityP2, domain.PriorityP3},
	{domain.PriorityP1, domain.PriorityP2, domain.PriorityP2, domain.PriorityP3},
	{domain.PriorityP2, domain.PriorityP2, domain.PriorityP3, domain.PriorityP3},
	{domain.PriorityP3, domain.PriorityP3, domain.PriorityP3, domain.PriorityP4},
}

func levelIndex(l domain.Level) int {
	switch l {
	case domain.LevelCritical:
		return 0
	case domain.LevelHigh:
		return 1
	case domain.LevelMedium:
		return 2
	case domain.LevelLow:
		return 3
	}
	return -1
}

// ResolvePriority maps impact and urgency to a priority tier.
func ResolvePriority(impact, urgency domain.Level) domain.Priority {
	i, u := levelIndex(impact), levelIndex(urgency)
	if i < 0 || u < 0 {
		return DefaultPriority
	}
	return priorityMatrix[i][u]
}
