package scheduler

import (
	"github.com/koreops-ai/sas-api/pkg/models"
	"github.com/koreops-ai/sas-api/pkg/modules"
)

// orderUnits arranges units in the workflow's declared module order so
// readiness output and API responses stay deterministic.
func orderUnits(wf models.Workflow, units []models.Unit) []models.Unit {
	byType := make(map[string]models.Unit, len(units))
	for _, u := range units {
		byType[u.ModuleType] = u
	}
	ordered := make([]models.Unit, 0, len(units))
	for _, mt := range wf.ModuleTypes {
		if u, ok := byType[mt]; ok {
			ordered = append(ordered, u)
		}
	}
	return ordered
}

func statusByType(units []models.Unit) map[string]models.UnitStatus {
	m := make(map[string]models.UnitStatus, len(units))
	for _, u := range units {
		m[u.ModuleType] = u.Status
	}
	return m
}

// ReadyUnits computes the units eligible to run now: status pending or
// revision-requested, with every dependency rule satisfied against current
// statuses. An empty result is a valid, common state (everything running,
// terminal, or paused for review).
func ReadyUnits(wf models.Workflow, units []models.Unit) []models.Unit {
	statuses := statusByType(units)
	var ready []models.Unit
	for _, u := range orderUnits(wf, units) {
		if !u.Status.Runnable() {
			continue
		}
		if modules.Satisfied(u.ModuleType, statuses) {
			ready = append(ready, u)
		}
	}
	return ready
}
