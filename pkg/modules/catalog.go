package modules

import "github.com/koreops-ai/sas-api/pkg/models"

// The fixed catalog of analysis module types.
const (
	MarketSizing       = "market_sizing"
	CompetitorAnalysis = "competitor_analysis"
	CustomerDiscovery  = "customer_discovery"
	FinancialModel     = "financial_model"
	RiskAssessment     = "risk_assessment"
	GoToMarket         = "go_to_market"
	ExecutiveSummary   = "executive_summary"
)

// Catalog lists every known module type in declaration order.
var Catalog = []string{
	MarketSizing,
	CompetitorAnalysis,
	CustomerDiscovery,
	FinancialModel,
	RiskAssessment,
	GoToMarket,
	ExecutiveSummary,
}

// Rule declares a module type's dependencies. All must be terminal
// successful; additionally, each AnyOf group needs at least one terminal
// successful member. New module types are added by editing this table, not
// by branching logic.
type Rule struct {
	All   []string
	AnyOf [][]string
}

var rules = map[string]Rule{
	MarketSizing:       {},
	CompetitorAnalysis: {},
	CustomerDiscovery:  {},
	FinancialModel: {
		All:   []string{MarketSizing},
		AnyOf: [][]string{{CompetitorAnalysis, CustomerDiscovery}},
	},
	RiskAssessment: {
		All: []string{MarketSizing, CompetitorAnalysis},
	},
	GoToMarket: {
		AnyOf: [][]string{{CompetitorAnalysis, CustomerDiscovery}},
	},
	ExecutiveSummary: {
		All: []string{FinancialModel, RiskAssessment},
	},
}

// Known reports whether the module type is in the catalog.
func Known(moduleType string) bool {
	_, ok := rules[moduleType]
	return ok
}

// RuleFor returns the declared dependency rule for a module type.
func RuleFor(moduleType string) Rule {
	return rules[moduleType]
}

// DependenciesOf returns every module type that can gate the given type:
// the conjunctive dependencies followed by all disjunctive alternatives,
// declaration order, deduplicated.
func DependenciesOf(moduleType string) []string {
	rule := rules[moduleType]
	seen := make(map[string]struct{})
	var deps []string
	add := func(t string) {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			deps = append(deps, t)
		}
	}
	for _, t := range rule.All {
		add(t)
	}
	for _, group := range rule.AnyOf {
		for _, t := range group {
			add(t)
		}
	}
	return deps
}

// Satisfied evaluates the rule table against current unit statuses:
// every conjunctive dependency terminal successful AND, per disjunctive
// group, at least one alternative terminal successful. A dependency absent
// from the workflow's chosen set does not gate the unit.
func Satisfied(moduleType string, statusByType map[string]models.UnitStatus) bool {
	rule := rules[moduleType]
	for _, dep := range rule.All {
		status, chosen := statusByType[dep]
		if !chosen {
			continue
		}
		if !status.TerminalSuccess() {
			return false
		}
	}
	for _, group := range rule.AnyOf {
		ok := false
		chosenAny := false
		for _, alt := range group {
			status, chosen := statusByType[alt]
			if !chosen {
				continue
			}
			chosenAny = true
			if status.TerminalSuccess() {
				ok = true
				break
			}
		}
		if chosenAny && !ok {
			return false
		}
	}
	return true
}

// Blocked reports whether the module type can never become satisfied: a
// conjunctive dependency ended terminally unsuccessful, or every chosen
// alternative of a disjunctive group did.
func Blocked(moduleType string, statusByType map[string]models.UnitStatus) bool {
	rule := rules[moduleType]
	for _, dep := range rule.All {
		status, chosen := statusByType[dep]
		if !chosen {
			continue
		}
		if status.Terminal() && !status.TerminalSuccess() {
			return true
		}
	}
	for _, group := range rule.AnyOf {
		chosenAny := false
		deadEnd := true
		for _, alt := range group {
			status, chosen := statusByType[alt]
			if !chosen {
				continue
			}
			chosenAny = true
			if !status.Terminal() || status.TerminalSuccess() {
				deadEnd = false
				break
			}
		}
		if chosenAny && deadEnd {
			return true
		}
	}
	return false
}
