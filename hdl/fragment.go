package hdl

import "log"

// A StatementGroup is the logic of one clock domain within a fragment. The
// empty domain name denotes combinational logic.
type StatementGroup struct {
	Domain     string
	Statements []Statement
}

// Signals returns the set of signals driven by the group, in the order they
// first appear on a left-hand side.
func (g *StatementGroup) Signals() *SignalSet {
	set := NewSignalSet()
	for _, stmt := range g.Statements {
		stmt.DrivenSignals(set)
	}
	return set
}

// A Subfragment is a named child of a fragment.
type Subfragment struct {
	Name     string
	Fragment *Fragment
}

// A Fragment is a fully elaborated hierarchical design: per-domain statement
// groups, a clock domain registry, and named subfragments. The simulator
// consumes fragments read-only.
type Fragment struct {
	groups      []*StatementGroup
	groupIndex  map[string]int
	domains     map[string]*ClockDomain
	domainOrder []string
	subs        []Subfragment
}

// NewFragment creates an empty fragment.
func NewFragment() *Fragment {
	return &Fragment{
		groupIndex: make(map[string]int),
		domains:    make(map[string]*ClockDomain),
	}
}

// AddDomain registers a clock domain with the fragment.
func (f *Fragment) AddDomain(cd *ClockDomain) *Fragment {
	if _, ok := f.domains[cd.Name]; ok {
		log.Panicf("hdl: domain %q already registered", cd.Name)
	}
	f.domains[cd.Name] = cd
	f.domainOrder = append(f.domainOrder, cd.Name)
	return f
}

// AddStatements appends statements to the group of the named domain. The
// empty domain name adds combinational logic. Clocked groups must name a
// domain registered in this fragment or in an enclosing one.
func (f *Fragment) AddStatements(domain string, stmts ...Statement) *Fragment {
	idx, ok := f.groupIndex[domain]
	if !ok {
		idx = len(f.groups)
		f.groups = append(f.groups, &StatementGroup{Domain: domain})
		f.groupIndex[domain] = idx
	}
	g := f.groups[idx]
	g.Statements = append(g.Statements, stmts...)
	return f
}

// AddSubfragment attaches a named child fragment.
func (f *Fragment) AddSubfragment(name string, sub *Fragment) *Fragment {
	f.subs = append(f.subs, Subfragment{Name: name, Fragment: sub})
	return f
}

// Groups returns the statement groups in registration order.
func (f *Fragment) Groups() []*StatementGroup {
	return f.groups
}

// Subfragments returns the named children in registration order.
func (f *Fragment) Subfragments() []Subfragment {
	return f.subs
}

// Domain looks up a clock domain registered directly on this fragment.
func (f *Fragment) Domain(name string) (*ClockDomain, bool) {
	cd, ok := f.domains[name]
	return cd, ok
}

// Domains returns the domain registry of this fragment and, recursively, of
// every subfragment. A domain name registered at several levels must refer
// to the same domain object.
func (f *Fragment) Domains() map[string]*ClockDomain {
	all := make(map[string]*ClockDomain)
	f.collectDomains(all)
	return all
}

func (f *Fragment) collectDomains(into map[string]*ClockDomain) {
	for name, cd := range f.domains {
		if seen, ok := into[name]; ok && seen != cd {
			log.Panicf("hdl: domain %q registered twice with different definitions", name)
		}
		into[name] = cd
	}
	for _, sub := range f.subs {
		sub.Fragment.collectDomains(into)
	}
}
