package domain

// Paths is an ordered mapping from tracking type to URL patterns. Types keep
// the order they were first added in; patterns keep insertion order.
type Paths struct {
	order    []string
	patterns map[string][]string
}

func NewPaths() *Paths {
	return &Paths{patterns: map[string][]string{}}
}

// Add appends patterns to trackingType, skipping ones already present.
func (p *Paths) Add(trackingType string, patterns ...string) {
	if p.patterns == nil {
		p.patterns = map[string][]string{}
	}
	existing, ok := p.patterns[trackingType]
	if !ok {
		p.order = append(p.order, trackingType)
	}
	for _, pattern := range patterns {
		if containsString(existing, pattern) {
			continue
		}
		existing = append(existing, pattern)
	}
	p.patterns[trackingType] = existing
}

// Merge folds other into p using Add semantics.
func (p *Paths) Merge(other *Paths) {
	if other == nil {
		return
	}
	for _, t := range other.order {
		p.Add(t, other.patterns[t]...)
	}
}

func (p *Paths) Types() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.order...)
}

func (p *Paths) Patterns(trackingType string) []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns[trackingType]...)
}

func (p *Paths) Len() int {
	if p == nil {
		return 0
	}
	return len(p.order)
}

func (p *Paths) Clone() *Paths {
	out := NewPaths()
	out.Merge(p)
	return out
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
