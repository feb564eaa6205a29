package ratelimit

// Policy holds the nine optional ceilings for one agent scope:
// three dimensions across three windows. A nil field means unlimited
// for that dimension/window.
type Policy struct {
	RequestsPerMinute *int64 `yaml:"requests_per_minute"`
	RequestsPerHour   *int64 `yaml:"requests_per_hour"`
	RequestsPerDay    *int64 `yaml:"requests_per_day"`

	TokensPerMinute *int64 `yaml:"tokens_per_minute"`
	TokensPerHour   *int64 `yaml:"tokens_per_hour"`
	TokensPerDay    *int64 `yaml:"tokens_per_day"`

	CostPerMinute *float64 `yaml:"cost_per_minute"`
	CostPerHour   *float64 `yaml:"cost_per_hour"`
	CostPerDay    *float64 `yaml:"cost_per_day"`
}

// Limit is one configured ceiling for a dimension/window pair.
type Limit struct {
	Window        Window
	WindowSeconds int64
	Value         float64
}

// Resolve merges an override policy over a base policy field by field.
// Unset override fields inherit the base value; this is per-field
// inheritance, not whole-object replacement.
// This is a PURE function.
func Resolve(base Policy, override *Policy) Policy {
	if override == nil {
		return base
	}

	out := base
	if override.RequestsPerMinute != nil {
		out.RequestsPerMinute = override.RequestsPerMinute
	}
	if override.RequestsPerHour != nil {
		out.RequestsPerHour = override.RequestsPerHour
	}
	if override.RequestsPerDay != nil {
		out.RequestsPerDay = override.RequestsPerDay
	}
	if override.TokensPerMinute != nil {
		out.TokensPerMinute = override.TokensPerMinute
	}
	if override.TokensPerHour != nil {
		out.TokensPerHour = override.TokensPerHour
	}
	if override.TokensPerDay != nil {
		out.TokensPerDay = override.TokensPerDay
	}
	if override.CostPerMinute != nil {
		out.CostPerMinute = override.CostPerMinute
	}
	if override.CostPerHour != nil {
		out.CostPerHour = override.CostPerHour
	}
	if override.CostPerDay != nil {
		out.CostPerDay = override.CostPerDay
	}
	return out
}

// Limits returns the configured ceilings for a dimension in stable window
// order (minute, hour, day), skipping windows with no limit.
// This is a PURE function.
func (p Policy) Limits(dim Dimension) []Limit {
	var raw [3]*float64

	switch dim {
	case DimensionRequests:
		raw = [3]*float64{intLimit(p.RequestsPerMinute), intLimit(p.RequestsPerHour), intLimit(p.RequestsPerDay)}
	case DimensionTokens:
		raw = [3]*float64{intLimit(p.TokensPerMinute), intLimit(p.TokensPerHour), intLimit(p.TokensPerDay)}
	case DimensionCost:
		raw = [3]*float64{p.CostPerMinute, p.CostPerHour, p.CostPerDay}
	}

	limits := make([]Limit, 0, 3)
	for i, w := range Windows {
		if raw[i] == nil {
			continue
		}
		limits = append(limits, Limit{
			Window:        w,
			WindowSeconds: w.Seconds(),
			Value:         *raw[i],
		})
	}
	return limits
}

func intLimit(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
