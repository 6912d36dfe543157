package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Period is one retention cadence track. Tracks are independent: a policy
// keeps separate snapshot histories per period.
type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func Periods() []Period {
	return []Period{PeriodHour, PeriodDay, PeriodWeek, PeriodMonth}
}

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q, expected one of hour|day|week|month", s)
}

// Policy is a named bundle of per-period retention counts applied to volumes
// via a tag. Immutable once loaded.
type Policy struct {
	Name         string
	Retention    map[Period]int
	OnlyAttached bool
	Hook         string
}

// RetentionFor returns the retention count for the period. Zero means no
// snapshot is taken and existing snapshots for the track are purged.
func (p Policy) RetentionFor(period Period) int {
	return p.Retention[period]
}

// HookSpec points at an external executable run around snapshot creation.
type HookSpec struct {
	Command string
	Timeout time.Duration
}

// Config is the loaded policy table. It is built once per invocation and
// passed into the runner by value reference, never mutated.
type Config struct {
	// TagKey is the volume tag whose value selects a policy.
	TagKey string
	// Policies sorted by name for deterministic iteration.
	Policies []Policy
	Hooks    map[string]HookSpec
}

const (
	defaultTagKey      = "autosnap-policy"
	defaultHookTimeout = time.Minute
)

// On-disk shapes. Decoded strictly so a misspelled or unsupported period key
// fails the run instead of silently dropping retention.
type fileSpec struct {
	TagKey   string                `yaml:"tag_key"`
	Policies map[string]policySpec `yaml:"policies"`
	Hooks    map[string]hookSpec   `yaml:"hooks"`
}

type policySpec struct {
	Hour         int    `yaml:"hour"`
	Day          int    `yaml:"day"`
	Week         int    `yaml:"week"`
	Month        int    `yaml:"month"`
	OnlyAttached bool   `yaml:"only_attached"`
	Hook         string `yaml:"hook"`
}

type hookSpec struct {
	Command string   `yaml:"command"`
	Timeout duration `yaml:"timeout"`
}

// duration accepts "90s" style strings, which yaml.v3 does not decode into
// time.Duration on its own.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening policy file: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var spec fileSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing policy file: %w", err)
	}
	if len(spec.Policies) == 0 {
		return nil, fmt.Errorf("policy file declares no policies")
	}

	cfg := &Config{
		TagKey: spec.TagKey,
		Hooks:  map[string]HookSpec{},
	}
	if cfg.TagKey == "" {
		cfg.TagKey = defaultTagKey
	}

	for name, h := range spec.Hooks {
		if h.Command == "" {
			return nil, fmt.Errorf("hook %q: command is required", name)
		}
		timeout := time.Duration(h.Timeout)
		if timeout == 0 {
			timeout = defaultHookTimeout
		}
		cfg.Hooks[name] = HookSpec{Command: h.Command, Timeout: timeout}
	}

	for name, p := range spec.Policies {
		if name == "" {
			return nil, fmt.Errorf("policy with empty name")
		}
		retention := map[Period]int{
			PeriodHour:  p.Hour,
			PeriodDay:   p.Day,
			PeriodWeek:  p.Week,
			PeriodMonth: p.Month,
		}
		for period, count := range retention {
			if count < 0 {
				return nil, fmt.Errorf("policy %q: negative retention count %d for period %s", name, count, period)
			}
		}
		if p.Hook != "" {
			if _, found := cfg.Hooks[p.Hook]; !found {
				return nil, fmt.Errorf("policy %q references undeclared hook %q", name, p.Hook)
			}
		}
		cfg.Policies = append(cfg.Policies, Policy{
			Name:         name,
			Retention:    retention,
			OnlyAttached: p.OnlyAttached,
			Hook:         p.Hook,
		})
	}

	sort.Slice(cfg.Policies, func(i, j int) bool {
		return cfg.Policies[i].Name < cfg.Policies[j].Name
	})

	return cfg, nil
}
