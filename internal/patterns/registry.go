package patterns

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/automend/automend/internal/database"
)

// Detector produces patterns of one anomaly type for an organization
type Detector interface {
	// PatternType returns the pattern type this detector produces (e.g., "stuck_workflow")
	PatternType() string

	// Detect scans the organization's data within the time window
	Detect(orgID string, windowMinutes int) ([]Pattern, error)
}

// Registry holds the registered pattern detectors. It is populated once at
// startup; registration is still guarded for safety.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
}

// NewRegistry creates an empty detector registry
func NewRegistry() *Registry {
	return &Registry{
		detectors: make(map[string]Detector),
	}
}

// Register adds a detector to the registry
func (r *Registry) Register(d Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	patternType := d.PatternType()
	if patternType == "" {
		return fmt.Errorf("detector has empty pattern type")
	}
	if _, exists := r.detectors[patternType]; exists {
		return fmt.Errorf("detector for pattern type %q is already registered", patternType)
	}
	r.detectors[patternType] = d
	return nil
}

// Get returns the detector for a pattern type
func (r *Registry) Get(patternType string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[patternType]
	return d, ok
}

// Types returns all registered pattern types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.detectors))
	for t := range r.detectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Detect runs the requested detectors for one organization. An empty type list
// runs every registered detector. A detector failure is logged and skipped so
// one broken detector never aborts the overall scan.
func (r *Registry) Detect(orgID string, types []string, windowMinutes int) []Pattern {
	if len(types) == 0 {
		types = r.Types()
	}

	var results []Pattern
	for _, patternType := range types {
		detector, ok := r.Get(patternType)
		if !ok {
			log.Printf("Pattern scan: no detector registered for type %q, skipping", patternType)
			continue
		}

		detected, err := detector.Detect(orgID, windowMinutes)
		if err != nil {
			log.Printf("Pattern scan: detector %q failed for org %s: %v", patternType, orgID, err)
			continue
		}
		results = append(results, detected...)
	}
	return results
}

// ScanOptions controls a pattern scan
type ScanOptions struct {
	// Types restricts the scan to specific pattern types; empty means all
	Types []string

	// WindowMinutes is the detection time window
	WindowMinutes int

	// MinSeverity filters out patterns below this severity; empty keeps all
	MinSeverity database.PatternSeverity
}

// Scanner combines the detector registry with merging, filtering and ranking
type Scanner struct {
	registry *Registry
}

// NewScanner creates a scanner over a detector registry
func NewScanner(registry *Registry) *Scanner {
	return &Scanner{registry: registry}
}

// Registry returns the underlying detector registry
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Scan runs detectors, merges duplicate findings, filters by minimum severity
// and sorts by (severity desc, last detected desc).
func (s *Scanner) Scan(orgID string, opts ScanOptions) []Pattern {
	detected := s.registry.Detect(orgID, opts.Types, opts.WindowMinutes)
	merged := Merge(detected)

	if opts.MinSeverity != "" {
		minRank := database.SeverityRank(opts.MinSeverity)
		filtered := merged[:0]
		for _, p := range merged {
			if database.SeverityRank(p.Severity) >= minRank {
				filtered = append(filtered, p)
			}
		}
		merged = filtered
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ri, rj := database.SeverityRank(merged[i].Severity), database.SeverityRank(merged[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return merged[i].LastDetectedAt.After(merged[j].LastDetectedAt)
	})

	return merged
}
