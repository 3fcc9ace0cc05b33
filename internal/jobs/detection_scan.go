// Package jobs holds the engine's periodic background workers.
package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/metrics"
	"github.com/automend/automend/internal/patterns"
)

// DetectionScan periodically runs the detectors for every active
// organization, matches the merged patterns to configured actions and hands
// the matches to the execution engine.
type DetectionScan struct {
	db      *gorm.DB
	scanner *patterns.Scanner
	matcher *executor.Matcher
	engine  *executor.Engine
}

// NewDetectionScan creates the detection scan worker
func NewDetectionScan(db *gorm.DB, scanner *patterns.Scanner, matcher *executor.Matcher, engine *executor.Engine) *DetectionScan {
	return &DetectionScan{db: db, scanner: scanner, matcher: matcher, engine: engine}
}

// RunOnce scans one organization and executes the matched actions. Returns
// the merged patterns found.
func (j *DetectionScan) RunOnce(orgID string) ([]patterns.Pattern, error) {
	settings, err := database.GetOrCreateEngineSettings(j.db)
	if err != nil {
		return nil, err
	}
	if !settings.ScanEnabled {
		return nil, nil
	}

	found := j.scanner.Scan(orgID, patterns.ScanOptions{
		WindowMinutes: settings.TimeWindowMinutes,
		MinSeverity:   database.PatternSeverity(settings.MinSeverity),
	})
	for _, p := range found {
		metrics.RecordPatternDetected(p.Type, string(p.Severity))
	}
	if len(found) == 0 {
		return nil, nil
	}

	matches, err := j.matcher.Match(orgID, found)
	if err != nil {
		return found, err
	}

	executions := j.engine.ExecuteActionsForPatterns(orgID, found, matches, executor.Options{})
	log.Printf("Scan %s: %d patterns, %d executions started", orgID, len(found), len(executions))
	return found, nil
}

// RunAll scans every active organization. One organization's failure does not
// stop the others.
func (j *DetectionScan) RunAll() {
	var orgs []database.Organization
	if err := j.db.Where("is_active = ?", true).Find(&orgs).Error; err != nil {
		log.Printf("Scan: failed to list organizations: %v", err)
		return
	}
	for _, org := range orgs {
		if _, err := j.RunOnce(org.UUID); err != nil {
			log.Printf("Scan %s failed: %v", org.UUID, err)
		}
	}
}

// Start begins the periodic scanning. The interval comes from the engine
// settings and is re-read on every tick so operators can retune it live.
func (j *DetectionScan) Start(stop <-chan struct{}) {
	for {
		interval := 5 * time.Minute
		if settings, err := database.GetOrCreateEngineSettings(j.db); err == nil && settings.ScanIntervalMinutes > 0 {
			interval = time.Duration(settings.ScanIntervalMinutes) * time.Minute
		}

		select {
		case <-time.After(interval):
			j.RunAll()
		case <-stop:
			log.Println("Detection scan stopped")
			return
		}
	}
}
