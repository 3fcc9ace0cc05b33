package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// Models returns every model the engine migrates, in dependency order
func Models() []interface{} {
	return []interface{}{
		&EngineSettings{},
		&Organization{},
		&Person{},
		&WorkflowTask{},
		&ApprovalRequest{},
		&IntegrationEvent{},
		&AutomatedAction{},
		&ActionExecution{},
		&Escalation{},
		&EscalationState{},
		&EscalationFollowUp{},
		&RollbackRequest{},
		&Notification{},
		&AuditLog{},
	}
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	if err := DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	if _, err := GetOrCreateEngineSettings(DB); err != nil {
		return fmt.Errorf("failed to create default engine settings: %w", err)
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
