package directors

import (
	"sync"

	"docpipe/src/engine"
	"docpipe/src/settings"

	"go.uber.org/zap"
)

type ServiceManager struct {
	Database          *engine.Database
	CollectionService *CollectionService
	QueryService      *QueryService
	logger            *zap.SugaredLogger
}

// Private instance and mutex for thread safety
var (
	instance *ServiceManager
	once     sync.Once
	mu       sync.RWMutex
)

// GetServiceManager returns the singleton instance of ServiceManager
func GetServiceManager() *ServiceManager {
	mu.RLock()
	defer mu.RUnlock()

	if instance == nil {
		// not initialised yet
		return &ServiceManager{}
	}
	return instance
}

// InitServiceManager builds the services around db once. Later calls return
// the existing instance.
func InitServiceManager(db *engine.Database, args *settings.Arguments, logger *zap.SugaredLogger) *ServiceManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()

		instance = &ServiceManager{
			Database:          db,
			CollectionService: NewCollectionService(db, args, logger),
			QueryService:      NewQueryService(db, args, logger),
			logger:            logger,
		}
		logger.Info("ServiceManager singleton initialized")
	})

	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// ResetServiceManager is useful for testing - it resets the singleton
func ResetServiceManager() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}
