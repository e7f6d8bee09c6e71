package store

import "go.uber.org/zap"

// DriverMemory selects the in-process MemoryStore.
const DriverMemory = "memory"

// Open returns the Storage for driver. The dsn is ignored for DriverMemory.
func Open(driver, dsn string, logger *zap.Logger) (Storage, error) {
	if driver == DriverMemory {
		return NewMemoryStore(), nil
	}
	s, err := NewSQLStore(driver, dsn, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
