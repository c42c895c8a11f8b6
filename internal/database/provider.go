package database

import (
	"context"
	"fmt"
	"sync"
)

var (
	backendMu         sync.RWMutex
	backendName       string
	studentWriter     func() StudentWriter
	attendanceWriter  func() AttendanceWriter
	backendCompactor  Compactor
	backendRegistered bool
)

// RegisterBackend registers the storage constructors of the active backend.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, students func() StudentWriter, attendance func() AttendanceWriter) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = name
	studentWriter = students
	attendanceWriter = attendance
	backendRegistered = true
}

// RegisterCompactor registers the ledger compactor of the active backend.
// Backends without a log to fold leave it unset.
func RegisterCompactor(c Compactor) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendCompactor = c
}

// GetCompactor returns the registered compactor, or nil if not registered.
func GetCompactor() Compactor {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendCompactor
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendRegistered
}

// BackendName returns the name of the registered backend ("file" or "postgres").
func BackendName() string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendName
}

// ResetBackend clears the registration. Used by tests and on shutdown.
func ResetBackend() {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = ""
	studentWriter = nil
	attendanceWriter = nil
	backendCompactor = nil
	backendRegistered = false
}

// GetStudentWriter returns a StudentWriter from the registered backend
func GetStudentWriter(ctx context.Context) (StudentWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if !backendRegistered {
		return nil, fmt.Errorf("storage backend not initialized")
	}
	if studentWriter == nil {
		return nil, fmt.Errorf("%s student store not registered", backendName)
	}
	return studentWriter(), nil
}

// GetAttendanceWriter returns an AttendanceWriter from the registered backend
func GetAttendanceWriter(ctx context.Context) (AttendanceWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if !backendRegistered {
		return nil, fmt.Errorf("storage backend not initialized")
	}
	if attendanceWriter == nil {
		return nil, fmt.Errorf("%s attendance ledger not registered", backendName)
	}
	return attendanceWriter(), nil
}
