// Package mocks provides mock implementations of the opsdesk core ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	runs := mocks.NewMockJobRunRepository(ctrl)
//	runs.EXPECT().LastCompleted(gomock.Any(), int64(1)).Return(nil, nil)
package mocks

// ListActive, List, GetByID, Upsert, SetActive
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_definition_repository_mock.go github.com/target/opsdesk/internal/core JobDefinitionRepository

// Create, Complete, LastCompleted, GetByID, ListByJob
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_run_repository_mock.go github.com/target/opsdesk/internal/core JobRunRepository

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=settings_repository_mock.go github.com/target/opsdesk/internal/core SettingsRepository

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=query_source_mock.go github.com/target/opsdesk/internal/core QuerySource

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_locker_mock.go github.com/target/opsdesk/internal/core RunLocker

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=notifier_mock.go github.com/target/opsdesk/internal/core Notifier
