package entity

import "errors"

var (
	ErrNotInitialized     = errors.New("entity: registry not initialized")
	ErrAlreadyInitialized = errors.New("entity: registry already initialized")
	ErrInvalidArgument    = errors.New("entity: invalid argument")
	ErrNotFound           = errors.New("entity: not found")
	ErrNameTaken          = errors.New("entity: name already taken")
	ErrOutOfMemory        = errors.New("entity: out of memory")

	ErrComponentExists  = errors.New("entity: component already attached")
	ErrComponentMissing = errors.New("entity: component not attached")
	ErrKindRegistered   = errors.New("entity: component kind already registered")

	// ErrInternalConsistency означает, что индексы или таблица компонентов
	// оказались в состоянии, из которого нельзя откатиться. Реестр после
	// такой ошибки использовать нельзя; решение о завершении процесса
	// принимает встраивающее приложение.
	ErrInternalConsistency = errors.New("entity: internal consistency violated")
)
