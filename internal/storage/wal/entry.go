// Пакет wal — файловый журнал операций, переименовывающих файлы
// объектного хранилища (сжатие). Каждая транзакция — отдельный файл
// {tx_id}.wal.json; незавершённые транзакции разбираются при старте.
package wal

import (
	"time"
)

// OperationType — тип журналируемой операции.
type OperationType string

const (
	// OpCompress — замена файла его сжатой копией
	OpCompress OperationType = "compress"
)

// TransactionStatus — статус транзакции.
type TransactionStatus string

const (
	// StatusPending — операция начата и не завершена
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — операция завершена, исходный файл заменён
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — операция отменена, исходный файл сохранён
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись журнала.
type Entry struct {
	TransactionID string            `json:"transaction_id"`
	Operation     OperationType     `json:"operation"`
	Status        TransactionStatus `json:"status"`

	// Namespace — раздел хранилища
	Namespace string `json:"namespace"`
	// Source — исходное имя файла
	Source string `json:"source"`
	// Target — имя результата операции
	Target string `json:"target"`

	StartedAt time.Time `json:"started_at"`
	// CompletedAt — nil для pending транзакций
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func walFileName(txID string) string {
	return txID + ".wal.json"
}
