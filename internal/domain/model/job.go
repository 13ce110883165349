package model

import "time"

// DeleteJob — отложенная команда окончательного удаления встречи.
// Сериализуется в JSON и передаётся планировщику как значение,
// что позволяет хранить, просматривать и повторять задачу.
type DeleteJob struct {
	// ID — идентификатор задачи
	ID string `json:"id"`
	// TargetID — идентификатор встречи
	TargetID int64 `json:"target_id"`
	// FireAt — момент, не раньше которого задача выполняется (UTC)
	FireAt time.Time `json:"fire_at"`
	// Attempt — номер попытки (0 для первого выполнения)
	Attempt int `json:"attempt"`
}
