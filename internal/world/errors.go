package world

import "errors"

var (
	// ErrInvalidBlockType блок не зарегистрирован в реестре
	ErrInvalidBlockType = errors.New("неизвестный тип блока")
	// ErrOutOfRange координата за пределами мира
	ErrOutOfRange = errors.New("координата вне границ мира")
	// ErrChunkNotLoaded чанк не загружен
	ErrChunkNotLoaded = errors.New("чанк не загружен")
	// ErrNotAuthoritative операция доступна только авторитетному миру (сервер)
	ErrNotAuthoritative = errors.New("мир не является авторитетным")
	// ErrBadChunkData размер данных чанка не равен 4096
	ErrBadChunkData = errors.New("неверный размер данных чанка")
)
