package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderItemNotFound возвращается, если позиции нет в указанном заказе.
	ErrOrderItemNotFound = errors.New("order item not found")
	// ErrOrderAlreadyExists — заказ с переданным клиентом ID уже существует.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrOrderItemAlreadyExists — позиция с переданным клиентом ID уже существует.
	ErrOrderItemAlreadyExists = errors.New("order item already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound сообщает, что отсутствует заказ или позиция.
// Для клиента обе причины неотличимы.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrOrderItemNotFound)
}

// IsConflict сообщает о попытке создать запись с занятым идентификатором.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOrderAlreadyExists) || errors.Is(err, ErrOrderItemAlreadyExists)
}
