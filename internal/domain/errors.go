package domain

import "errors"

var (
	// ErrStoreUnavailable возвращается при любой ошибке обращения к хранилищу.
	ErrStoreUnavailable = errors.New("хранилище недоступно")
	// ErrNotFound возвращается, если запись с указанным идентификатором отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrPushDeliveryFailed возвращается при неудачной отправке push-сообщения.
	ErrPushDeliveryFailed = errors.New("не удалось доставить push")
	// ErrUnknownKind возвращается для неизвестного вида элемента ленты.
	ErrUnknownKind = errors.New("неизвестный вид элемента")
	// ErrUnknownChannel возвращается для канала вне фиксированного списка.
	ErrUnknownChannel = errors.New("неизвестный канал")
	// ErrInvalidEventRange возвращается, если событие начинается позже, чем заканчивается.
	ErrInvalidEventRange = errors.New("начало события позже окончания")
	// ErrFieldNotApplicable возвращается, если обновление затрагивает поля другого вида элемента.
	ErrFieldNotApplicable = errors.New("поле неприменимо к элементу")
)
