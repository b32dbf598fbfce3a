// services/errors.go
package services

import "errors"

// 错误定义
var (
	ErrGameExists      = errors.New("a game is already running in this channel")
	ErrNoGame          = errors.New("no matching game in this channel")
	ErrCharacterExists = errors.New("character already exists")
	ErrNoCharacter     = errors.New("no character for this user")
	ErrItemNotFound    = errors.New("item not found in inventory")
	ErrInvalidArgument = errors.New("invalid argument")
)
