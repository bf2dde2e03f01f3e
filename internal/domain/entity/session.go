package entity

import "time"

// Source indica qué fuente autenticó la sesión. Tipo cerrado como Role.
type Source string

const (
	// SourceRemote la autoridad remota validó las credenciales.
	SourceRemote Source = "remote"
	// SourceLocal el espejo local validó las credenciales (autoridad inalcanzable).
	SourceLocal Source = "local"
)

// Valid reporta si la fuente es uno de los valores cerrados.
func (s Source) Valid() bool {
	switch s {
	case SourceRemote, SourceLocal:
		return true
	}
	return false
}

// Session es la única sesión autenticada del proceso.
// ActingStack vacío = operación normal; con una entrada, User es una identidad
// delegada y el tope del stack es la identidad a restaurar en switch back.
// El token y la fuente originales se conservan durante la delegación.
type Session struct {
	User        User
	Token       string // opaco; acompaña toda llamada a la autoridad
	Source      Source
	CreatedAt   time.Time
	ActingStack []User
}

// Acting reporta si la sesión opera bajo una identidad delegada.
func (s *Session) Acting() bool {
	return len(s.ActingStack) > 0
}
