package room

// Member is anything that can sit in a channel and receive packets.
// session.Session implements it; room does not import session so tests can
// use plain doubles.
type Member interface {
	GetID() string
	Send(msgID uint16, data []byte) error
}
