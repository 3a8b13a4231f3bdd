package core

// Actor identifies the authenticated caller an event is logged for.
type Actor struct {
	ID       string
	Username string
	Email    string
}

// Logger is any leveled logger.
// expected args: error | map[string]interface{} | Actor
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
