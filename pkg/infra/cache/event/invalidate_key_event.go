package event

// InvalidateKeyEvent tells other instances to drop a key from their local tier.
type InvalidateKeyEvent struct {
	Origin    string `json:"origin"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

func (e InvalidateKeyEvent) Type() string {
	return InvalidateKeyEventType
}
