package event

type FlushNamespaceEvent struct {
	Origin    string `json:"origin"`
	Namespace string `json:"namespace"`
}

func (e FlushNamespaceEvent) Type() string {
	return FlushNamespaceEventType
}
