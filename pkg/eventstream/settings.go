package eventstream

// DefaultTopic is the watermill topic request messages are mirrored to.
const DefaultTopic = "quickgpt.requests"

// Settings selects the mirror transport. Redis Streams is used when Enabled,
// an in-memory channel otherwise.
type Settings struct {
	Enabled  bool
	Addr     string
	Group    string
	Consumer string
	Topic    string
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     "localhost:6379",
		Group:    "quickgpt",
		Consumer: "quickgpt-1",
		Topic:    DefaultTopic,
	}
}

func (s Settings) topic() string {
	if s.Topic == "" {
		return DefaultTopic
	}
	return s.Topic
}
