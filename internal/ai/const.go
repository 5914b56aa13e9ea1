package ai

const ProviderOllama = "ollama"

const (
	chatEndpoint = "/api/chat"
	tagsEndpoint = "/api/tags"
)
