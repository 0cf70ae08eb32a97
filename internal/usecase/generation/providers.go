package generation

// Provider names understood by the router.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderXAI        = "xai"
)

// Preset is the built-in endpoint and model of a known provider.
type Preset struct {
	BaseURL      string
	DefaultModel string
}

// Presets lists every provider the router can route to. An empty BaseURL
// means the client library default (api.openai.com).
var Presets = map[string]Preset{
	ProviderOpenAI:     {DefaultModel: "gpt-4-turbo-preview"},
	ProviderAnthropic:  {BaseURL: "https://api.anthropic.com/v1/", DefaultModel: "claude-3-5-sonnet-20241022"},
	ProviderOpenRouter: {BaseURL: "https://openrouter.ai/api/v1", DefaultModel: "openai/gpt-4o-mini"},
	ProviderXAI:        {BaseURL: "https://api.x.ai/v1", DefaultModel: "grok-2-latest"},
}

// Known reports whether name is a supported provider.
func Known(name string) bool {
	_, ok := Presets[name]
	return ok
}
