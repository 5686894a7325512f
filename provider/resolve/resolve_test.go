package resolve

import "testing"

func TestProviderNames(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"anthropic", "anthropic"},
		{"openai", "openai"},
		{"groq", "groq"},
		{"ollama", "ollama"},
	}
	for _, tt := range tests {
		p, err := Provider(Config{Provider: tt.provider, APIKey: "k"})
		if err != nil {
			t.Errorf("Provider(%q): %v", tt.provider, err)
			continue
		}
		if p.Name() != tt.wantName {
			t.Errorf("Provider(%q).Name() = %q", tt.provider, p.Name())
		}
	}
}

func TestUnknownProvider(t *testing.T) {
	if _, err := Provider(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown provider accepted")
	}
}
