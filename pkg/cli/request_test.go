package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"yaml", "q.yaml", "locale: en-US\ntext: show me shoes\nconversation_id: c1\ncontext:\n  page: home\n"},
		{"json", "q.json", `{"locale":"en-US","text":"show me shoes","conversationId":"c1","context":{"page":"home"}}`},
		{"sniffed", "q.txt", "locale: en-US\ntext: show me shoes\nconversation_id: c1\ncontext: {page: home}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req QueryRequest
			if err := ParseRequest([]byte(tt.data), tt.file, &req); err != nil {
				t.Fatalf("ParseRequest: %v", err)
			}
			if req.Locale != "en-US" || req.Text != "show me shoes" || req.ConversationID != "c1" || req.Context["page"] != "home" {
				t.Errorf("request = %+v", req)
			}
		})
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	var req QueryRequest
	if err := ParseRequest([]byte("{not json"), "q.json", &req); err == nil {
		t.Error("ParseRequest accepted invalid JSON")
	}
	if err := ParseRequest([]byte("text: [a"), "q.yml", &req); err == nil {
		t.Error("ParseRequest accepted invalid YAML")
	}
}

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.yaml")
	if err := os.WriteFile(path, []byte("text: hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var req QueryRequest
	if err := LoadRequest(path, &req); err != nil || req.Text != "hi" {
		t.Errorf("LoadRequest = %+v, %v", req, err)
	}
	if err := LoadRequest(filepath.Join(t.TempDir(), "missing.yaml"), &req); err == nil {
		t.Error("LoadRequest of a missing file succeeded")
	}
}
