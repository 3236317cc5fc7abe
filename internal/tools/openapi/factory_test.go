package openapi

import "testing"

func TestFactoryBuildGeneratesOneToolPerOperation(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	tools, err := f.Build(Entry{SpecBytes: []byte(sampleDoc)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
}

func TestFactoryBuildRejectsPrivateServerHost(t *testing.T) {
	doc := `
openapi: "3.0.0"
servers:
  - url: http://169.254.169.254/
paths:
  /x:
    get:
      operationId: x
`
	f := NewFactory(FactoryOptions{})
	if _, err := f.Build(Entry{SpecBytes: []byte(doc)}); err == nil {
		t.Fatal("expected ssrf rejection for metadata-endpoint server")
	}
}

func TestFactoryBuildUsesBaseURLOverrideWhenNoServers(t *testing.T) {
	doc := `
openapi: "3.0.0"
paths:
  /x:
    get:
      operationId: x
`
	f := NewFactory(FactoryOptions{})
	tools, err := f.Build(Entry{SpecBytes: []byte(doc), BaseURLOverride: "https://override.example.com"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
}
