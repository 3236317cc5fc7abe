package openapi

import "testing"

const sampleDoc = `
openapi: "3.0.0"
info:
  title: sample
  version: "1"
servers:
  - url: https://api.example.com
paths:
  /widgets/{id}:
    get:
      operationId: getWidget
      tags: [widgets]
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          $ref: "#/components/responses/WidgetOK"
  /widgets:
    post:
      operationId: createWidget
      tags: [widgets, write]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: "#/components/schemas/Widget"
      responses:
        "201":
          description: created
components:
  schemas:
    Widget:
      type: object
      properties:
        name:
          type: string
  responses:
    WidgetOK:
      description: ok
      content:
        application/json:
          schema:
            $ref: "#/components/schemas/Widget"
`

func TestParseDocumentRejectsNonV3(t *testing.T) {
	if _, err := ParseDocument([]byte(`{"swagger":"2.0"}`)); err == nil {
		t.Fatal("expected rejection of non-3.x document")
	}
}

func TestOperationsResolvesRefsAndFiltersByTag(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ops, err := doc.Operations(nil, []string{"write"})
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != "createWidget" {
		t.Fatalf("expected only createWidget, got %+v", ops)
	}
}

func TestOperationsFiltersByOperationID(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ops, err := doc.Operations([]string{"getWidget"}, nil)
	if err != nil {
		t.Fatalf("operations: %v", err)
	}
	if len(ops) != 1 || ops[0].ID != "getWidget" {
		t.Fatalf("expected only getWidget, got %+v", ops)
	}
}

func TestOperationsRejectsCyclicRef(t *testing.T) {
	cyclic := `
openapi: "3.0.0"
paths:
  /a:
    get:
      operationId: a
      parameters:
        - $ref: "#/components/parameters/Cyclic"
components:
  parameters:
    Cyclic:
      $ref: "#/components/parameters/Cyclic"
`
	doc, err := ParseDocument([]byte(cyclic))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := doc.Operations(nil, nil); err == nil {
		t.Fatal("expected cyclic $ref detection to fail")
	}
}

func TestServersReturnsDeclaredURLs(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	servers := doc.Servers()
	if len(servers) != 1 || servers[0] != "https://api.example.com" {
		t.Fatalf("unexpected servers: %v", servers)
	}
}
